package validation

// kindMessages holds the default message per validator kind. A kind with
// several failure codes maps each code separately.
var kindMessages = map[Kind]map[string]string{
	KindPresence:  {"": "can't be blank"},
	KindLength:    {CodeMin: "too short", CodeMax: "too long", CodeIs: "length is wrong"},
	KindFormat:    {"": "doesn't match the format"},
	KindInclusion: {"": "is not included in the list"},
	KindExclusion: {"": "is reserved"},
	KindNumericality: {
		CodeInt:    "is not an integer",
		CodeNumber: "is not a number",
		CodeMin:    "is too small",
		CodeMax:    "is too large",
	},
	KindUniqueness: {"": "is not unique"},
}

var commonMessages = map[string]string{
	CodeNull:  "is null",
	CodeBlank: "is blank",
}

const defaultMessage = "is invalid"

// message resolves the text for a failing rule: the rule's own message,
// then the kind default, then the generic message for the code.
func message(r Rule, code string) string {
	if r.Message != "" {
		return r.Message
	}
	if table, ok := kindMessages[r.Kind]; ok {
		if msg, ok := table[code]; ok {
			return msg
		}
		if msg, ok := table[""]; ok {
			return msg
		}
	}
	if msg, ok := commonMessages[code]; ok {
		return msg
	}
	return defaultMessage
}
