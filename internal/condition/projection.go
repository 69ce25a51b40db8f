package condition

import (
	"slices"
	"strings"
)

// ParseProjection parses a space-separated field list. Names prefixed with
// "-" are exclusions: "name email -password".
func ParseProjection(spec string) Projection {
	var p Projection
	for _, name := range strings.Fields(spec) {
		if rest, ok := strings.CutPrefix(name, "-"); ok {
			if rest != "" {
				p.Exclude = append(p.Exclude, rest)
			}
			continue
		}
		p.Include = append(p.Include, name)
	}
	return p
}

// String renders the projection in the form accepted by ParseProjection.
func (p Projection) String() string {
	parts := slices.Clone(p.Include)
	for _, name := range p.Exclude {
		parts = append(parts, "-"+name)
	}
	return strings.Join(parts, " ")
}

// Resolve returns the names of the fields to keep, or nil when every field is
// kept. Whichever list is longer wins; a tie means exclusion. The primary key
// is always kept.
func (p Projection) Resolve(pk string, props []string) []string {
	if p.IsEmpty() {
		return nil
	}

	if len(p.Include) > len(p.Exclude) {
		out := make([]string, 0, len(p.Include)+1)
		for _, name := range p.Include {
			if !slices.Contains(out, name) {
				out = append(out, name)
			}
		}
		if pk != "" && !slices.Contains(out, pk) {
			out = append(out, pk)
		}
		return out
	}

	out := make([]string, 0, len(props))
	for _, name := range props {
		if name != pk && slices.Contains(p.Exclude, name) {
			continue
		}
		out = append(out, name)
	}
	return out
}
