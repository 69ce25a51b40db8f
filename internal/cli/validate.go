package cli

import (
	"errors"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/caminte/internal/schema"
	"github.com/roach88/caminte/internal/validation"
)

// Issue is one problem found in a schema file.
type Issue struct {
	Model   string `json:"model,omitempty"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	if i.Model == "" {
		return i.Message
	}
	return i.Model + ": " + i.Message
}

// ValidationResult holds the outcome of the validate command.
type ValidationResult struct {
	Valid  bool    `json:"valid"`
	Models int     `json:"models"`
	Issues []Issue `json:"issues,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [schema-file]",
		Short: "Check a schema file without connecting",
		Long: `Check a schema file without connecting to a backend.

Beyond parsing, every relation must target a model of the file and every
validation rule and index must name declared fields.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				rootOpts.Schema = args[0]
			}
			return runValidate(rootOpts, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	if opts.Schema == "" {
		return f.Fail(ExitCommandError, ErrCodeSchema, "no schema file: pass one or set "+EnvSchema, nil)
	}

	var result ValidationResult
	defs, err := schema.LoadFile(opts.Schema)
	if err != nil {
		var loadErr *schema.LoadError
		var defErr *schema.Error
		switch {
		case errors.As(err, &defErr):
			result.Issues = []Issue{{Model: defErr.Model, Message: defErr.Message}}
		case errors.As(err, &loadErr):
			result.Issues = []Issue{{Message: loadErr.Error()}}
		default:
			return f.Fail(ExitCommandError, ErrCodeSchema, "cannot read schema "+opts.Schema, err)
		}
	} else {
		result.Models = len(defs)
		result.Issues = checkDefinitions(defs, f)
	}
	result.Valid = len(result.Issues) == 0

	if result.Valid {
		return f.Success(result, fmt.Sprintf("%s: %d model(s), no issues", opts.Schema, result.Models))
	}
	lines := make([]string, len(result.Issues))
	for i, issue := range result.Issues {
		lines[i] = issue.String()
	}
	if err := f.Success(result, lines...); err != nil {
		return err
	}
	return NewExitError(ExitFailure, fmt.Sprintf("%d issue(s) in %s", len(result.Issues), opts.Schema))
}

// checkDefinitions reports every cross-model problem in defs.
func checkDefinitions(defs []*schema.Definition, f *OutputFormatter) []Issue {
	var issues []Issue
	names := make([]string, 0, len(defs))
	for _, def := range defs {
		if slices.Contains(names, def.Name) {
			issues = append(issues, Issue{Model: def.Name, Message: "model declared twice"})
		}
		names = append(names, def.Name)
	}

	for _, def := range defs {
		f.VerboseLog("checking model %s", def.Name)
		for _, r := range def.Relations() {
			if !slices.Contains(names, r.Target) {
				issues = append(issues, Issue{Model: def.Name, Message: fmt.Sprintf("relation %q targets unknown model %q", r.Name, r.Target)})
			}
		}
		for _, spec := range def.Validations() {
			if _, err := validation.FromSpec(spec); err != nil {
				issues = append(issues, Issue{Model: def.Name, Message: err.Error()})
				continue
			}
			if !def.HasField(spec.Field) {
				issues = append(issues, Issue{Model: def.Name, Message: fmt.Sprintf("%s rule on undeclared field %q", spec.Kind, spec.Field)})
			}
		}
		for _, idx := range def.Indexes() {
			for _, field := range idx.Fields {
				if !def.HasField(field) {
					issues = append(issues, Issue{Model: def.Name, Message: fmt.Sprintf("index %s names undeclared field %q", idx.Name, field)})
				}
			}
		}
	}
	return issues
}
