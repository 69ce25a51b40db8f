package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/caminte/internal/adapter"
)

// WriteOptions holds flags for commands that write records.
type WriteOptions struct {
	QueryOptions
	Data string
}

func dataFlag(cmd *cobra.Command, opts *WriteOptions) {
	cmd.Flags().StringVarP(&opts.Data, "data", "d", "", "field values as JSON or YAML")
	_ = cmd.MarkFlagRequired("data")
}

func parseData(text string, f *OutputFormatter) (adapter.Record, error) {
	doc, err := decodeDocument(text)
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeCondition, "malformed data", err)
	}
	return adapter.Record(doc), nil
}

// NewCreateCommand creates the create command.
func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WriteOptions{QueryOptions: QueryOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "create <model>",
		Short: "Validate and store a new record",
		Long: `Validate and store a new record.

Exits 1 when validation fails; the errors are printed.

Example:
  caminte create User -s models.yaml --data '{name: Al, age: 30}'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreate(opts, args[0], cmd)
		},
	}
	dataFlag(cmd, opts)

	return cmd
}

func runCreate(opts *WriteOptions, model string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	f := opts.formatter(cmd)
	data, err := parseData(opts.Data, f)
	if err != nil {
		return err
	}
	s, err := openSession(ctx, opts.RootOptions, cmd, f)
	if err != nil {
		return err
	}
	defer s.close(ctx)
	m, err := s.model(model, f)
	if err != nil {
		return err
	}

	e, err := m.Create(ctx, data)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeOperation, "create failed", err)
	}
	if errs := e.Errors(); len(errs) > 0 {
		if outErr := f.Error(ErrCodeInvalid, errs.Error(), errs); outErr != nil {
			return outErr
		}
		return WrapExitError(ExitFailure, "validation failed", errs)
	}
	return f.Success(e.ToObject(), "created "+e.String())
}

// NewUpdateCommand creates the update command.
func NewUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WriteOptions{QueryOptions: QueryOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:           "update <model>",
		Short:         "Apply field values to the records matching a condition",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(opts, args[0], cmd)
		},
	}
	addWhereFlag(cmd, &opts.QueryOptions)
	dataFlag(cmd, opts)
	cmd.Flags().Bool("upsert", false, "create a record from the condition and data when none matches")

	return cmd
}

func runUpdate(opts *WriteOptions, model string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	f := opts.formatter(cmd)
	cond, err := parseCondition(opts.Where, f)
	if err != nil {
		return err
	}
	data, err := parseData(opts.Data, f)
	if err != nil {
		return err
	}
	upsert, _ := cmd.Flags().GetBool("upsert")
	s, err := openSession(ctx, opts.RootOptions, cmd, f)
	if err != nil {
		return err
	}
	defer s.close(ctx)
	m, err := s.model(model, f)
	if err != nil {
		return err
	}

	update := m.Update
	if upsert {
		update = m.UpdateOrCreate
	}
	updated, err := update(ctx, cond, data)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeOperation, "update failed", err)
	}
	return f.Success(objects(updated), fmt.Sprintf("updated %d %s", len(updated), model))
}

// NewRemoveCommand creates the remove command.
func NewRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "remove <model>",
		Short: "Delete the records matching a condition",
		Long: `Delete the records matching a condition.

Without --where every record of the model is removed only when --all is set.
Exits 1 when nothing matched.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRemove(opts, args[0], cmd)
		},
	}
	addWhereFlag(cmd, opts)
	cmd.Flags().Bool("all", false, "remove every record when no condition is given")

	return cmd
}

func runRemove(opts *QueryOptions, model string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	f := opts.formatter(cmd)
	cond, err := parseCondition(opts.Where, f)
	if err != nil {
		return err
	}
	all, _ := cmd.Flags().GetBool("all")
	if cond.Where.IsEmpty() && !all {
		return f.Fail(ExitCommandError, ErrCodeCondition, "refusing to remove every record without --all", nil)
	}
	s, err := openSession(ctx, opts.RootOptions, cmd, f)
	if err != nil {
		return err
	}
	defer s.close(ctx)
	m, err := s.model(model, f)
	if err != nil {
		return err
	}

	if cond.Where.IsEmpty() {
		if err := m.RemoveAll(ctx); err != nil {
			return f.Fail(ExitCommandError, ErrCodeOperation, "remove failed", err)
		}
		return f.Success(map[string]bool{"removed": true}, "removed all "+model)
	}
	removed, err := m.Remove(ctx, cond)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeOperation, "remove failed", err)
	}
	if !removed {
		if outErr := f.Error(ErrCodeGeneric, "no "+model+" matched", nil); outErr != nil {
			return outErr
		}
		return NewExitError(ExitFailure, "nothing removed")
	}
	return f.Success(map[string]bool{"removed": true}, "removed "+model+" matching "+opts.Where)
}
