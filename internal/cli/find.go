package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// QueryOptions holds flags shared by commands that select records.
type QueryOptions struct {
	*RootOptions
	Where string
}

func addWhereFlag(cmd *cobra.Command, opts *QueryOptions) {
	cmd.Flags().StringVarP(&opts.Where, "where", "w", "", "condition as JSON or YAML; a bare mapping is the where clause")
}

// NewFindCommand creates the find command.
func NewFindCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "find <model>",
		Short: "List the records matching a condition",
		Long: `List the records of a model matching a condition.

Example:
  caminte find User -s models.yaml --where '{age: {between: [18, 30]}}'
  caminte find User -s models.yaml --where '{where: {status: active}, order: "age DESC", limit: 5}'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFind(opts, args[0], cmd)
		},
	}
	addWhereFlag(cmd, opts)

	return cmd
}

func runFind(opts *QueryOptions, model string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	f := opts.formatter(cmd)
	cond, err := parseCondition(opts.Where, f)
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

	found, err := m.Find(ctx, cond)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeOperation, "find failed", err)
	}
	lines := make([]string, len(found))
	for i, e := range found {
		lines[i] = e.String()
	}
	if len(lines) == 0 {
		lines = []string{fmt.Sprintf("no %s matched", model)}
	}
	return f.Success(objects(found), lines...)
}

// NewCountCommand creates the count command.
func NewCountCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "count <model>",
		Short:         "Count the records matching a condition",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCount(opts, args[0], cmd)
		},
	}
	addWhereFlag(cmd, opts)

	return cmd
}

func runCount(opts *QueryOptions, model string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	f := opts.formatter(cmd)
	cond, err := parseCondition(opts.Where, f)
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

	n, err := m.Count(ctx, cond)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeOperation, "count failed", err)
	}
	return f.Success(map[string]int{"count": n}, fmt.Sprint(n))
}
