package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/caminte/internal/schema"
)

// ModelSummary describes one model as the backend sees it.
type ModelSummary struct {
	Name        string            `json:"name"`
	PrimaryKeys []string          `json:"primaryKeys"`
	Fields      map[string]string `json:"fields"`
	Order       []string          `json:"order"`
	Relations   []schema.Relation `json:"relations,omitempty"`
	Indexes     []schema.Index    `json:"indexes,omitempty"`
}

// NewSchemaCommand creates the schema command.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Define every model on the backend and print the result",
		Long: `Define every model of the schema file on the backend and print the
resulting definitions, including synthesized primary keys.

SQL backends create missing tables and indexes as a side effect.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchema(rootOpts, cmd)
		},
	}

	return cmd
}

func runSchema(opts *RootOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	f := opts.formatter(cmd)
	s, err := openSession(ctx, opts, cmd, f)
	if err != nil {
		return err
	}
	defer s.close(ctx)

	var summaries []ModelSummary
	var lines []string
	for _, name := range s.conn.ModelNames() {
		def, _ := s.conn.Definition(name)
		sum := summarize(def)
		summaries = append(summaries, sum)

		fields := make([]string, len(sum.Order))
		for i, field := range sum.Order {
			fields[i] = field + ":" + sum.Fields[field]
		}
		lines = append(lines, fmt.Sprintf("%s (%s) [%s] %s", name, s.conn.Driver(),
			strings.Join(sum.PrimaryKeys, ","), strings.Join(fields, " ")))
	}
	return f.Success(summaries, lines...)
}

func summarize(def *schema.Definition) ModelSummary {
	sum := ModelSummary{
		Name:      def.Name,
		Fields:    make(map[string]string),
		Relations: def.Relations(),
		Indexes:   def.Indexes(),
	}
	for _, pk := range def.PrimaryKeys() {
		sum.PrimaryKeys = append(sum.PrimaryKeys, pk.Field)
	}
	for _, field := range def.Fields() {
		sum.Order = append(sum.Order, field.Name)
		sum.Fields[field.Name] = string(field.Type)
	}
	return sum
}
