package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/polyref/internal/schema"
	"github.com/roach88/polyref/internal/shadow"
)

// DDLOptions holds flags for the ddl command.
type DDLOptions struct {
	*RootOptions
	Dialect string
	Table   string
	Prefix  string
	Columns []string
}

// DDLResult is the structured output of the ddl command.
type DDLResult struct {
	Dialect    string   `json:"dialect" yaml:"dialect"`
	Table      string   `json:"table" yaml:"table"`
	Triggers   []string `json:"triggers" yaml:"triggers"`
	Statements []string `json:"statements" yaml:"statements"`
}

// NewDDLCommand creates the ddl command.
func NewDDLCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DDLOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ddl",
		Short: "Print shadow column trigger DDL",
		Long: `Print the trigger DDL that keeps integer shadow columns in sync with
their target id columns, without connecting to a database.

Each --column is "target_id_column:target_type_column".

Example:
  polyref ddl --dialect mysql --table node_field_data \
    --column owner__target_id:owner__target_type`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDDL(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Dialect, "dialect", "sqlite", "SQL dialect (sqlite|mysql|postgres)")
	cmd.Flags().StringVar(&opts.Table, "table", "", "unprefixed table name (required)")
	cmd.Flags().StringVar(&opts.Prefix, "prefix", "", "table prefix")
	cmd.Flags().StringArrayVar(&opts.Columns, "column", nil, "column pair id_col:type_col (repeatable, required)")
	_ = cmd.MarkFlagRequired("table")
	_ = cmd.MarkFlagRequired("column")

	return cmd
}

func runDDL(opts *DDLOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	d, err := schema.ParseDialect(opts.Dialect)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeUsage, err)
	}
	sd, err := shadow.DialectFor(d)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeUsage, err)
	}
	pairs, err := parseColumnPairs(opts.Columns)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeUsage, err)
	}

	table := opts.Prefix + opts.Table
	stmts, err := sd.Statements(table, pairs)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeUsage, err)
	}

	if f.Structured() {
		res := DDLResult{
			Dialect:  string(d),
			Table:    table,
			Triggers: sd.TriggerNames(table, pairs),
		}
		for _, s := range stmts {
			res.Statements = append(res.Statements, s.SQL)
		}
		return f.Success(res)
	}

	fmt.Fprint(f.Writer, shadow.Script(stmts))
	return nil
}

// parseColumnPairs parses "id_col:type_col" values.
func parseColumnPairs(values []string) ([]shadow.ColumnPair, error) {
	pairs := make([]shadow.ColumnPair, 0, len(values))
	for _, v := range values {
		col, typeCol, ok := strings.Cut(v, ":")
		if !ok || col == "" || typeCol == "" {
			return nil, fmt.Errorf("column %q: want id_col:type_col", v)
		}
		pairs = append(pairs, shadow.ColumnPair{Column: col, TypeColumn: typeCol})
	}
	return pairs, nil
}
