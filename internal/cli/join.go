package cli

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/polyref/internal/entity"
	"github.com/roach88/polyref/internal/mapping"
	"github.com/roach88/polyref/internal/queryir"
	"github.com/roach88/polyref/internal/querysql"
	"github.com/roach88/polyref/internal/relation"
)

// JoinOptions holds flags for the join command.
type JoinOptions struct {
	*RootOptions
	From    string
	Field   string
	To      string
	Reverse bool
	Inner   bool
	Run     bool
}

// JoinResult is the structured output of the join command.
type JoinResult struct {
	Direction string           `json:"direction" yaml:"direction"`
	SQL       string           `json:"sql" yaml:"sql"`
	Params    []any            `json:"params" yaml:"params"`
	Rows      []map[string]any `json:"rows,omitempty" yaml:"rows,omitempty"`
}

// NewJoinCommand creates the join command.
func NewJoinCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &JoinOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "join",
		Short: "Print the SQL joining a reference field to a target type",
		Long: `Plan the join from the reference field --field of entity type --from
to the entity type --to and print the compiled SQL for the configured
database dialect. Integer-identified targets are joined through the
field's shadow column; the target type predicate is part of the ON clause.

With --reverse the query starts at the target type and finds the entities
referencing it. With --run the query is executed and its rows printed.

Example:
  polyref join --from node --field owner --to user
  polyref join --from node --field related --to tag --reverse --run`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJoin(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.From, "from", "", "entity type holding the reference field (required)")
	cmd.Flags().StringVar(&opts.Field, "field", "", "reference field name (required)")
	cmd.Flags().StringVar(&opts.To, "to", "", "target entity type (required)")
	cmd.Flags().BoolVar(&opts.Reverse, "reverse", false, "start from the target type")
	cmd.Flags().BoolVar(&opts.Inner, "inner", false, "INNER JOIN instead of LEFT JOIN")
	cmd.Flags().BoolVar(&opts.Run, "run", false, "execute the query against the configured database")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("field")
	_ = cmd.MarkFlagRequired("to")

	return cmd
}

func runJoin(opts *JoinOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	ctx := cmd.Context()

	sess, err := openSession(opts.RootOptions, f)
	if err != nil {
		return err
	}

	kind := queryir.JoinLeft
	if opts.Inner {
		kind = queryir.JoinInner
	}
	plan, err := planJoin(sess.registry, tablePrefix(sess.cfg.Database.Prefix), opts, kind)
	if err != nil {
		code := ErrCodeNoJoin
		if errors.Is(err, entity.ErrUnknownType) {
			code = ErrCodeUsage
		}
		return f.Fail(ExitFailure, code, err)
	}

	q := plan.Query()
	sqlText, params, err := querysql.NewSQLCompiler(sess.cfg.Dialect()).Compile(q)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeNoJoin, err)
	}
	res := JoinResult{Direction: plan.Direction.String(), SQL: sqlText, Params: params}

	if opts.Run {
		st, err := sess.connect(ctx, f)
		if err != nil {
			return err
		}
		defer closeStore(st)
		if res.Rows, err = st.Query(ctx, q); err != nil {
			return f.Fail(ExitCommandError, ErrCodeDatabase, err)
		}
	}

	if f.Structured() {
		return f.Success(res)
	}
	printJoinResult(f, res, opts.Run)
	return nil
}

func planJoin(reg entity.Registry, prefix relation.Prefixer, opts *JoinOptions, kind queryir.JoinKind) (relation.JoinPlan, error) {
	p := relation.New(reg, prefix)
	if opts.Reverse {
		return p.Reverse(opts.To, opts.From, opts.Field, kind)
	}
	plan, err := p.Forward(opts.From, opts.Field, opts.To, kind)
	if errors.Is(err, mapping.ErrUnmappedField) {
		return plan, fmt.Errorf("%w (is %s.%s stored in SQL?)", err, opts.From, opts.Field)
	}
	return plan, err
}

func printJoinResult(f *OutputFormatter, res JoinResult, run bool) {
	fmt.Fprintln(f.Writer, res.SQL)
	if len(res.Params) > 0 {
		params := make([]string, len(res.Params))
		for i, p := range res.Params {
			params[i] = fmt.Sprintf("%v", p)
		}
		fmt.Fprintf(f.Writer, "-- params: %s\n", strings.Join(params, ", "))
	}
	if !run {
		return
	}
	fmt.Fprintf(f.Writer, "-- %d row(s)\n", len(res.Rows))
	for _, row := range res.Rows {
		keys := make([]string, 0, len(row))
		for k := range row {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			v := row[k]
			if v == nil {
				v = "NULL"
			}
			parts[i] = fmt.Sprintf("%s=%v", k, v)
		}
		fmt.Fprintln(f.Writer, strings.Join(parts, " "))
	}
}
