package cli

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/polyref/internal/migrate"
)

// MigrateOptions holds flags for the migrate command.
type MigrateOptions struct {
	*RootOptions
	EntityType string
	NoInstall  bool
}

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MigrateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create shadow columns and triggers for reference fields",
		Long: `Install the registry's entity types in the configured database and
reconcile the integer shadow columns of their reference fields.

Existing tables and columns are left alone; running migrate twice is a
no-op. With --no-install only tables that already exist are reconciled.

Example:
  polyref migrate
  polyref migrate --entity-type node --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.EntityType, "entity-type", "", "reconcile one entity type only")
	cmd.Flags().BoolVar(&opts.NoInstall, "no-install", false, "do not create missing entity tables")

	return cmd
}

func runMigrate(opts *MigrateOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	ctx := cmd.Context()

	sess, err := openSession(opts.RootOptions, f)
	if err != nil {
		return err
	}

	connect := sess.connect
	if !opts.NoInstall {
		connect = sess.connectEmpty
	}
	st, err := connect(ctx, f)
	if err != nil {
		return err
	}
	defer closeStore(st)

	if !opts.NoInstall {
		for _, et := range sess.loaded.Types {
			slog.Debug("installing entity type", "entity_type", et.ID)
			if err := st.InstallEntityType(ctx, et, sess.loaded.FieldsOf(et.ID)...); err != nil {
				return f.Fail(ExitCommandError, ErrCodeDatabase, err)
			}
		}
	}
	m, err := migrate.New(st.Registry(), st.Schema())
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeDatabase, err)
	}

	var res migrate.Result
	if opts.EntityType != "" {
		res, err = m.Reconcile(ctx, opts.EntityType, nil)
	} else {
		res, err = m.ReconcileAll(ctx)
	}
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeGeneric, err)
	}
	slog.Info("migration finished", "created", res.CreatedCount(), "skipped", len(res.Skipped))

	if f.Structured() {
		return f.Success(res)
	}
	printMigrateResult(f, res)
	return nil
}

func printMigrateResult(f *OutputFormatter, res migrate.Result) {
	w := f.Writer
	fmt.Fprintf(w, "✓ %d shadow column(s) created\n", res.CreatedCount())

	tables := make([]string, 0, len(res.Created))
	for table := range res.Created {
		tables = append(tables, table)
	}
	sort.Strings(tables)
	for _, table := range tables {
		for _, col := range res.Created[table] {
			fmt.Fprintf(w, "  %s.%s\n", table, col)
		}
	}
	for _, skip := range res.Skipped {
		subject := skip.EntityType
		if skip.Field != "" {
			subject += "." + skip.Field
		}
		if skip.Table != "" {
			subject += " (" + skip.Table + ")"
		}
		fmt.Fprintf(w, "  skipped %s: %s\n", subject, skip.Reason)
	}
}
