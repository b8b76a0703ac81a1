package cli

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/polyref/internal/entity"
	"github.com/roach88/polyref/internal/model"
	"github.com/roach88/polyref/internal/ref"
	"github.com/roach88/polyref/internal/store"
	"github.com/roach88/polyref/internal/validate"
)

// CheckOptions holds flags for the check command.
type CheckOptions struct {
	*RootOptions
	EntityType string
}

// CheckIssue is one invalid stored reference.
type CheckIssue struct {
	EntityID           string `json:"entity_id" yaml:"entity_id"`
	Field              string `json:"field" yaml:"field"`
	validate.Violation `yaml:",inline"`
}

// CheckReport is the structured output of the check command.
type CheckReport struct {
	EntityType string       `json:"entity_type" yaml:"entity_type"`
	Entities   int          `json:"entities" yaml:"entities"`
	References int          `json:"references" yaml:"references"`
	Issues     []CheckIssue `json:"issues,omitempty" yaml:"issues,omitempty"`
}

// Invalid stored values are reported with the reference error code.
const codeInvalidStored validate.ViolationCode = "INVALID_STORED_VALUE"

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate stored references of an entity type",
		Long: `Load every entity of --entity-type and validate the values of its
reference fields against the field settings: referenceable types, target
existence and bundle restrictions.

Exits with status 1 when any reference is invalid.

Example:
  polyref check --entity-type node`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.EntityType, "entity-type", "", "entity type to check (required)")
	_ = cmd.MarkFlagRequired("entity-type")

	return cmd
}

func runCheck(opts *CheckOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	ctx := cmd.Context()

	sess, err := openSession(opts.RootOptions, f)
	if err != nil {
		return err
	}
	typeID := model.CanonicalTypeID(opts.EntityType)
	if _, err := sess.registry.EntityType(typeID); err != nil {
		return f.Fail(ExitCommandError, ErrCodeUsage, err)
	}

	st, err := sess.connect(ctx, f)
	if err != nil {
		return err
	}
	defer closeStore(st)

	report, err := checkReferences(ctx, st, sess.registry, typeID)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeDatabase, err)
	}
	slog.Info("check finished", "entity_type", typeID, "entities", report.Entities, "issues", len(report.Issues))

	if len(report.Issues) > 0 {
		msg := fmt.Sprintf("%d invalid reference(s) in %s", len(report.Issues), typeID)
		if f.Structured() {
			_ = f.Failure(ErrCodeViolations, msg, report)
		} else {
			printCheckReport(f, report)
		}
		return NewExitError(ExitFailure, msg)
	}

	if f.Structured() {
		return f.Success(report)
	}
	printCheckReport(f, report)
	return nil
}

// checkReferences validates every reference field value of every entity
// of typeID.
func checkReferences(ctx context.Context, st *store.Store, reg entity.Registry, typeID string) (CheckReport, error) {
	report := CheckReport{EntityType: typeID}

	fields, err := reg.FieldStorages(typeID)
	if err != nil {
		return report, err
	}
	var names []string
	for name, fs := range fields {
		if fs.IsReference() && !fs.CustomStorage {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	ids, err := st.IDs(ctx, typeID)
	if err != nil {
		return report, err
	}
	found, err := st.LoadMultiple(ctx, typeID, ids)
	if err != nil {
		return report, err
	}
	report.Entities = len(found)

	v := validate.New(reg)
	for _, id := range ids {
		rec, ok := found[id.String()].(*entity.Record)
		if !ok {
			continue
		}
		for _, name := range names {
			fs := fields[name]
			list := ref.NewField(reg, st, fs.Settings).NewList()
			for delta, r := range rec.Refs[name] {
				report.References++
				if err := list.Append(r); err != nil {
					report.Issues = append(report.Issues, CheckIssue{
						EntityID: id.String(),
						Field:    name,
						Violation: validate.Violation{
							Code:       codeInvalidStored,
							Delta:      delta,
							TargetType: r.TargetType,
							TargetID:   r.TargetID.String(),
							Message:    fmt.Sprintf("%s: %v", ref.InvalidReferenceCodeOf(err), err),
						},
					})
					// Keep deltas aligned with stored rows.
					_ = list.Append(nil)
				}
			}
			violations, err := v.ValidateList(ctx, list, fs.Settings)
			if err != nil {
				return report, err
			}
			for _, vi := range violations {
				report.Issues = append(report.Issues, CheckIssue{EntityID: id.String(), Field: name, Violation: vi})
			}
		}
	}
	return report, nil
}

func printCheckReport(f *OutputFormatter, r CheckReport) {
	w := f.Writer
	if len(r.Issues) == 0 {
		fmt.Fprintf(w, "✓ %d reference(s) on %d %s entit(ies) valid\n", r.References, r.Entities, r.EntityType)
		return
	}
	fmt.Fprintf(w, "✗ %d invalid reference(s) on %d %s entit(ies)\n\n", len(r.Issues), r.Entities, r.EntityType)
	for _, is := range r.Issues {
		fmt.Fprintf(w, "%s %s[%d]: %s\n", r.EntityType+":"+is.EntityID, is.Field, is.Delta, is.Code)
		fmt.Fprintf(w, "  %s\n", is.Message)
	}
}
