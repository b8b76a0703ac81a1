package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/polyref/internal/entity"
	"github.com/roach88/polyref/internal/model"
)

// ErrNoScenarios is returned by FindScenarios for a directory without
// scenario files.
var ErrNoScenarios = errors.New("no scenario files found")

// validIdentifier matches table and column names accepted by assertions.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Scenario is a reference storage test case.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	Description string `yaml:"description"`

	// Fixture is the file name of an embedded testutil fixture.
	Fixture string `yaml:"fixture"`

	// Entities are saved after the fixture's entities.
	Entities []entity.Record `yaml:"entities,omitempty"`

	Steps []Step `yaml:"steps"`

	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one operation. Exactly one of the operation fields is set.
type Step struct {
	Save     *entity.Record `yaml:"save,omitempty"`
	Update   *entity.Record `yaml:"update,omitempty"`
	Delete   *EntityRef     `yaml:"delete,omitempty"`
	Join     *JoinStep      `yaml:"join,omitempty"`
	Validate *EntityRef     `yaml:"validate,omitempty"`
	Migrate  *MigrateStep   `yaml:"migrate,omitempty"`

	// Expect is checked against the step output. Nil means the step must
	// succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// EntityRef names one stored entity.
type EntityRef struct {
	EntityType string         `yaml:"entity_type"`
	ID         model.TargetID `yaml:"id"`
}

// JoinStep plans a join through a reference field.
type JoinStep struct {
	From    string `yaml:"from"`
	Field   string `yaml:"field"`
	To      string `yaml:"to"`
	Reverse bool   `yaml:"reverse,omitempty"`
	Inner   bool   `yaml:"inner,omitempty"`
}

// MigrateStep reconciles shadow columns. An empty entity type reconciles
// every type.
type MigrateStep struct {
	EntityType string `yaml:"entity_type,omitempty"`
}

// ExpectClause specifies the expected step output. Unset fields are not
// checked.
type ExpectClause struct {
	// Error is a substring of the expected error.
	Error string `yaml:"error,omitempty"`

	// ID is the id of the saved entity.
	ID string `yaml:"id,omitempty"`

	// Rows is the number of joined rows.
	Rows *int `yaml:"rows,omitempty"`

	// Violations lists the violation codes of a validate step in order.
	// An empty list expects a valid entity.
	Violations []string `yaml:"violations,omitempty"`

	// Created is the number of shadow columns a migrate step creates.
	Created *int `yaml:"created,omitempty"`
}

// Assertion checks stored rows after the steps ran.
type Assertion struct {
	// Type is column_values or final_state.
	Type string `yaml:"type"`

	Table string `yaml:"table"`

	// Column and Values are used by column_values. OrderBy defaults to id.
	Column  string   `yaml:"column,omitempty"`
	OrderBy []string `yaml:"order_by,omitempty"`
	Values  []any    `yaml:"values,omitempty"`

	// Where selects the row of final_state; Expect holds a subset of its
	// columns.
	Where  map[string]any `yaml:"where,omitempty"`
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertColumnValues = "column_values"
	AssertFinalState   = "final_state"
)

// Op returns the operation name of the step, or "" when none or several
// are set.
func (s Step) Op() string {
	var ops []string
	if s.Save != nil {
		ops = append(ops, "save")
	}
	if s.Update != nil {
		ops = append(ops, "update")
	}
	if s.Delete != nil {
		ops = append(ops, "delete")
	}
	if s.Join != nil {
		ops = append(ops, "join")
	}
	if s.Validate != nil {
		ops = append(ops, "validate")
	}
	if s.Migrate != nil {
		ops = append(ops, "migrate")
	}
	if len(ops) != 1 {
		return ""
	}
	return ops[0]
}

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos surface as errors.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates a scenario.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// FindScenarios returns the scenario files of dir in name order.
func FindScenarios(dir string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%s: %w", dir, ErrNoScenarios)
	}
	sort.Strings(paths)
	return paths, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Fixture == "" {
		return fmt.Errorf("fixture is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, e := range s.Entities {
		if e.EntityType == "" {
			return fmt.Errorf("entities[%d]: entity_type is required", i)
		}
	}
	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}
	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, step Step) error {
	switch step.Op() {
	case "":
		return fmt.Errorf("steps[%d]: exactly one of save, update, delete, join, validate, migrate is required", index)
	case "save":
		if step.Save.EntityType == "" {
			return fmt.Errorf("steps[%d]: save.entity_type is required", index)
		}
	case "update":
		if step.Update.EntityType == "" || step.Update.Identifier.IsZero() {
			return fmt.Errorf("steps[%d]: update needs entity_type and id", index)
		}
	case "delete":
		if err := validateRef(step.Delete); err != nil {
			return fmt.Errorf("steps[%d]: delete: %w", index, err)
		}
	case "validate":
		if err := validateRef(step.Validate); err != nil {
			return fmt.Errorf("steps[%d]: validate: %w", index, err)
		}
	case "join":
		j := step.Join
		if j.From == "" || j.Field == "" || j.To == "" {
			return fmt.Errorf("steps[%d]: join needs from, field and to", index)
		}
	}
	return nil
}

func validateRef(r *EntityRef) error {
	if r.EntityType == "" {
		return fmt.Errorf("entity_type is required")
	}
	if r.ID.IsZero() {
		return fmt.Errorf("id is required")
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if !validIdentifier.MatchString(a.Table) {
		return fmt.Errorf("assertions[%d]: invalid table name %q", index, a.Table)
	}

	switch a.Type {
	case AssertColumnValues:
		if !validIdentifier.MatchString(a.Column) {
			return fmt.Errorf("assertions[%d]: invalid column name %q", index, a.Column)
		}
		for _, col := range a.OrderBy {
			if !validIdentifier.MatchString(col) {
				return fmt.Errorf("assertions[%d]: invalid order_by column %q", index, col)
			}
		}
	case AssertFinalState:
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
		for _, m := range []map[string]any{a.Where, a.Expect} {
			for col := range m {
				if !validIdentifier.MatchString(col) {
					return fmt.Errorf("assertions[%d]: invalid column name %q", index, col)
				}
			}
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
