package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/polyref/internal/compiler"
	"github.com/roach88/polyref/internal/entity"
	"github.com/roach88/polyref/internal/model"
)

// LoadMode controls how errors are handled during registry loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadResult contains the definitions loaded from a registry directory.
type LoadResult struct {
	Types     []model.EntityType
	Fields    []model.FieldStorage
	CUEValue  cue.Value // The raw CUE value for additional processing
	FileCount int       // Number of CUE files found
}

// FieldsOf returns the fields declared on an entity type.
func (r *LoadResult) FieldsOf(typeID string) []model.FieldStorage {
	var out []model.FieldStorage
	for _, fs := range r.Fields {
		if fs.EntityTypeID == typeID {
			out = append(out, fs)
		}
	}
	return out
}

// Registry registers every loaded type and field in a new memory registry.
func (r *LoadResult) Registry() (*entity.MemoryRegistry, error) {
	reg := entity.NewMemoryRegistry()
	for _, et := range r.Types {
		if err := reg.RegisterType(et); err != nil {
			return nil, err
		}
	}
	for _, fs := range r.Fields {
		if err := reg.RegisterField(fs); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// LoadError represents an error that occurred during registry loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadRegistry loads and compiles the CUE entity type definitions in dir.
// If mode is LoadModeFailFast, returns on first error.
// If mode is LoadModeCollectAll, collects all errors.
func LoadRegistry(dir string, mode LoadMode) (*LoadResult, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("registry directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing registry directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(cueFiles) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}

	result := &LoadResult{CUEValue: value, FileCount: len(cueFiles)}

	var errs []error
	typesVal := value.LookupPath(cue.ParsePath("entity_type"))
	if typesVal.Exists() {
		iter, iterErr := typesVal.Fields()
		if iterErr != nil {
			return result, []error{&LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating entity types: %v", iterErr)}}
		}
		for iter.Next() {
			et, fields, compileErr := compiler.CompileEntityType(iter.Value())
			if compileErr != nil {
				errs = append(errs, convertCompileError(compileErr, "entity_type."+iter.Selector().String()))
				if mode == LoadModeFailFast {
					return result, errs
				}
				continue
			}
			result.Types = append(result.Types, *et)
			result.Fields = append(result.Fields, fields...)
		}
	}

	if len(result.Types) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeGeneric, Message: "no entity types found in registry"})
	}
	return result, errs
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error, context string) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: fmt.Sprintf("%s: %s", context, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeGeneric,
		Message: fmt.Sprintf("%s: %v", context, err),
	}
}

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeConfig      = "E007" // Config unreadable or invalid
	ErrCodeDatabase    = "E008" // Database connection or query error
	ErrCodeUsage       = "E009" // Invalid flag values

	// Definition compile errors
	ErrCodeIDKind     = "E201" // Unknown id_kind
	ErrCodeFieldType  = "E202" // Field without type
	ErrCodeSettings   = "E203" // Malformed settings
	ErrCodeMissingDef = "E204" // Definition not found
	ErrCodeCUEValue   = "E205" // CUE value of the wrong kind

	// Reference check failures
	ErrCodeViolations = "E301" // Stored references violate field settings
	ErrCodeNoJoin     = "E302" // Relationship cannot be planned
)

// MapFieldToErrorCode maps a compiler error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch field {
	case "id_kind":
		return ErrCodeIDKind
	case "fields.type":
		return ErrCodeFieldType
	case "settings.bundles":
		return ErrCodeSettings
	case "entity_type":
		return ErrCodeMissingDef
	case "cue":
		return ErrCodeCUEValue
	default:
		return ErrCodeGeneric
	}
}
