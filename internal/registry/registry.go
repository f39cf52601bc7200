// Package registry holds the catalog of builtin processes, the sigil rules
// for process names, and the hand-off to the external filter engine.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/AaronLay10/Haeccstable/internal/model"
)

var (
	// ErrUnknownProcess is returned for names that are neither builtin nor
	// known to the caller.
	ErrUnknownProcess = errors.New("unknown process")

	// ErrMissingSigil is returned when a process name lacks the '$' prefix.
	ErrMissingSigil = errors.New("missing process sigil")
)

// Builtin describes a filter the engine provides natively.
type Builtin struct {
	Name        string   `json:"name"`
	Parameters  []string `json:"parameters"`
	Description string   `json:"description"`
}

var builtins = map[string]Builtin{
	"sobel": {
		Name:        "sobel",
		Parameters:  []string{"video", "threshold"},
		Description: "Sobel edge detection",
	},
	"dog": {
		Name:        "dog",
		Parameters:  []string{"video", "sigma1", "sigma2"},
		Description: "Difference of Gaussians",
	},
	"kuwahara": {
		Name:        "kuwahara",
		Parameters:  []string{"video", "radius"},
		Description: "Kuwahara painterly filter",
	},
	"gaussian": {
		Name:        "gaussian",
		Parameters:  []string{"video", "radius"},
		Description: "Gaussian blur",
	},
	"ascii": {
		Name:        "ascii",
		Parameters:  []string{"video", "charset"},
		Description: "ASCII art rendering",
	},
}

// ValidateProcessName reports whether name carries the process sigil.
func ValidateProcessName(name string) bool {
	return strings.HasPrefix(name, model.Sigil)
}

// StripPrefix removes a leading sigil, if any.
func StripPrefix(name string) string {
	return strings.TrimPrefix(name, model.Sigil)
}

// SigilError builds the error returned for a process name without '$'.
// The message echoes the corrected name.
func SigilError(name string) error {
	return fmt.Errorf("%w: Process names must start with '$'. Did you mean '$%s'?", ErrMissingSigil, name)
}

// IsBuiltin reports whether the stripped name is a builtin filter.
func IsBuiltin(name string) bool {
	_, ok := builtins[name]
	return ok
}

// BuiltinParameters returns a copy of the ordered parameter names of a builtin.
func BuiltinParameters(name string) ([]string, bool) {
	b, ok := builtins[name]
	if !ok {
		return nil, false
	}
	return append([]string{}, b.Parameters...), true
}

// LookupBuiltin returns the catalog entry for name.
func LookupBuiltin(name string) (Builtin, bool) {
	b, ok := builtins[name]
	if !ok {
		return Builtin{}, false
	}
	b.Parameters = append([]string{}, b.Parameters...)
	return b, true
}

// ListBuiltins returns builtin names in sorted order.
func ListBuiltins() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
