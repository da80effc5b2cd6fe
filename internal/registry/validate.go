package registry

import (
	"fmt"
	"strings"

	"github.com/specialistvlad/opcalc/internal/operation"
)

// Validate checks that every registered operation can actually be built: it
// has a name, a constructor, and a supported arity.
func (r *Registry) Validate() error {
	var errs []string

	for _, desc := range r.Descriptors() {
		if desc.Name == "" {
			errs = append(errs, fmt.Sprintf("operation from '%s' has an empty name", desc.Source))
		}
		if desc.New == nil {
			errs = append(errs, fmt.Sprintf("operation '%s' (%s): no constructor", desc.Name, desc.Source))
		}
		if desc.Arity != operation.Unary && desc.Arity != operation.Binary {
			errs = append(errs, fmt.Sprintf("operation '%s' (%s): unsupported %s", desc.Name, desc.Source, desc.Arity))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("registry validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}
