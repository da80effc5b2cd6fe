package plugin

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/specialistvlad/opcalc/internal/ctxlog"
	"github.com/specialistvlad/opcalc/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

// Candidate is a manifest file selected for loading.
type Candidate struct {
	Path string
	// ModuleID identifies the plugin as "<directory base>.<file base>".
	ModuleID string
}

// Registration is a deferred registry write produced by a Loader.
type Registration struct {
	Descriptor registry.Descriptor
}

// Apply registers the operation.
func (reg Registration) Apply(r *registry.Registry) {
	r.Register(reg.Descriptor)
}

// KindSource resolves handler kinds referenced by manifests.
type KindSource = registry.KindSource

// Loader turns one candidate file into registration callbacks.
type Loader interface {
	Load(ctx context.Context, c Candidate, kinds KindSource) ([]Registration, error)
}

// manifestRoot defines the top-level structure of a manifest file.
type manifestRoot struct {
	Operations []*operationBlock `hcl:"operation,block"`
}

// operationBlock represents a single 'operation' block in a manifest.
type operationBlock struct {
	Name        string         `hcl:"name,label"`
	Handler     string         `hcl:"handler"`
	Description string         `hcl:"description,optional"`
	Params      hcl.Expression `hcl:"params,optional"`
}

// HCLLoader is the HCL implementation of Loader.
type HCLLoader struct{}

// NewHCLLoader creates a new HCL manifest loader.
func NewHCLLoader() *HCLLoader {
	return &HCLLoader{}
}

// Load parses the manifest at c.Path. The whole file must decode, and every
// operation in it must resolve to a known handler kind, before any
// registration is returned.
func (l *HCLLoader) Load(ctx context.Context, c Candidate, kinds KindSource) ([]Registration, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Loading plugin manifest.", "path", c.Path, "module", c.ModuleID)

	// hclparse.Parser caches files and is not safe for concurrent use, so each
	// load gets its own.
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(c.Path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse plugin %s: %w", c.Path, diags)
	}

	var root manifestRoot
	if diags := gohcl.DecodeBody(file.Body, nil, &root); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode plugin %s: %w", c.Path, diags)
	}

	regs := make([]Registration, 0, len(root.Operations))
	seen := make(map[string]struct{}, len(root.Operations))
	for _, op := range root.Operations {
		if op.Name == "" {
			return nil, fmt.Errorf("plugin %s: operation name must not be empty", c.Path)
		}
		if _, dup := seen[op.Name]; dup {
			return nil, fmt.Errorf("plugin %s: operation '%s' declared twice", c.Path, op.Name)
		}
		seen[op.Name] = struct{}{}

		factory, ok := kinds.Kind(op.Handler)
		if !ok {
			return nil, fmt.Errorf("plugin %s: operation '%s' uses unknown handler '%s'", c.Path, op.Name, op.Handler)
		}

		params := cty.NilVal
		if op.Params != nil {
			v, diags := op.Params.Value(nil)
			if diags.HasErrors() {
				return nil, fmt.Errorf("plugin %s: operation '%s' params: %w", c.Path, op.Name, diags)
			}
			params = v
		}
		if _, err := registry.EncodeParams(params); err != nil {
			return nil, fmt.Errorf("plugin %s: operation '%s' params: %w", c.Path, op.Name, err)
		}

		arity, ctor, err := factory(params)
		if err != nil {
			return nil, fmt.Errorf("plugin %s: operation '%s': %w", c.Path, op.Name, err)
		}

		regs = append(regs, Registration{Descriptor: registry.Descriptor{
			Name:        op.Name,
			Arity:       arity,
			Description: op.Description,
			Source:      c.ModuleID,
			New:         ctor,
			Kind:        op.Handler,
			Params:      params,
		}})
	}

	logger.Debug("Plugin manifest loaded.", "path", c.Path, "operations", len(regs))
	return regs, nil
}
