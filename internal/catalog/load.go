package catalog

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/spf13/afero"
	"github.com/vk/magetbrain-bids/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

//go:embed default.hcl
var defaultCatalog []byte

// DefaultFilename is the name reported in diagnostics for the embedded catalog.
const DefaultFilename = "default.hcl"

// Environ returns the process environment as a map.
func Environ() map[string]string {
	env := make(map[string]string)
	for _, e := range os.Environ() {
		pair := strings.SplitN(e, "=", 2)
		if len(pair) == 2 {
			env[pair[0]] = pair[1]
		}
	}
	return env
}

// LoadDefault parses the embedded catalog.
func LoadDefault(ctx context.Context, env map[string]string) (*Catalog, error) {
	return Parse(ctx, defaultCatalog, DefaultFilename, env)
}

// LoadFile reads and parses a catalog from fsys.
func LoadFile(ctx context.Context, fsys afero.Fs, path string, env map[string]string) (*Catalog, error) {
	src, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog '%s': %w", path, err)
	}
	return Parse(ctx, src, path, env)
}

// Parse decodes an HCL catalog. Expressions may reference the env map and
// the functions lookup, coalesce, lower and format.
func Parse(ctx context.Context, src []byte, filename string, env map[string]string) (*Catalog, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Parsing atlas catalog.", "file", filename)

	file, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse catalog: %w", diags)
	}

	var c Catalog
	if diags := gohcl.DecodeBody(file.Body, evalContext(env), &c); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode catalog: %w", diags)
	}
	c.applyDefaults()
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("invalid catalog %s: %w", filename, err)
	}

	logger.Debug("Atlas catalog loaded.",
		"atlas_root", c.AtlasRoot,
		"atlas_sets", len(c.AtlasSets),
		"segmentations", c.Names(),
	)
	return &c, nil
}

func evalContext(env map[string]string) *hcl.EvalContext {
	envVal := cty.MapValEmpty(cty.String)
	if len(env) > 0 {
		vals := make(map[string]cty.Value, len(env))
		for k, v := range env {
			vals[k] = cty.StringVal(v)
		}
		envVal = cty.MapVal(vals)
	}

	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env": envVal,
		},
		Functions: map[string]function.Function{
			"lookup":   stdlib.LookupFunc,
			"coalesce": stdlib.CoalesceFunc,
			"lower":    stdlib.LowerFunc,
			"format":   stdlib.FormatFunc,
		},
	}
}
