package handler

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/dshills/projconf/pipeline"
)

// YAML returns the handler for .yaml and .yml artifacts. Like TOML, YAML
// artifacts merge but are never the persistence target.
func YAML() pipeline.Handler {
	return func(ctx *pipeline.Context, path string) error {
		return mergeArtifact(ctx, path, decodeYAML, false)
	}
}

func decodeYAML(data []byte) (map[string]any, error) {
	var val any
	if err := yaml.Unmarshal(data, &val); err != nil {
		return nil, err
	}
	if val == nil {
		return map[string]any{}, nil
	}
	obj, ok := val.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: got %T", ErrNonObjectRoot, val)
	}
	return obj, nil
}
