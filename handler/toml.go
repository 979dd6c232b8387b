package handler

import (
	"github.com/pelletier/go-toml/v2"

	"github.com/dshills/projconf/pipeline"
)

// TOML returns the handler for .toml artifacts. TOML artifacts merge into
// the document like JSON ones but never become the persistence target;
// document writes persist as JSON only.
func TOML() pipeline.Handler {
	return func(ctx *pipeline.Context, path string) error {
		return mergeArtifact(ctx, path, decodeTOML, false)
	}
}

func decodeTOML(data []byte) (map[string]any, error) {
	val := make(map[string]any)
	if err := toml.Unmarshal(data, &val); err != nil {
		return nil, err
	}
	return val, nil
}
