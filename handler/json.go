package handler

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/jsonc"

	"github.com/dshills/projconf/pipeline"
)

// JSON returns the handler for .json artifacts. The decoded object merges
// into the document under later-wins semantics, and a project-matching
// artifact becomes the persistence target for document writes. Comments
// and trailing commas are tolerated, as editor configuration files
// commonly carry them.
func JSON() pipeline.Handler {
	return func(ctx *pipeline.Context, path string) error {
		return mergeArtifact(ctx, path, decodeJSON, true)
	}
}

func decodeJSON(data []byte) (map[string]any, error) {
	var val any
	if err := json.Unmarshal(jsonc.ToJSON(data), &val); err != nil {
		return nil, err
	}
	obj, ok := val.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: got %T", ErrNonObjectRoot, val)
	}
	return obj, nil
}
