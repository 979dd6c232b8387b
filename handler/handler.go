// Package handler implements the built-in artifact handlers.
//
// JSON, TOML, and YAML artifacts decode to maps and deep-merge into the
// context's document. Lua artifacts run in a sandboxed interpreter with a
// small config API. Vim artifacts delegate to a host-supplied callback,
// since evaluating vimscript is the host's business.
package handler

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/dshills/projconf/pipeline"
)

// ErrNonObjectRoot is returned when a merge-family artifact decodes to
// something other than an object at the top level.
var ErrNonObjectRoot = errors.New("artifact root is not an object")

// decodeFunc decodes artifact bytes into a string-keyed map.
type decodeFunc func(data []byte) (map[string]any, error)

// mergeArtifact reads an artifact through the file cache, decodes it
// (reusing the cached decoded form when still valid), and merges it into
// the document. When markProject is set and the artifact corresponds to
// the current project, it becomes the persistence target.
func mergeArtifact(ctx *pipeline.Context, artifact string, decode decodeFunc, markProject bool) error {
	rec, err := ctx.Files.Read(artifact)
	if err != nil {
		return err
	}

	val, ok := rec.Parsed.(map[string]any)
	if !ok {
		val, err = decode(rec.Content)
		if err != nil {
			return fmt.Errorf("decode %s: %w", artifact, err)
		}
		ctx.Files.SetParsed(artifact, val)
	}

	ctx.Document().MergeValue(val)

	if markProject && artifactMatchesProject(ctx.ConfigDir, artifact, ctx.ProjectName()) {
		ctx.SetLastProjectJSON(artifact)
	}
	return nil
}

// artifactMatchesProject reports whether an artifact under configDir
// corresponds to the project name: its base name without extension, or
// its parent directory, equals the name or one of the outer prefixes of a
// nested name ("a" and "a/b" for name "a/b").
func artifactMatchesProject(configDir, artifact, name string) bool {
	if name == "" {
		return false
	}
	rel, err := filepath.Rel(configDir, artifact)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	rel = filepath.ToSlash(rel)
	stem := strings.TrimSuffix(rel, path.Ext(rel))
	parent := path.Dir(rel)

	parts := strings.Split(name, "/")
	prefix := ""
	for _, part := range parts {
		if prefix == "" {
			prefix = part
		} else {
			prefix = prefix + "/" + part
		}
		if stem == prefix || parent == prefix {
			return true
		}
	}
	return false
}
