package handler

import "github.com/dshills/projconf/pipeline"

// Vim adapts a host-supplied callback into the handler for .vim
// artifacts. Evaluating vimscript is the host's business; the engine only
// routes the artifact to the callback. Vim returns nil when no callback
// is supplied, and an unrouted extension is skipped by the execute stage,
// so the artifact never counts as loaded.
func Vim(host pipeline.Handler) pipeline.Handler {
	return host
}
