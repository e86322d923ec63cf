// Package source loads policy cards from files, git repositories or memory.
//
// Every Source returns the validated document together with its
// provenance: where it was read from, the SHA-256 digest of the raw bytes
// and, for git, the commit it was read at.
//
//	src := source.NewFileSource("policies/geo.yaml", 0)
//	doc, prov, err := src.Load(ctx)
//
// FileSource and GitSource also implement Watcher. File watching uses
// fsnotify on the containing directory with a debounce; git watching polls
// the selected branch for new commits.
package source
