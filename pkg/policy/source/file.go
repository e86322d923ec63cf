package source

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/policy/card"
)

// FileSource reads a policy card from a YAML or JSON file.
type FileSource struct {
	path     string
	debounce time.Duration
	logger   *slog.Logger
}

// NewFileSource creates a file source. debounce is the quiet period before a
// change is reported by Watch; zero uses DefaultDebounce.
func NewFileSource(path string, debounce time.Duration) *FileSource {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &FileSource{
		path:     path,
		debounce: debounce,
		logger:   slog.Default().With("component", "policy.source.file"),
	}
}

// Load implements Source.
func (s *FileSource) Load(ctx context.Context) (*card.Document, *card.Provenance, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read policy file: %w", err)
	}

	doc, err := card.LoadBytes(data, s.path)
	if err != nil {
		return nil, nil, err
	}

	s.logger.Debug("policy card loaded", "path", s.path, "policy", doc.Name, "rules", len(doc.Rules))
	return doc, provenance(s.path, data), nil
}

// Watch watches the file's directory so that editors replacing the file by
// rename are still seen. It blocks until ctx is cancelled.
func (s *FileSource) Watch(ctx context.Context, onChange func()) error {
	abs, err := filepath.Abs(s.path)
	if err != nil {
		return err
	}

	fw, err := NewFileWatcher(&FileWatcherConfig{
		Dir:              filepath.Dir(abs),
		File:             filepath.Base(abs),
		DebounceInterval: s.debounce,
	}, s.logger)
	if err != nil {
		return err
	}
	defer fw.Stop()

	return fw.Watch(ctx, func() error {
		onChange()
		return nil
	})
}

func (s *FileSource) String() string {
	return s.path
}
