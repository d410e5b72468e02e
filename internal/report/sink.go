package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Sink stores a rendered artifact under name, overwriting any previous one.
type Sink interface {
	Put(ctx context.Context, name string, contentType string, body []byte) (string, error)
}

// DirSink writes artifacts into a local directory. Each write lands in a
// temp file first and is renamed into place, so readers never see a partial
// report.
type DirSink struct {
	Dir string
}

func (s DirSink) Put(_ context.Context, name string, _ string, body []byte) (string, error) {
	if name == "" || filepath.Base(name) != name {
		return "", fmt.Errorf("invalid artifact name %q", name)
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}

	tmp, err := os.CreateTemp(s.Dir, "."+name+".*")
	if err != nil {
		return "", err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(body); err != nil {
		_ = tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}

	target := filepath.Join(s.Dir, name)
	if err := os.Rename(tmpName, target); err != nil {
		return "", err
	}
	return target, nil
}

type DiscardSink struct{}

func (DiscardSink) Put(context.Context, string, string, []byte) (string, error) {
	return "", nil
}
