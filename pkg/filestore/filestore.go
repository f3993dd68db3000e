package filestore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/spf13/afero"
)

// Store keeps uploaded deliverables under content-addressed paths.
type Store interface {
	Exists(ctx context.Context, name string) (bool, error)
	Save(ctx context.Context, name string, reader io.Reader) (string, error)
	URL(name string) string
}

// Local stores files on an afero filesystem and serves them from a public base URL.
type Local struct {
	fs        afero.Fs
	root      string
	publicURL string
}

// NewLocal creates a store rooted at root on fs. publicURL is prefixed to stored names.
func NewLocal(fs afero.Fs, root, publicURL string) *Local {
	return &Local{
		fs:        fs,
		root:      root,
		publicURL: strings.TrimRight(publicURL, "/"),
	}
}

// NewOS creates a local store on the operating system filesystem.
func NewOS(root, publicURL string) *Local {
	return NewLocal(afero.NewOsFs(), root, publicURL)
}

func (l *Local) resolve(name string) (string, error) {
	clean := path.Clean("/" + name)
	if clean == "/" {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	return path.Join(l.root, clean), nil
}

func (l *Local) Exists(_ context.Context, name string) (bool, error) {
	target, err := l.resolve(name)
	if err != nil {
		return false, err
	}
	return afero.Exists(l.fs, target)
}

func (l *Local) Save(_ context.Context, name string, reader io.Reader) (string, error) {
	target, err := l.resolve(name)
	if err != nil {
		return "", err
	}
	if err := l.fs.MkdirAll(path.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("create directory: %w", err)
	}

	file, err := l.fs.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", target, err)
	}
	if _, err := io.Copy(file, reader); err != nil {
		_ = file.Close()
		return "", fmt.Errorf("write %s: %w", target, err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", target, err)
	}

	return l.URL(name), nil
}

func (l *Local) URL(name string) string {
	return l.publicURL + "/" + strings.TrimLeft(path.Clean("/"+name), "/")
}
