package artifact

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/antoniostano/codeforge/internal/generation"
	"github.com/antoniostano/codeforge/internal/logging"
)

var ErrNothingToWrite = errors.New("reply contains no code")

// FileBuilder writes generated sites under root/<kind>_<appID>.
type FileBuilder struct {
	root string
	log  logrus.FieldLogger
}

func NewFileBuilder(root string, log logrus.FieldLogger) *FileBuilder {
	if log == nil {
		log = logging.Discard()
	}
	return &FileBuilder{root: root, log: log}
}

// Dir is the output directory for an application and kind.
func (b *FileBuilder) Dir(appID int64, kind generation.Kind) string {
	return filepath.Join(b.root, fmt.Sprintf("%s_%d", kind, appID))
}

// Build parses content for kind and writes the resulting files. Project
// scaffolds are produced by tool calls during generation, so only their
// directory is reported.
func (b *FileBuilder) Build(ctx context.Context, appID int64, kind generation.Kind, content string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dir := b.Dir(appID, kind)

	var files map[string]string
	switch kind {
	case generation.KindHTML:
		page := ParseSingleFile(content)
		if page.HTML == "" {
			return "", ErrNothingToWrite
		}
		files = map[string]string{"index.html": page.HTML}
	case generation.KindMultiFile:
		site := ParseMultiFile(content)
		if site.HTML == "" && site.CSS == "" && site.JS == "" {
			return "", ErrNothingToWrite
		}
		files = map[string]string{
			"index.html": site.HTML,
			"style.css":  site.CSS,
			"script.js":  site.JS,
		}
	case generation.KindVueProject:
		b.log.WithField("dir", dir).Debug("project scaffold left as written by tools")
		return dir, nil
	default:
		return "", fmt.Errorf("no artifact layout for kind %q", kind)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	for name, body := range files {
		if err := writeFileAtomic(filepath.Join(dir, name), body); err != nil {
			return "", err
		}
	}
	return dir, nil
}

func writeFileAtomic(path, body string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if _, err := tmp.WriteString(body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}
