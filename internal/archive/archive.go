// Package archive keeps the raw documents a collect run downloaded (sitemaps,
// JSON dumps, overview pages) so a run can be audited or replayed.
package archive

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Archiver stores one raw document under key.
type Archiver interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
}

// Config selects the archive backend. Kind is "", "dir" or "s3"; "" disables
// archiving.
type Config struct {
	Kind      string `yaml:"kind" mapstructure:"kind"`
	Dir       string `yaml:"dir" mapstructure:"dir"`
	Endpoint  string `yaml:"endpoint" mapstructure:"endpoint"`
	AccessKey string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey string `yaml:"secret_key" mapstructure:"secret_key"`
	Bucket    string `yaml:"bucket" mapstructure:"bucket"`
	Region    string `yaml:"region" mapstructure:"region"`
	UseSSL    bool   `yaml:"use_ssl" mapstructure:"use_ssl"`
}

// Open builds the configured Archiver. A nil Archiver with a nil error means
// archiving is off.
func Open(ctx context.Context, cfg Config) (Archiver, error) {
	switch cfg.Kind {
	case "", "none":
		return nil, nil
	case "dir":
		return NewDir(cfg.Dir)
	case "s3":
		return NewS3(ctx, cfg)
	default:
		return nil, eris.Errorf("archive: unknown kind %q (valid: dir, s3)", cfg.Kind)
	}
}

// Key builds "<source>/<UTC run time>/<name>".
func Key(source string, runAt time.Time, name string) string {
	return path.Join(source, runAt.UTC().Format("20060102T150405Z"), name)
}

// Dir archives into a local directory tree.
type Dir struct {
	root string
}

// NewDir creates root if needed.
func NewDir(root string) (*Dir, error) {
	if root == "" {
		return nil, eris.New("archive: dir is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, eris.Wrapf(err, "archive: create %s", root)
	}
	return &Dir{root: root}, nil
}

// Put writes body to root/key.
func (d *Dir) Put(_ context.Context, key string, body []byte, _ string) error {
	clean := filepath.FromSlash(path.Clean("/" + key))
	if strings.Trim(clean, string(filepath.Separator)) == "" {
		return eris.Errorf("archive: invalid key %q", key)
	}
	dst := filepath.Join(d.root, clean)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return eris.Wrapf(err, "archive: create dir for %s", key)
	}
	return eris.Wrapf(os.WriteFile(dst, body, 0o644), "archive: write %s", key)
}
