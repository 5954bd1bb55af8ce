package artifacts

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
)

// Store persists generated files and returns a key plus a public URL.
type Store interface {
	Save(ctx context.Context, localPath, name string) (key, url string, err error)
}

// LocalStore copies artifacts into a directory served under /artifacts/.
type LocalStore struct {
	dir     string
	baseURL string
	logger  *slog.Logger
}

// NewLocalStore builds a store rooted at dir. URLs are baseURL + "/artifacts/" + name.
func NewLocalStore(dir, baseURL string, logger *slog.Logger) *LocalStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/"), logger: logger}
}

// Dir returns the root directory.
func (s *LocalStore) Dir() string { return s.dir }

// Save copies localPath into the store. An existing name is never overwritten;
// the copy becomes {stem}_{random}{ext} instead.
func (s *LocalStore) Save(ctx context.Context, localPath, name string) (string, string, error) {
	if name == "" {
		name = filepath.Base(localPath)
	}
	name = filepath.Base(name)

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", "", errors.Wrap(err, "create artifacts dir")
	}

	src, err := os.Open(localPath)
	if err != nil {
		return "", "", errors.Wrap(err, "open artifact source")
	}
	defer src.Close()

	dst, final, err := s.create(name)
	if err != nil {
		return "", "", err
	}

	n, err := io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(filepath.Join(s.dir, final))
		return "", "", errors.Wrapf(err, "copy artifact %s", final)
	}

	s.logger.Info("artifact saved", "name", final, "size", humanize.IBytes(uint64(n)))
	return final, s.baseURL + "/artifacts/" + final, nil
}

func (s *LocalStore) create(name string) (*os.File, string, error) {
	candidate := name
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	for i := 0; i < 8; i++ {
		f, err := os.OpenFile(filepath.Join(s.dir, candidate), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, candidate, nil
		}
		if !os.IsExist(err) {
			return nil, "", errors.Wrapf(err, "create artifact %s", candidate)
		}
		candidate = stem + "_" + randomSuffix() + ext
	}
	return nil, "", errors.Errorf("could not allocate a unique name for %s", name)
}

func randomSuffix() string {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
