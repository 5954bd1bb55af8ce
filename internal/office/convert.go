package office

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Converter turns a document into another format inside outdir and returns
// the produced file.
type Converter interface {
	Convert(ctx context.Context, src, format, outdir string) (string, error)
}

// Soffice converts documents with a headless LibreOffice.
type Soffice struct {
	Bin     string
	Timeout time.Duration
	Logger  *slog.Logger
}

// NewSoffice builds a converter around the soffice binary.
func NewSoffice(bin string, timeout time.Duration, logger *slog.Logger) *Soffice {
	if bin == "" {
		bin = "soffice"
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Soffice{Bin: bin, Timeout: timeout, Logger: logger}
}

// Convert runs soffice --headless --convert-to format --outdir outdir src.
// Each call gets a throwaway user profile so concurrent conversions do not
// contend for the profile lock.
func (s *Soffice) Convert(ctx context.Context, src, format, outdir string) (string, error) {
	if err := os.MkdirAll(outdir, 0o755); err != nil {
		return "", errors.Wrap(err, "create output dir")
	}

	profile, err := os.MkdirTemp("", "lo-profile-*")
	if err != nil {
		return "", errors.Wrap(err, "create soffice profile")
	}
	defer os.RemoveAll(profile)

	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	profileURL := (&url.URL{Scheme: "file", Path: filepath.ToSlash(profile)}).String()
	args := []string{
		"--headless",
		"-env:UserInstallation=" + profileURL,
		"--convert-to", format,
		"--outdir", outdir,
		src,
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, s.Bin, args...)
	cmd.Stderr = &stderr
	cmd.Stdout = io.Discard

	started := time.Now()
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", errors.Errorf("%s %s\n%s", s.Bin, strings.Join(args, " "), msg)
	}
	s.Logger.Debug("soffice conversion finished", "src", filepath.Base(src), "format", format, "duration", time.Since(started))

	return LocateOutput(src, format, outdir)
}

// LocateOutput finds the file soffice produced for src. For html exports it
// prefers {stem}.html and falls back to any .html file; for other formats it
// prefers {stem}.{ext} and falls back to any {stem}.* file.
func LocateOutput(src, format, outdir string) (string, error) {
	stem := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	base, _, _ := strings.Cut(format, ":")
	ext := "." + strings.ToLower(base)

	want := filepath.Join(outdir, stem+ext)
	if fileExists(want) {
		return want, nil
	}

	entries, err := os.ReadDir(outdir)
	if err != nil {
		return "", errors.Wrap(err, "read output dir")
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if ext == ".html" {
			if strings.EqualFold(filepath.Ext(name), ".html") {
				return filepath.Join(outdir, name), nil
			}
			continue
		}
		if strings.HasPrefix(name, stem+".") {
			return filepath.Join(outdir, name), nil
		}
	}

	if ext == ".html" {
		return "", errors.New("HTML export did not produce an .html file")
	}
	return "", errors.Errorf("Conversion to %s failed (no output)", format)
}

// ZipTree archives the directory holding htmlPath into destDir/{stem}.zip.
// destDir must not be inside that directory.
func ZipTree(htmlPath, destDir string) (string, error) {
	root := filepath.Dir(htmlPath)
	stem := strings.TrimSuffix(filepath.Base(htmlPath), filepath.Ext(htmlPath))
	zipPath := filepath.Join(destDir, stem+".zip")

	out, err := os.Create(zipPath)
	if err != nil {
		return "", errors.Wrap(err, "create zip")
	}
	zw := zip.NewWriter(out)

	walkErr := filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		hdr, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		hdr.Method = zip.Deflate

		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return err
		}
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(w, f)
		return err
	})

	if cerr := zw.Close(); walkErr == nil {
		walkErr = cerr
	}
	if cerr := out.Close(); walkErr == nil {
		walkErr = cerr
	}
	if walkErr != nil {
		os.Remove(zipPath)
		return "", errors.Wrap(walkErr, "zip html tree")
	}
	return zipPath, nil
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}
