package office

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// DefaultUserAgent is sent when downloading source documents.
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36"

// ErrNoSource is returned when inputs name neither a URL nor a local file.
var ErrNoSource = errors.New("Provide file_url/source_url or file_path.")

var officeExtensions = map[string]string{
	"application/pdf": ".pdf",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": ".pptx",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   ".docx",
	"application/vnd.ms-powerpoint":                                             ".ppt",
	"application/msword":                                                        ".doc",
	"application/vnd.oasis.opendocument.presentation":                           ".odp",
	"application/vnd.oasis.opendocument.text":                                   ".odt",
	"text/plain": ".txt",
	"text/html":  ".html",
}

// Fetcher materializes an agent's source document inside a work dir.
type Fetcher struct {
	Client    *http.Client
	UserAgent string
}

// NewFetcher builds a fetcher with the given request timeout.
func NewFetcher(userAgent string, timeout time.Duration) *Fetcher {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Fetcher{Client: &http.Client{Timeout: timeout}, UserAgent: userAgent}
}

// Fetch downloads file_url/source_url, or copies an existing file_path, into
// workDir and returns the local path.
func (f *Fetcher) Fetch(ctx context.Context, inputs map[string]any, workDir string) (string, error) {
	if u := firstString(inputs, "file_url", "source_url"); u != "" {
		return f.download(ctx, u, workDir)
	}

	if p := firstString(inputs, "file_path"); p != "" {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			dst := filepath.Join(workDir, filepath.Base(p))
			if err := copyFile(p, dst); err != nil {
				return "", err
			}
			return dst, nil
		}
	}

	return "", ErrNoSource
}

func (f *Fetcher) download(ctx context.Context, rawURL, workDir string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("Download error for %s: %v", rawURL, err)
	}
	req.Header.Set("User-Agent", f.UserAgent)
	req.Header.Set("Accept", "*/*")

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("Download error for %s: %v", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("Download failed (%d) for %s", resp.StatusCode, rawURL)
	}

	dst := filepath.Join(workDir, "input"+guessSuffix(rawURL, resp.Header.Get("Content-Type")))
	out, err := os.Create(dst)
	if err != nil {
		return "", errors.Wrap(err, "create download file")
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		return "", fmt.Errorf("Download error for %s: %v", rawURL, err)
	}
	if err := out.Close(); err != nil {
		return "", errors.Wrap(err, "close download file")
	}
	return dst, nil
}

func guessSuffix(rawURL, contentType string) string {
	mt, _, _ := mime.ParseMediaType(contentType)
	if ext, ok := officeExtensions[mt]; ok {
		return ext
	}

	var urlExt string
	if u, err := url.Parse(rawURL); err == nil {
		urlExt = path.Ext(u.Path)
	}

	if mt != "" && mt != "application/octet-stream" && mt != "binary/octet-stream" {
		if exts, err := mime.ExtensionsByType(mt); err == nil && len(exts) > 0 {
			return exts[0]
		}
	}
	return urlExt
}

func firstString(inputs map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := inputs[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrap(err, "open source file")
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return errors.Wrap(err, "create destination file")
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return errors.Wrapf(err, "copy %s", src)
	}
	return out.Close()
}
