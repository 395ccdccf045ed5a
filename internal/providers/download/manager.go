// Package download is the host download facility the broker relays. It
// streams a response into a download directory, reports progress and
// removes partial files when a transfer fails or is cancelled.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	httpx "github.com/GriffinCanCode/scriptgate/internal/providers/http"
)

// ErrHTTPStatus is returned for non-2xx responses.
var ErrHTTPStatus = errors.New("download failed")

const progressChunk = 32 << 10

// partialSuffix marks a file still being written.
const partialSuffix = ".part"

// Transport performs the request.
type Transport interface {
	Do(ctx context.Context, req httpx.Request) (*httpx.Response, error)
}

// Request describes one download.
type Request struct {
	URL      string
	Filename string
	Headers  map[string]string
}

// Progress is reported while bytes arrive. Total is -1 when unknown.
type Progress struct {
	Loaded int64
	Total  int64
}

// Result describes a finished download.
type Result struct {
	Path        string `json:"path"`
	Filename    string `json:"filename"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType"`
}

// Manager writes downloads into one directory.
type Manager struct {
	dir       string
	transport Transport
	logger    *zap.Logger
	mu        sync.Mutex // guards name reservation
	reserved  map[string]bool
}

// NewManager creates a manager writing into dir.
func NewManager(dir string, transport Transport, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		dir:       dir,
		transport: transport,
		logger:    logger,
		reserved:  make(map[string]bool),
	}
}

// Dir returns the download directory.
func (m *Manager) Dir() string {
	return m.dir
}

// Download transfers req.URL. Cancelling ctx stops the transfer and removes
// the partial file.
func (m *Manager) Download(ctx context.Context, req Request, progress func(Progress)) (*Result, error) {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	resp, err := m.transport.Do(ctx, httpx.Request{Method: "GET", URL: req.URL, Headers: req.Headers})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.Status < 200 || resp.Status >= 300 {
		return nil, fmt.Errorf("%w: HTTP %d", ErrHTTPStatus, resp.Status)
	}

	name := SanitizeFilename(req.Filename)
	if name == "" {
		name = SanitizeFilename(filenameFromURL(resp.FinalURL))
	}
	if name == "" {
		name = "download"
	}

	final, release, err := m.reserve(name)
	if err != nil {
		return nil, err
	}
	defer release()

	partial := final + partialSuffix
	size, err := m.copy(ctx, partial, resp, progress)
	if err != nil {
		os.Remove(partial)
		return nil, err
	}
	if err := os.Rename(partial, final); err != nil {
		os.Remove(partial)
		return nil, fmt.Errorf("failed to finalize download: %w", err)
	}

	contentType := "application/octet-stream"
	if mt, err := mimetype.DetectFile(final); err == nil {
		contentType = mt.String()
	}

	m.logger.Info("Download completed",
		zap.String("url", req.URL),
		zap.String("path", final),
		zap.Int64("size", size),
	)

	return &Result{
		Path:        final,
		Filename:    filepath.Base(final),
		Size:        size,
		ContentType: contentType,
	}, nil
}

func (m *Manager) copy(ctx context.Context, dst string, resp *httpx.Response, progress func(Progress)) (int64, error) {
	f, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	buf := make([]byte, progressChunk)
	var loaded int64
	for {
		if err := ctx.Err(); err != nil {
			return loaded, err
		}
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, err := f.Write(buf[:n]); err != nil {
				return loaded, fmt.Errorf("failed to write file: %w", err)
			}
			loaded += int64(n)
			if progress != nil {
				progress(Progress{Loaded: loaded, Total: resp.ContentLength})
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return loaded, ctxErr
			}
			return loaded, readErr
		}
	}
	return loaded, f.Sync()
}

// reserve picks a free "name", "name (1)", ... in the download directory.
func (m *Manager) reserve(name string) (string, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for i := 0; i < 1000; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s (%d)%s", base, i, ext)
		}
		full := filepath.Join(m.dir, candidate)
		partial := full + partialSuffix
		if m.taken(full) || m.taken(partial) {
			continue
		}
		m.reserved[full] = true
		m.reserved[partial] = true
		return full, func() {
			m.mu.Lock()
			delete(m.reserved, full)
			delete(m.reserved, partial)
			m.mu.Unlock()
		}, nil
	}
	return "", nil, fmt.Errorf("no free filename for %q", name)
}

// taken reports whether full is reserved by a running transfer or exists.
func (m *Manager) taken(full string) bool {
	if m.reserved[full] {
		return true
	}
	_, err := os.Lstat(full)
	return err == nil
}

func filenameFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	name := path.Base(u.Path)
	if name == "/" || name == "." {
		return ""
	}
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	return name
}

// SanitizeFilename reduces name to a single safe path element. It returns
// "" when nothing usable is left.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(name)

	var b strings.Builder
	for _, r := range name {
		switch {
		case r < 0x20 || r == 0x7f:
		case strings.ContainsRune(`<>:"/\|?*`, r):
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}

	clean := strings.Trim(b.String(), " .")
	if clean == "" || clean == "_" {
		return ""
	}
	if len(clean) > 200 {
		ext := filepath.Ext(clean)
		if len(ext) > 20 {
			ext = ""
		}
		clean = strings.ToValidUTF8(clean[:200-len(ext)], "") + ext
	}
	return clean
}
