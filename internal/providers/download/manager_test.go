package download

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	httpx "github.com/GriffinCanCode/scriptgate/internal/providers/http"
)

// chunkReader returns one chunk per Read and calls onRead after each.
type chunkReader struct {
	chunks [][]byte
	onRead func(i int)
	i      int
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if r.i >= len(r.chunks) {
		return 0, io.EOF
	}
	n := copy(p, r.chunks[r.i])
	if r.onRead != nil {
		r.onRead(r.i)
	}
	r.i++
	return n, nil
}

func (r *chunkReader) Close() error { return nil }

type fakeTransport struct {
	status int
	final  string
	body   io.ReadCloser
	length int64
	err    error
	got    httpx.Request
}

func (f *fakeTransport) Do(ctx context.Context, req httpx.Request) (*httpx.Response, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	final := f.final
	if final == "" {
		final = req.URL
	}
	return &httpx.Response{Status: f.status, FinalURL: final, ContentLength: f.length, Body: f.body}, nil
}

func TestDownload(t *testing.T) {
	dir := t.TempDir()
	transport := &fakeTransport{
		status: 200,
		length: 10,
		body:   &chunkReader{chunks: [][]byte{[]byte("hello"), []byte(" worl"), []byte("d")}},
	}
	m := NewManager(dir, transport, zap.NewNop())

	var progress []Progress
	res, err := m.Download(context.Background(), Request{URL: "https://example.com/files/report.txt"}, func(p Progress) {
		progress = append(progress, p)
	})
	require.NoError(t, err)

	assert.Equal(t, "report.txt", res.Filename)
	assert.Equal(t, filepath.Join(dir, "report.txt"), res.Path)
	assert.Equal(t, int64(11), res.Size)
	assert.True(t, strings.HasPrefix(res.ContentType, "text/plain"))
	assert.Equal(t, []Progress{{5, 10}, {10, 10}, {11, 10}}, progress)

	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
	assert.Equal(t, "GET", transport.got.Method)
}

func TestDownloadUniqueName(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("old"), 0o644))

	m := NewManager(dir, &fakeTransport{status: 200, body: io.NopCloser(strings.NewReader("new"))}, nil)
	res, err := m.Download(context.Background(), Request{URL: "https://example.com/x", Filename: "../../a.txt"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "a (1).txt", res.Filename)
}

func TestReserveCoversPartialFile(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir, nil, nil)

	final, release, err := m.reserve("x")
	require.NoError(t, err)
	defer release()
	assert.Equal(t, filepath.Join(dir, "x"), final)

	// Another transfer asking for the first one's partial name must not get it.
	other, releaseOther, err := m.reserve("x.part")
	require.NoError(t, err)
	defer releaseOther()
	assert.Equal(t, filepath.Join(dir, "x (1).part"), other)

	// A leftover partial file on disk also blocks the name.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "y.bin.part"), []byte("stale"), 0o644))
	next, releaseNext, err := m.reserve("y.bin")
	require.NoError(t, err)
	defer releaseNext()
	assert.Equal(t, filepath.Join(dir, "y (1).bin"), next)

	release()
	again, releaseAgain, err := m.reserve("x.part")
	require.NoError(t, err)
	defer releaseAgain()
	assert.Equal(t, filepath.Join(dir, "x.part"), again)
}

func TestDownloadCancelledMidTransfer(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())

	body := &chunkReader{
		chunks: [][]byte{[]byte("part1"), []byte("part2"), []byte("part3")},
		onRead: func(i int) {
			if i == 0 {
				cancel()
			}
		},
	}
	m := NewManager(dir, &fakeTransport{status: 200, body: body}, nil)

	_, err := m.Download(ctx, Request{URL: "https://example.com/big.bin"}, nil)
	assert.ErrorIs(t, err, context.Canceled)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "partial file must be removed")
}

func TestDownloadErrors(t *testing.T) {
	m := NewManager(t.TempDir(), &fakeTransport{status: 404, body: io.NopCloser(strings.NewReader(""))}, nil)
	_, err := m.Download(context.Background(), Request{URL: "https://example.com/missing"}, nil)
	assert.ErrorIs(t, err, ErrHTTPStatus)

	boom := errors.New("connection refused")
	m = NewManager(t.TempDir(), &fakeTransport{err: boom}, nil)
	_, err = m.Download(context.Background(), Request{URL: "https://example.com/"}, nil)
	assert.ErrorIs(t, err, boom)
}

func TestDownloadDefaultName(t *testing.T) {
	m := NewManager(t.TempDir(), &fakeTransport{status: 200, body: io.NopCloser(strings.NewReader("x"))}, nil)
	res, err := m.Download(context.Background(), Request{URL: "https://example.com/"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "download", res.Filename)
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"report.pdf", "report.pdf"},
		{"../../etc/passwd", "passwd"},
		{`..\..\windows\system32.dll`, "system32.dll"},
		{"a<b>c:d.txt", "a_b_c_d.txt"},
		{"tab\tname.txt", "tabname.txt"},
		{"..", ""},
		{"", ""},
		{" .hidden. ", "hidden"},
		{"/", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeFilename(tt.in))
		})
	}
	assert.LessOrEqual(t, len(SanitizeFilename(strings.Repeat("x", 300)+".txt")), 200)
}
