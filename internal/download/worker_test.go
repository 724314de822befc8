package download

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap/zaptest"

	"whisper-transcribe/internal/domain"
	"whisper-transcribe/internal/jobs"
	"whisper-transcribe/internal/metrics"
)

// chunkedBody returns one scripted chunk per Read, then an optional error.
type chunkedBody struct {
	chunks [][]byte
	err    error
}

func (b *chunkedBody) Read(p []byte) (int, error) {
	if len(b.chunks) == 0 {
		if b.err != nil {
			return 0, b.err
		}
		return 0, io.EOF
	}
	n := copy(p, b.chunks[0])
	b.chunks = b.chunks[1:]
	return n, nil
}

func (b *chunkedBody) Close() error { return nil }

// roundTripFunc adapts a function to http.RoundTripper.
type roundTripFunc func(req *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func clientFor(status int, length int64, body io.ReadCloser) (*http.Client, *string) {
	var userAgent string
	client := &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		userAgent = req.Header.Get("User-Agent")
		return &http.Response{
			StatusCode:    status,
			ContentLength: length,
			Body:          body,
			Header:        http.Header{},
			Request:       req,
		}, nil
	})}
	return client, &userAgent
}

func runDownload(t *testing.T, w *Worker, dest string) []domain.DownloadMessage {
	t.Helper()
	box := jobs.NewMailbox[domain.DownloadMessage]()
	w.Run(context.Background(), domain.DownloadRequest{JobID: "dl-1", URL: "https://models.test/ggml-tiny.bin", Destination: dest}, box)
	return box.Drain()
}

// TestWorkerReportsProgressPerChunk checks the exact progress sequence and completion.
func TestWorkerReportsProgressPerChunk(t *testing.T) {
	body := &chunkedBody{chunks: [][]byte{
		bytes.Repeat([]byte{1}, 100),
		bytes.Repeat([]byte{2}, 250),
		bytes.Repeat([]byte{3}, 50),
	}}
	client, userAgent := clientFor(http.StatusOK, 400, body)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	dest := filepath.Join(t.TempDir(), "models", "ggml-tiny.bin")

	msgs := runDownload(t, NewWorker(client, zaptest.NewLogger(t), m), dest)

	want := []domain.DownloadMessage{
		domain.ProgressMessage(100, 400),
		domain.ProgressMessage(350, 400),
		domain.ProgressMessage(400, 400),
		domain.DownloadDoneMessage(dest),
	}
	if len(msgs) != len(want) {
		t.Fatalf("messages = %+v, want %+v", msgs, want)
	}
	for i := range want {
		if msgs[i] != want[i] {
			t.Fatalf("message[%d] = %+v, want %+v", i, msgs[i], want[i])
		}
	}

	info, err := os.Stat(dest)
	if err != nil || info.Size() != 400 {
		t.Fatalf("downloaded file = %v, %v, want 400 bytes", info, err)
	}
	if _, err := os.Stat(dest + ".download"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("temp file still present: %v", err)
	}
	if *userAgent != UserAgent {
		t.Fatalf("user agent = %q, want %q", *userAgent, UserAgent)
	}
	if got := testutil.ToFloat64(m.DownloadBytes); got != 400 {
		t.Fatalf("download bytes = %v, want 400", got)
	}
}

// TestWorkerUnknownLength checks a missing content length reports total 0.
func TestWorkerUnknownLength(t *testing.T) {
	body := &chunkedBody{chunks: [][]byte{make([]byte, 10), make([]byte, 5)}}
	client, _ := clientFor(http.StatusOK, -1, body)

	msgs := runDownload(t, NewWorker(client, nil, nil), filepath.Join(t.TempDir(), "m.bin"))

	if len(msgs) != 3 {
		t.Fatalf("messages = %+v, want 2 progress and done", msgs)
	}
	for _, msg := range msgs[:2] {
		if msg.BytesTotal != 0 {
			t.Fatalf("total = %d, want 0", msg.BytesTotal)
		}
	}
	status := domain.DownloadStatus{State: domain.DownloadInProgress}.Apply(msgs[1])
	if _, ok := status.Fraction(); ok {
		t.Fatal("Fraction() ok = true for unknown length")
	}
}

// TestWorkerHTTPErrorStatus checks non-2xx responses fail with the status code.
func TestWorkerHTTPErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "ggml-base.bin")
	box := jobs.NewMailbox[domain.DownloadMessage]()
	NewWorker(server.Client(), nil, nil).Run(context.Background(), domain.DownloadRequest{URL: server.URL + "/ggml-base.bin", Destination: dest}, box)
	msgs := box.Drain()

	if len(msgs) != 1 || msgs[0].Type != domain.DownloadMessageFailed {
		t.Fatalf("messages = %+v, want single Failed", msgs)
	}
	if !strings.Contains(msgs[0].Reason, "HTTP 404") {
		t.Fatalf("reason = %q, want HTTP 404", msgs[0].Reason)
	}
	if _, err := os.Stat(dest); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("destination created on failure: %v", err)
	}
}

// TestWorkerServesRealServer checks the httptest path end to end.
func TestWorkerServesRealServer(t *testing.T) {
	payload := bytes.Repeat([]byte("ggml"), 20000)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "nested", "dir", "ggml-small.bin")
	box := jobs.NewMailbox[domain.DownloadMessage]()
	NewWorker(server.Client(), nil, nil).Run(context.Background(), domain.DownloadRequest{URL: server.URL, Destination: dest}, box)
	msgs := box.Drain()

	var last uint64
	for _, msg := range msgs[:len(msgs)-1] {
		if msg.Type != domain.DownloadMessageProgress || msg.BytesDone < last {
			t.Fatalf("non-monotonic progress: %+v", msgs)
		}
		last = msg.BytesDone
	}
	if last != uint64(len(payload)) {
		t.Fatalf("final bytes = %d, want %d", last, len(payload))
	}
	final := msgs[len(msgs)-1]
	if final.Type != domain.DownloadMessageDone || final.Path != dest {
		t.Fatalf("final = %+v, want Done(%s)", final, dest)
	}
}

// TestWorkerStreamErrorRemovesPartialFile checks interrupted downloads clean up.
func TestWorkerStreamErrorRemovesPartialFile(t *testing.T) {
	body := &chunkedBody{chunks: [][]byte{make([]byte, 100)}, err: errors.New("connection reset")}
	client, _ := clientFor(http.StatusOK, 400, body)
	dest := filepath.Join(t.TempDir(), "ggml-medium.bin")

	msgs := runDownload(t, NewWorker(client, nil, nil), dest)

	if len(msgs) != 2 || msgs[0].BytesDone != 100 || msgs[1].Type != domain.DownloadMessageFailed {
		t.Fatalf("messages = %+v, want progress then Failed", msgs)
	}
	if !strings.Contains(msgs[1].Reason, "connection reset") {
		t.Fatalf("reason = %q", msgs[1].Reason)
	}
	for _, path := range []string{dest, dest + ".download"} {
		if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("%s left behind: %v", path, err)
		}
	}
}

// TestWorkerMkdirFailure checks directory creation errors are fatal.
func TestWorkerMkdirFailure(t *testing.T) {
	client, _ := clientFor(http.StatusOK, 0, &chunkedBody{})
	w := NewWorker(client, nil, nil)
	w.mkdirAll = func(path string, perm os.FileMode) error { return errors.New("read-only file system") }

	msgs := runDownload(t, w, "models/ggml-tiny.bin")

	if len(msgs) != 1 || msgs[0].Type != domain.DownloadMessageFailed {
		t.Fatalf("messages = %+v, want single Failed", msgs)
	}
	if !strings.Contains(msgs[0].Reason, "read-only file system") {
		t.Fatalf("reason = %q", msgs[0].Reason)
	}
}

// TestWorkerAbsFallback checks the relative path is kept when resolution fails.
func TestWorkerAbsFallback(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	client, _ := clientFor(http.StatusOK, 3, &chunkedBody{chunks: [][]byte{[]byte("abc")}})
	w := NewWorker(client, nil, nil)
	w.abs = func(path string) (string, error) { return "", errors.New("getwd failed") }

	msgs := runDownload(t, w, filepath.Join("models", "ggml-tiny.bin"))

	final := msgs[len(msgs)-1]
	if final.Type != domain.DownloadMessageDone || final.Path != filepath.Join("models", "ggml-tiny.bin") {
		t.Fatalf("final = %+v, want relative Done path", final)
	}
}
