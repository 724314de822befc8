// Package download streams model files to disk and reports byte progress.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"whisper-transcribe/internal/domain"
	"whisper-transcribe/internal/jobs"
	"whisper-transcribe/internal/metrics"
)

// UserAgent is sent with every download request.
const UserAgent = "whisper-transcribe"

const chunkSize = 32 * 1024

// Worker downloads one file per Run. Partial files are never resumed.
type Worker struct {
	client  *http.Client
	logger  *zap.Logger
	metrics *metrics.Metrics

	mkdirAll func(path string, perm os.FileMode) error
	create   func(name string) (*os.File, error)
	rename   func(oldpath, newpath string) error
	remove   func(name string) error
	abs      func(path string) (string, error)
}

// NewWorker builds a worker. A nil client gets a dedicated http.Client.
func NewWorker(client *http.Client, logger *zap.Logger, m *metrics.Metrics) *Worker {
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		client:   client,
		logger:   logger,
		metrics:  m,
		mkdirAll: os.MkdirAll,
		create:   os.Create,
		rename:   os.Rename,
		remove:   os.Remove,
		abs:      filepath.Abs,
	}
}

// Run sends one Progress message per received chunk followed by exactly one
// Done or Failed message.
func (w *Worker) Run(ctx context.Context, req domain.DownloadRequest, sink jobs.Sink[domain.DownloadMessage]) {
	logger := w.logger.With(zap.String("jobId", req.JobID), zap.String("url", req.URL))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("download worker panicked", zap.Any("panic", r), zap.Stack("stack"))
			w.metrics.RecordDownload("failed")
			sink.Send(domain.DownloadFailedMessage(fmt.Sprintf("internal error: %v", r)))
		}
	}()

	path, err := w.download(ctx, req, sink)
	if err != nil {
		logger.Error("download failed", zap.String("kind", string(domain.KindOf(err))), zap.Error(err))
		w.metrics.RecordDownload("failed")
		sink.Send(domain.DownloadFailedMessage(err.Error()))
		return
	}

	logger.Info("download done", zap.String("path", path))
	w.metrics.RecordDownload("done")
	sink.Send(domain.DownloadDoneMessage(path))
}

func (w *Worker) download(ctx context.Context, req domain.DownloadRequest, sink jobs.Sink[domain.DownloadMessage]) (string, error) {
	if err := w.mkdirAll(filepath.Dir(req.Destination), 0o755); err != nil {
		return "", &domain.JobError{Kind: domain.KindIO, Message: "prepare destination directory", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return "", &domain.JobError{Kind: domain.KindNetwork, Message: "build request", Err: err}
	}
	httpReq.Header.Set("User-Agent", UserAgent)

	resp, err := w.client.Do(httpReq)
	if err != nil {
		return "", &domain.JobError{Kind: domain.KindNetwork, Message: "request download", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &domain.JobError{Kind: domain.KindNetwork, Message: fmt.Sprintf("download failed: HTTP %d", resp.StatusCode)}
	}

	var total uint64
	if resp.ContentLength > 0 {
		total = uint64(resp.ContentLength)
	}

	tmpPath := req.Destination + ".download"
	if err := w.remove(tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", &domain.JobError{Kind: domain.KindIO, Message: "remove stale temp file", Err: err}
	}
	file, err := w.create(tmpPath)
	if err != nil {
		return "", &domain.JobError{Kind: domain.KindIO, Message: "create destination file", Err: err}
	}

	if err := w.copyChunks(file, resp.Body, total, sink); err != nil {
		_ = file.Close()
		_ = w.remove(tmpPath)
		return "", err
	}
	if err := file.Close(); err != nil {
		_ = w.remove(tmpPath)
		return "", &domain.JobError{Kind: domain.KindIO, Message: "close destination file", Err: err}
	}
	if err := w.rename(tmpPath, req.Destination); err != nil {
		_ = w.remove(tmpPath)
		return "", &domain.JobError{Kind: domain.KindIO, Message: "move downloaded file into place", Err: err}
	}

	absPath, err := w.abs(req.Destination)
	if err != nil {
		return req.Destination, nil
	}
	return absPath, nil
}

// copyChunks writes body to dst, reporting the running total after every read.
func (w *Worker) copyChunks(dst io.Writer, body io.Reader, total uint64, sink jobs.Sink[domain.DownloadMessage]) error {
	buf := make([]byte, chunkSize)
	var done uint64
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return &domain.JobError{Kind: domain.KindIO, Message: "write destination file", Err: err}
			}
			done += uint64(n)
			w.metrics.AddDownloadBytes(n)
			sink.Send(domain.ProgressMessage(done, total))
		}
		if errors.Is(readErr, io.EOF) {
			return nil
		}
		if readErr != nil {
			return &domain.JobError{Kind: domain.KindNetwork, Message: "read download stream", Err: readErr}
		}
	}
}
