package jobs

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"whisper-transcribe/internal/domain"
)

// Transcriber runs one transcription job to completion, reporting through sink.
type Transcriber interface {
	Run(ctx context.Context, req domain.TranscriptionRequest, sink Sink[domain.TranscriptionMessage])
}

// Downloader runs one model download to completion, reporting through sink.
type Downloader interface {
	Run(ctx context.Context, req domain.DownloadRequest, sink Sink[domain.DownloadMessage])
}

// slot holds the mailbox of the one live job of a kind.
type slot[T any] struct {
	id      string
	mailbox *Mailbox[T]
}

// Controller owns the selection, at most one transcription and one download
// mailbox, and the AppState derived from their messages.
type Controller struct {
	mu          sync.Mutex
	transcriber Transcriber
	downloader  Downloader
	logger      *zap.Logger
	newID       func() string
	spawn       func(func())

	state         domain.AppState
	transcription *slot[domain.TranscriptionMessage]
	download      *slot[domain.DownloadMessage]
}

// ControllerOption customizes a Controller.
type ControllerOption func(*Controller)

// WithLogger sets the controller logger.
func WithLogger(logger *zap.Logger) ControllerOption {
	return func(c *Controller) { c.logger = logger }
}

// WithIDGenerator replaces uuid job identifiers.
func WithIDGenerator(fn func() string) ControllerOption {
	return func(c *Controller) { c.newID = fn }
}

// WithSpawner replaces the goroutine launcher, mainly for deterministic tests.
func WithSpawner(fn func(func())) ControllerOption {
	return func(c *Controller) { c.spawn = fn }
}

// NewController creates an idle controller.
func NewController(transcriber Transcriber, downloader Downloader, opts ...ControllerOption) *Controller {
	c := &Controller{
		transcriber: transcriber,
		downloader:  downloader,
		logger:      zap.NewNop(),
		newID:       uuid.NewString,
		spawn:       func(fn func()) { go fn() },
		state: domain.AppState{
			Transcription: domain.TranscriptionStatus{State: domain.TranscriptionIdle},
			Download:      domain.DownloadStatus{State: domain.DownloadIdle},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SelectModel sets the model used by the next transcription.
func (c *Controller) SelectModel(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.ModelPath = strings.TrimSpace(path)
}

// SelectAudio sets the audio file used by the next transcription.
func (c *Controller) SelectAudio(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.AudioPath = strings.TrimSpace(path)
}

// SetAcceleratorHint records the advisory environment-based accelerator signal.
func (c *Controller) SetAcceleratorHint(available bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.AcceleratorHint = available
}

// StartTranscription spawns a worker for the current selection and returns
// its job id. A job already in flight is abandoned, not stopped.
func (c *Controller) StartTranscription() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.ModelPath == "" {
		return "", &domain.JobError{Kind: domain.KindConfig, Message: "cannot start transcription", Err: domain.ErrNoModelSelected}
	}
	if c.state.AudioPath == "" {
		return "", &domain.JobError{Kind: domain.KindConfig, Message: "cannot start transcription", Err: domain.ErrNoAudioSelected}
	}

	if c.transcription != nil {
		c.logger.Warn("replacing in-flight transcription; its result will be discarded",
			zap.String("jobId", c.transcription.id))
		c.transcription.mailbox.Close()
	}

	req := domain.TranscriptionRequest{
		JobID:     c.newID(),
		ModelPath: c.state.ModelPath,
		AudioPath: c.state.AudioPath,
	}
	mailbox := NewMailbox[domain.TranscriptionMessage]()
	c.transcription = &slot[domain.TranscriptionMessage]{id: req.JobID, mailbox: mailbox}
	c.state.Transcription = domain.TranscriptionStatus{State: domain.TranscriptionLoadingModel}
	c.state.Accelerated = nil

	c.logger.Info("transcription started",
		zap.String("jobId", req.JobID),
		zap.String("model", req.ModelPath),
		zap.String("audio", req.AudioPath),
	)
	transcriber := c.transcriber
	c.spawn(func() { transcriber.Run(context.Background(), req, mailbox) })
	return req.JobID, nil
}

// StartDownload spawns a download of url into destination for modelID.
func (c *Controller) StartDownload(modelID, url, destination string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if strings.TrimSpace(url) == "" || strings.TrimSpace(destination) == "" {
		return "", &domain.JobError{Kind: domain.KindConfig, Message: "download url and destination are required"}
	}

	if c.download != nil {
		c.logger.Warn("replacing in-flight download; its result will be discarded",
			zap.String("jobId", c.download.id))
		c.download.mailbox.Close()
	}

	req := domain.DownloadRequest{
		JobID:       c.newID(),
		ModelID:     modelID,
		URL:         url,
		Destination: destination,
	}
	mailbox := NewMailbox[domain.DownloadMessage]()
	c.download = &slot[domain.DownloadMessage]{id: req.JobID, mailbox: mailbox}
	c.state.Download = domain.DownloadStatus{State: domain.DownloadInProgress}
	c.state.DownloadModelID = modelID

	c.logger.Info("download started",
		zap.String("jobId", req.JobID),
		zap.String("model", modelID),
		zap.String("url", url),
	)
	downloader := c.downloader
	c.spawn(func() { downloader.Run(context.Background(), req, mailbox) })
	return req.JobID, nil
}

// PollTranscription drains the transcription mailbox without blocking and
// returns the resulting status. Safe to call with no job.
func (c *Controller) PollTranscription() domain.TranscriptionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pollTranscriptionLocked()
	return c.state.Transcription
}

// PollDownload drains the download mailbox without blocking and returns the
// resulting status. Safe to call with no job.
func (c *Controller) PollDownload() domain.DownloadStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pollDownloadLocked()
	return c.state.Download
}

// Poll drains both mailboxes and returns the full snapshot.
func (c *Controller) Poll() domain.AppState {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pollTranscriptionLocked()
	c.pollDownloadLocked()
	return c.snapshotLocked()
}

// State returns the snapshot without draining.
func (c *Controller) State() domain.AppState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// ClearTranscript resets a finished transcription back to idle.
func (c *Controller) ClearTranscript() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Transcription.Active() {
		return
	}
	c.state.Transcription = domain.TranscriptionStatus{State: domain.TranscriptionIdle}
}

func (c *Controller) pollTranscriptionLocked() {
	if c.transcription == nil {
		return
	}

	for _, msg := range c.transcription.mailbox.Drain() {
		if msg.Type == domain.MessageAcceleratorInUse {
			accelerated := msg.Accelerated
			c.state.Accelerated = &accelerated
			continue
		}

		c.state.Transcription = c.state.Transcription.Apply(msg)
		if msg.Terminal() {
			c.logger.Info("transcription finished",
				zap.String("jobId", c.transcription.id),
				zap.String("state", string(c.state.Transcription.State)),
			)
			c.transcription.mailbox.Close()
			c.transcription = nil
			return
		}
	}
}

func (c *Controller) pollDownloadLocked() {
	if c.download == nil {
		return
	}

	for _, msg := range c.download.mailbox.Drain() {
		c.state.Download = c.state.Download.Apply(msg)
		if !msg.Terminal() {
			continue
		}

		if msg.Type == domain.DownloadMessageDone {
			c.state.ModelPath = msg.Path
		}
		c.logger.Info("download finished",
			zap.String("jobId", c.download.id),
			zap.String("state", string(c.state.Download.State)),
		)
		c.download.mailbox.Close()
		c.download = nil
		return
	}
}

func (c *Controller) snapshotLocked() domain.AppState {
	state := c.state
	if c.state.Accelerated != nil {
		accelerated := *c.state.Accelerated
		state.Accelerated = &accelerated
	}
	state.CanTranscribe = state.ModelPath != "" && state.AudioPath != "" && !state.Transcription.Active()
	state.CanDownload = !state.Download.Active()
	return state
}
