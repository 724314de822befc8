package domain

// DownloadState is the kind of the download job status.
type DownloadState string

const (
	DownloadIdle       DownloadState = "idle"
	DownloadInProgress DownloadState = "in_progress"
	DownloadDone       DownloadState = "done"
	DownloadFailed     DownloadState = "failed"
)

// DownloadStatus is the externally visible status of the model download.
// BytesTotal is zero when the server did not declare a length.
type DownloadStatus struct {
	State      DownloadState `json:"state"`
	BytesDone  uint64        `json:"bytesDone"`
	BytesTotal uint64        `json:"bytesTotal"`
	LocalPath  string        `json:"localPath,omitempty"`
	Reason     string        `json:"reason,omitempty"`
}

// Terminal reports whether no further updates are expected for the download.
func (s DownloadStatus) Terminal() bool {
	return s.State == DownloadDone || s.State == DownloadFailed
}

// Active reports whether bytes are still being received.
func (s DownloadStatus) Active() bool {
	return s.State == DownloadInProgress
}

// Fraction returns completion in [0,1]. ok is false when the total is unknown
// and the progress must be shown as indeterminate.
func (s DownloadStatus) Fraction() (fraction float64, ok bool) {
	if s.BytesTotal == 0 {
		return 0, false
	}
	f := float64(s.BytesDone) / float64(s.BytesTotal)
	if f > 1 {
		f = 1
	}
	return f, true
}

// Apply returns the status after msg. Terminal states absorb every message.
func (s DownloadStatus) Apply(msg DownloadMessage) DownloadStatus {
	if s.Terminal() {
		return s
	}

	switch msg.Type {
	case DownloadMessageProgress:
		if s.State == DownloadInProgress && msg.BytesDone < s.BytesDone {
			return s
		}
		return DownloadStatus{State: DownloadInProgress, BytesDone: msg.BytesDone, BytesTotal: msg.BytesTotal}
	case DownloadMessageDone:
		return DownloadStatus{
			State:      DownloadDone,
			BytesDone:  s.BytesDone,
			BytesTotal: s.BytesTotal,
			LocalPath:  msg.Path,
		}
	case DownloadMessageFailed:
		return DownloadStatus{State: DownloadFailed, Reason: msg.Reason}
	default:
		return s
	}
}

// DownloadMessageType tags a download worker message.
type DownloadMessageType string

const (
	DownloadMessageProgress DownloadMessageType = "progress"
	DownloadMessageDone     DownloadMessageType = "done"
	DownloadMessageFailed   DownloadMessageType = "failed"
)

// DownloadMessage is one update sent by the download worker.
type DownloadMessage struct {
	Type       DownloadMessageType `json:"type"`
	BytesDone  uint64              `json:"bytesDone,omitempty"`
	BytesTotal uint64              `json:"bytesTotal,omitempty"`
	Path       string              `json:"path,omitempty"`
	Reason     string              `json:"reason,omitempty"`
}

// Terminal reports whether the message ends the download.
func (m DownloadMessage) Terminal() bool {
	return m.Type == DownloadMessageDone || m.Type == DownloadMessageFailed
}

func ProgressMessage(done, total uint64) DownloadMessage {
	return DownloadMessage{Type: DownloadMessageProgress, BytesDone: done, BytesTotal: total}
}

func DownloadDoneMessage(path string) DownloadMessage {
	return DownloadMessage{Type: DownloadMessageDone, Path: path}
}

func DownloadFailedMessage(reason string) DownloadMessage {
	return DownloadMessage{Type: DownloadMessageFailed, Reason: reason}
}

// DownloadRequest carries the inputs of one model download.
type DownloadRequest struct {
	JobID       string `json:"jobId"`
	ModelID     string `json:"modelId"`
	URL         string `json:"url"`
	Destination string `json:"destination"`
}
