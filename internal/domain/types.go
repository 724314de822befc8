package domain

// TranscriptionState is the kind of the transcription job status.
type TranscriptionState string

const (
	TranscriptionIdle         TranscriptionState = "idle"
	TranscriptionLoadingModel TranscriptionState = "loading_model"
	TranscriptionTranscribing TranscriptionState = "transcribing"
	TranscriptionDone         TranscriptionState = "done"
	TranscriptionFailed       TranscriptionState = "failed"
)

// rank orders non-terminal states so transitions only move forward.
func (s TranscriptionState) rank() int {
	switch s {
	case TranscriptionLoadingModel:
		return 1
	case TranscriptionTranscribing:
		return 2
	case TranscriptionDone, TranscriptionFailed:
		return 3
	default:
		return 0
	}
}

// TranscriptionStatus is the externally visible status of the transcription job.
// Text is set only for Done and Reason only for Failed.
type TranscriptionStatus struct {
	State  TranscriptionState `json:"state"`
	Text   string             `json:"text,omitempty"`
	Reason string             `json:"reason,omitempty"`
}

// Terminal reports whether no further updates are expected for the job.
func (s TranscriptionStatus) Terminal() bool {
	return s.State == TranscriptionDone || s.State == TranscriptionFailed
}

// Active reports whether a job is loading or transcribing.
func (s TranscriptionStatus) Active() bool {
	return s.State == TranscriptionLoadingModel || s.State == TranscriptionTranscribing
}

// Apply returns the status after msg. Terminal states absorb every message,
// backward moves are ignored and AcceleratorInUse leaves the status unchanged.
func (s TranscriptionStatus) Apply(msg TranscriptionMessage) TranscriptionStatus {
	if s.Terminal() {
		return s
	}

	var next TranscriptionStatus
	switch msg.Type {
	case MessageLoadingModel:
		next = TranscriptionStatus{State: TranscriptionLoadingModel}
	case MessageTranscribing:
		next = TranscriptionStatus{State: TranscriptionTranscribing}
	case MessageDone:
		next = TranscriptionStatus{State: TranscriptionDone, Text: msg.Text}
	case MessageFailed:
		next = TranscriptionStatus{State: TranscriptionFailed, Reason: msg.Reason}
	default:
		return s
	}

	if next.State.rank() < s.State.rank() {
		return s
	}
	return next
}

// MessageType tags a transcription worker message.
type MessageType string

const (
	MessageLoadingModel     MessageType = "loading_model"
	MessageAcceleratorInUse MessageType = "accelerator_in_use"
	MessageTranscribing     MessageType = "transcribing"
	MessageDone             MessageType = "done"
	MessageFailed           MessageType = "failed"
)

// TranscriptionMessage is one update sent by the transcription worker.
type TranscriptionMessage struct {
	Type        MessageType `json:"type"`
	Accelerated bool        `json:"accelerated,omitempty"`
	Text        string      `json:"text,omitempty"`
	Reason      string      `json:"reason,omitempty"`
}

// Terminal reports whether the message ends the job.
func (m TranscriptionMessage) Terminal() bool {
	return m.Type == MessageDone || m.Type == MessageFailed
}

func LoadingModelMessage() TranscriptionMessage {
	return TranscriptionMessage{Type: MessageLoadingModel}
}

func AcceleratorMessage(accelerated bool) TranscriptionMessage {
	return TranscriptionMessage{Type: MessageAcceleratorInUse, Accelerated: accelerated}
}

func TranscribingMessage() TranscriptionMessage {
	return TranscriptionMessage{Type: MessageTranscribing}
}

func DoneMessage(text string) TranscriptionMessage {
	return TranscriptionMessage{Type: MessageDone, Text: text}
}

func FailedMessage(reason string) TranscriptionMessage {
	return TranscriptionMessage{Type: MessageFailed, Reason: reason}
}

// TranscriptionRequest carries the inputs of one transcription job.
type TranscriptionRequest struct {
	JobID     string `json:"jobId"`
	ModelPath string `json:"modelPath"`
	AudioPath string `json:"audioPath"`
}

// AppState is the snapshot rendered by the desktop UI and the CLI.
type AppState struct {
	ModelPath       string              `json:"modelPath"`
	AudioPath       string              `json:"audioPath"`
	Transcription   TranscriptionStatus `json:"transcription"`
	Download        DownloadStatus      `json:"download"`
	DownloadModelID string              `json:"downloadModelId,omitempty"`
	Accelerated     *bool               `json:"accelerated"`
	AcceleratorHint bool                `json:"acceleratorHint"`
	CanTranscribe   bool                `json:"canTranscribe"`
	CanDownload     bool                `json:"canDownload"`
}

// Settings contains user-selectable runtime configuration.
type Settings struct {
	ModelPath      string `json:"modelPath" yaml:"model_path"`
	ModelsDir      string `json:"modelsDir" yaml:"models_dir"`
	ModelBaseURL   string `json:"modelBaseUrl" yaml:"model_base_url"`
	Engine         string `json:"engine" yaml:"engine"`
	WhisperPath    string `json:"whisperPath" yaml:"whisper_path"`
	FFmpegPath     string `json:"ffmpegPath" yaml:"ffmpeg_path"`
	FFprobePath    string `json:"ffprobePath" yaml:"ffprobe_path"`
	Language       string `json:"language" yaml:"language"`
	Threads        int    `json:"threads" yaml:"threads"`
	AcceleratorEnv string `json:"acceleratorEnv" yaml:"accelerator_env"`
	LogLevel       string `json:"logLevel" yaml:"log_level"`
	LogFile        string `json:"logFile" yaml:"log_file"`
}
