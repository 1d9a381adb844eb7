package protocol

import "time"

// SynthRequest asks the daemon to render text to a WAV file.
type SynthRequest struct {
	SessionID  string `json:"session_id"`
	Text       string `json:"text"`
	OutputName string `json:"output_name,omitempty"`
}

// SynthResult reports a finished (or failed) render.
type SynthResult struct {
	SessionID  string    `json:"session_id"`
	JobID      string    `json:"job_id"`
	Path       string    `json:"path,omitempty"`
	Frames     int       `json:"frames"`
	Samples    int       `json:"samples"`
	SampleRate int       `json:"sample_rate"`
	LatencyMS  int64     `json:"latency_ms"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

const (
	SubjectSynthRequest = "synth.request"
	SubjectSynthResult  = "synth.result"
)
