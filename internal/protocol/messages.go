package protocol

import "time"

// SynthesisDone announces a completed synthesis on the bus. Audio bytes are
// not carried; downstream consumers fetch audio over HTTP if they need it.
type SynthesisDone struct {
	TraceID    string    `json:"trace_id"`
	NodeID     string    `json:"node_id"`
	Voice      string    `json:"voice"`
	Speed      float64   `json:"speed"`
	TextChars  int       `json:"text_chars"`
	Segments   int       `json:"segments"`
	DurationMS int64     `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

// Announce is broadcast once when a node joins the bus.
type Announce struct {
	NodeID      string    `json:"node_id"`
	Service     string    `json:"service"`
	Environment string    `json:"environment"`
	Voices      []string  `json:"voices,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Heartbeat is published periodically while a node is alive.
type Heartbeat struct {
	NodeID      string    `json:"node_id"`
	ModelLoaded bool      `json:"model_loaded"`
	Timestamp   time.Time `json:"timestamp"`
}

const (
	SubjectSynthesisDone       = "tts.synthesis.done"
	SubjectNodeAnnounce        = "ctrl.node.announce"
	SubjectNodeHeartbeatPrefix = "ctrl.node.heartbeat"
)
