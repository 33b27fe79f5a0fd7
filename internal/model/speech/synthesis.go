package speech

import "time"

// SynthesisRequest is the body of a synthesis call.
type SynthesisRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"` // empty uses the configured voice
}

// Synthesis is the result of one synthesis.
type Synthesis struct {
	// Audio is base64 little-endian PCM16; empty when nothing was produced.
	Audio      string    `json:"audio"`
	SampleRate int       `json:"sampleRate"`
	Channels   int       `json:"channels"`
	Voice      string    `json:"voice"`
	Provider   string    `json:"provider"`
	RequestID  string    `json:"requestId,omitempty"`
	Cached     bool      `json:"cached,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Empty reports whether the result carries no audio.
func (s *Synthesis) Empty() bool {
	return s == nil || s.Audio == ""
}
