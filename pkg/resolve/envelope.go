package resolve

import (
	"encoding/json"
	"fmt"
)

// FallbackInfo describes borrowed content inside an Envelope.
type FallbackInfo struct {
	For    string `json:"for"`
	Base   string `json:"base"`
	Reason string `json:"reason"`
	Tier   string `json:"tier"`
}

// Envelope wraps a base identifier's content when it stands in for another
// identifier. JSON content is embedded as a value; anything else as a string.
type Envelope struct {
	Fallback FallbackInfo    `json:"fallback"`
	Content  json.RawMessage `json:"content"`
}

// Wrap builds the envelope bytes for content borrowed from base.
func Wrap(info FallbackInfo, content []byte, isJSON bool) ([]byte, error) {
	var raw json.RawMessage
	if isJSON && json.Valid(content) {
		raw = json.RawMessage(content)
	} else {
		s, err := json.Marshal(string(content))
		if err != nil {
			return nil, err
		}
		raw = s
	}
	out, err := json.Marshal(Envelope{Fallback: info, Content: raw})
	if err != nil {
		return nil, fmt.Errorf("encode fallback envelope: %w", err)
	}
	return out, nil
}

// Unwrap decodes envelope bytes.
func Unwrap(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	if env.Fallback.For == "" {
		return nil, fmt.Errorf("not a fallback envelope")
	}
	return &env, nil
}
