package model

import (
	"encoding/json"
)

// Finding is a single typed observation produced by a detector. The With*
// methods return modified copies, so a Finding handed to a Report never
// changes afterwards.
type Finding struct {
	Kind    Kind
	Message string
	Offset  *int64
	Payload Payload
	Hint    string
}

func NewFinding(kind Kind, message string) Finding {
	return Finding{Kind: kind, Message: message}
}

func (f Finding) Severity() Severity {
	return f.Kind.Severity()
}

func (f Finding) WithOffset(off int64) Finding {
	f.Offset = &off
	return f
}

func (f Finding) WithPayload(p Payload) Finding {
	f.Payload = p
	return f
}

func (f Finding) WithHint(hint string) Finding {
	f.Hint = hint
	return f
}

type findingJSON struct {
	Type        Kind     `json:"type"`
	Severity    Severity `json:"severity"`
	Description string   `json:"description"`
	Offset      *int64   `json:"offset,omitempty"`
	Value       Payload  `json:"value,omitempty"`
	Hint        string   `json:"hint,omitempty"`
}

func (f Finding) MarshalJSON() ([]byte, error) {
	return json.Marshal(findingJSON{
		Type:        f.Kind,
		Severity:    f.Severity(),
		Description: f.Message,
		Offset:      f.Offset,
		Value:       f.Payload,
		Hint:        f.Hint,
	})
}
