package events

import (
	"encoding/json"
	"time"
)

// Event types published while crawling.
const (
	TypePing        = "ping"
	TypeRunStarted  = "run_started"
	TypeRunFinished = "run_finished"
	TypeRunFailed   = "run_failed"
	TypeCycleDone   = "cycle_finished"
)

// Version of the envelope below. Bump on incompatible payload changes.
const Version = 1

// Event is the envelope every SSE message carries.
type Event struct {
	Type      string          `json:"type"`
	Version   int             `json:"v"`
	At        time.Time       `json:"at"`
	RequestID string          `json:"request_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Encode wraps data in an envelope. Payloads that fail to marshal are sent
// without data rather than dropped.
func Encode(typ, reqID string, data any) string {
	e := Event{
		Type:      typ,
		Version:   Version,
		At:        time.Now().UTC(),
		RequestID: reqID,
	}
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			e.Data = b
		}
	}
	b, _ := json.Marshal(e)
	return string(b)
}

// Run is the payload of the run_* events.
type Run struct {
	RunID    string `json:"run_id"`
	Employer string `json:"employer"`
	Created  int    `json:"created,omitempty"`
	Updated  int    `json:"updated,omitempty"`
	Closed   int    `json:"closed,omitempty"`
	Errors   int    `json:"errors,omitempty"`
	DryRun   bool   `json:"dry_run,omitempty"`
	Error    string `json:"error,omitempty"`
}
