// Package runstore persists completed and in-progress question sessions.
package runstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/parley-ai/parley"
)

var (
	// ErrNotFound is returned by Load when no record has the given ID.
	ErrNotFound = errors.New("run not found")
	// ErrVersionConflict is returned by Save when the record was modified
	// concurrently (optimistic versioning).
	ErrVersionConflict = errors.New("run version conflict")
)

// Record is one persisted session: the question, its outcome, and the
// execution metadata useful for audit and replay.
type Record struct {
	ID         string
	Question   string
	Answer     string
	ToolsUsed  []string
	ToolRuns   []parley.ToolRun
	Transcript []TranscriptEntry
	Turns      int
	Confidence float64
	CreatedAt  time.Time
	UpdatedAt  time.Time
	// Version is incremented by every successful Save. New records are
	// created with Version 0; Save rejects stale versions.
	Version int64
}

// NewRecord builds an unsaved Record for a question.
func NewRecord(question string) Record {
	now := time.Now().UTC()
	return Record{
		ID:        uuid.NewString(),
		Question:  question,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// WithAnswer returns a copy of the record filled in from a completed session.
func (r Record) WithAnswer(ans *parley.Answer) Record {
	r.Answer = ans.Text
	r.ToolsUsed = append([]string(nil), ans.ToolsUsed...)
	r.ToolRuns = append([]parley.ToolRun(nil), ans.ToolRuns...)
	r.Transcript = transcriptEntries(ans.Transcript)
	r.Turns = ans.Turns
	r.Confidence = ans.Confidence
	r.UpdatedAt = time.Now().UTC()
	return r
}

// TranscriptEntry is the persisted form of one transcript message. Tool
// results keep their model-facing text and a failed flag; internal error
// causes are not persisted.
type TranscriptEntry struct {
	Role      string             `json:"role"`
	Content   string             `json:"content,omitempty"`
	ToolCalls []TranscriptCall   `json:"tool_calls,omitempty"`
	Results   []TranscriptResult `json:"results,omitempty"`
}

// TranscriptCall is a persisted tool-call request.
type TranscriptCall struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

// TranscriptResult is a persisted tool outcome.
type TranscriptResult struct {
	CallID string `json:"call_id"`
	Name   string `json:"name"`
	Output string `json:"output"`
	Failed bool   `json:"failed"`
}

func transcriptEntries(msgs []parley.Message) []TranscriptEntry {
	if msgs == nil {
		return nil
	}
	out := make([]TranscriptEntry, 0, len(msgs))
	for _, msg := range msgs {
		entry := TranscriptEntry{Role: string(msg.Role), Content: msg.Content}
		for _, call := range msg.ToolCalls {
			entry.ToolCalls = append(entry.ToolCalls, TranscriptCall{
				ID:   call.ID,
				Name: call.ToolName,
				Args: call.Args,
			})
		}
		for _, res := range msg.Results {
			entry.Results = append(entry.Results, TranscriptResult{
				CallID: res.CallID,
				Name:   res.ToolName,
				Output: res.ModelText(),
				Failed: res.Failed(),
			})
		}
		out = append(out, entry)
	}
	return out
}

// Store persists Records. Save uses optimistic versioning: create with
// Version 0, and pass the loaded Version back on update; a mismatch fails
// with ErrVersionConflict.
type Store interface {
	Save(ctx context.Context, rec Record) error
	Load(ctx context.Context, id string) (Record, error)
	// List returns records ordered newest-first, at most limit entries
	// (limit <= 0 means no limit).
	List(ctx context.Context, limit int) ([]Record, error)
}
