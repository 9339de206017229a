package store

import "time"

// Status is the lifecycle state of a task as recorded in the document store.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusHilReview  Status = "hil_review"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transitions are made from s by this
// engine.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// TaskRecord is a task row as returned by the store query endpoint. Content
// blocks are fetched separately via ReadContent.
type TaskRecord struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Status       Status    `json:"status"`
	LastEditedAt time.Time `json:"last_edited_at"`
}

// ContentBlock is one opaque content unit of a task's body. The engine only
// inspects Text; everything else is round-tripped untouched.
type ContentBlock struct {
	ID        string    `json:"id,omitempty"`
	Type      string    `json:"type"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// TextBlock builds a plain paragraph block, the shape used for progress and
// diagnostic appends.
func TextBlock(text string) ContentBlock {
	return ContentBlock{
		Type:      "paragraph",
		Text:      text,
		CreatedAt: time.Now(),
	}
}
