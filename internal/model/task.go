package model

import "time"

// Task is a personal to-do item.
type Task struct {
	Title     string     `json:"title"`
	Notes     string     `json:"notes,omitempty"`
	Due       *time.Time `json:"due,omitempty"`
	Priority  Priority   `json:"priority"`
	Completed bool       `json:"completed"`
	Owner     string     `json:"owner_id"`

	// Pinned is a local display preference and never leaves the device.
	Pinned bool `json:"pinned,omitempty"`
}

type taskWire struct {
	Title     string     `json:"title"`
	Notes     string     `json:"notes,omitempty"`
	Due       *time.Time `json:"due,omitempty"`
	Priority  Priority   `json:"priority"`
	Completed bool       `json:"completed"`
	Owner     string     `json:"owner_id"`
}

// RemoteShape implements syncp.Payload.
func (t Task) RemoteShape() any {
	return taskWire{
		Title:     t.Title,
		Notes:     t.Notes,
		Due:       t.Due,
		Priority:  t.Priority,
		Completed: t.Completed,
		Owner:     t.Owner,
	}
}

// MergeFields implements syncp.Payload.
func (t Task) MergeFields(remote Task) Task {
	t.Title = remote.Title
	t.Notes = remote.Notes
	t.Due = remote.Due
	t.Priority = remote.Priority
	t.Completed = remote.Completed
	t.Owner = remote.Owner
	return t
}

// Validate implements syncp.Validator.
func (t Task) Validate() error {
	return firstErr(
		required("title", t.Title),
		maxLen("title", t.Title, 500),
		maxLen("notes", t.Notes, 10000),
	)
}

// ContentHash returns a digest of the fields that matter for change
// detection. Pinned is local-only and excluded.
func (t Task) ContentHash() string {
	return hashFields(t.Title, t.Notes, t.Due, int(t.Priority), t.Completed, t.Owner)
}

// OwnerID implements syncp.Owned.
func (t Task) OwnerID() string { return t.Owner }
