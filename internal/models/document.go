package models

import "time"

// Document records a finalized draft and where its export was stored
type Document struct {
	ID         string    `json:"id"`
	DraftID    string    `json:"draft_id"`
	TemplateID string    `json:"template_id"`
	Name       string    `json:"name"`
	Filename   string    `json:"filename"`
	Strategy   string    `json:"strategy,omitempty"` // export strategy that produced the file
	Location   string    `json:"location,omitempty"` // archive path or object URL
	Size       int64     `json:"size,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// EmergencyBackup is the payload written when a regular save fails
type EmergencyBackup struct {
	FormKey   string            `json:"form_key"`
	Data      map[string]string `json:"data"`
	Timestamp time.Time         `json:"timestamp"`
}
