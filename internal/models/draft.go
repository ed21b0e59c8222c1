package models

import "time"

// Draft lifecycle states
const (
	DraftOpen      = "draft"
	DraftFinalized = "finalized"
)

// DefaultDraftName is given to drafts created without a name
const DefaultDraftName = "Untitled Document"

// DocumentDraft is a user's in-progress filling of one template
type DocumentDraft struct {
	ID          string            `json:"id"`
	TemplateID  string            `json:"template_id"`
	Name        string            `json:"name"`
	Filename    string            `json:"filename,omitempty"`
	Summary     string            `json:"description,omitempty"`
	FieldValues map[string]string `json:"field_values"`
	// Content holds edited HTML when the user changed the rendered body
	// directly. Empty means the body is re-rendered from the template.
	Content   string    `json:"content,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsFinalized reports whether the draft accepts no further edits
func (d *DocumentDraft) IsFinalized() bool {
	return d.Status == DraftFinalized
}

// Values returns a copy of the field values
func (d *DocumentDraft) Values() map[string]string {
	out := make(map[string]string, len(d.FieldValues))
	for k, v := range d.FieldValues {
		out[k] = v
	}
	return out
}

// ExportName is the base file name used for exported artifacts
func (d *DocumentDraft) ExportName() string {
	if d.Filename != "" {
		return d.Filename
	}
	if d.Name != "" {
		return d.Name
	}
	return "document"
}

// Implement list.Item interface for bubbles list component

func (d DocumentDraft) FilterValue() string { return cleanString(d.Name) }

func (d DocumentDraft) Title() string {
	if d.Name != "" {
		return cleanString(d.Name)
	}
	return d.ID
}

func (d DocumentDraft) Description() string {
	return cleanString(d.Status + " • Last edited: " + d.UpdatedAt.Format("2006-01-02 15:04"))
}
