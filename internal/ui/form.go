package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/doclast/docfill/internal/models"
	"github.com/doclast/docfill/internal/service"
	"github.com/doclast/docfill/internal/validation"
)

// DraftEditor is the part of the service the fill form writes through
type DraftEditor interface {
	UpdateDraftFields(id string, values map[string]string) (*service.FieldUpdate, error)
	AutosaveStatus(id string) string
}

// fieldInput is one template field with its editor widget. Multi-line
// fields use a textarea, everything else a textinput.
type fieldInput struct {
	spec    models.FieldSpec
	input   textinput.Model
	area    textarea.Model
	multi   bool
	touched bool
	// saveErr is the message the service returned for the last saved value
	saveErr string
}

func (f *fieldInput) value() string {
	if f.multi {
		return f.area.Value()
	}
	return f.input.Value()
}

func (f *fieldInput) setValue(v string) {
	if f.multi {
		f.area.SetValue(v)
		return
	}
	f.input.SetValue(v)
}

func (f *fieldInput) focus() tea.Cmd {
	if f.multi {
		return f.area.Focus()
	}
	return f.input.Focus()
}

func (f *fieldInput) blur() {
	if f.multi {
		f.area.Blur()
		return
	}
	f.input.Blur()
}

// FillForm edits the field values of one draft. Every change is pushed to
// the service, which autosaves it.
type FillForm struct {
	editor   DraftEditor
	draftID  string
	template *models.Template
	fields   []*fieldInput
	focused  int
	width    int
	readOnly bool
	err      error
}

// NewFillForm builds one input per template field, prefilled from the draft
func NewFillForm(editor DraftEditor, draft *models.DocumentDraft, tmpl *models.Template) *FillForm {
	f := &FillForm{
		editor:   editor,
		draftID:  draft.ID,
		template: tmpl,
		readOnly: draft.IsFinalized(),
		width:    80,
	}

	for _, spec := range tmpl.Fields {
		fi := &fieldInput{
			spec:  spec,
			multi: spec.Type == models.FieldTextarea || spec.RichText,
		}
		placeholder := spec.Placeholder
		if placeholder == "" {
			placeholder = validation.Hint(spec)
		}
		if fi.multi {
			ta := textarea.New()
			ta.Placeholder = placeholder
			ta.CharLimit = 0
			ta.ShowLineNumbers = false
			ta.SetWidth(70)
			ta.SetHeight(4)
			fi.area = ta
		} else {
			ti := textinput.New()
			ti.Placeholder = placeholder
			ti.CharLimit = 500
			ti.Width = 60
			if spec.Validation.MaxLength > 0 {
				ti.CharLimit = spec.Validation.MaxLength
			}
			fi.input = ti
		}
		fi.setValue(draft.FieldValues[spec.Name])
		// Prefilled values are shown with their errors straight away.
		fi.touched = draft.FieldValues[spec.Name] != ""
		f.fields = append(f.fields, fi)
	}

	if len(f.fields) > 0 && !f.readOnly {
		f.fields[0].focus()
	}
	return f
}

// Update handles form updates
func (f *FillForm) Update(msg tea.Msg) tea.Cmd {
	if len(f.fields) == 0 || f.readOnly {
		return nil
	}
	current := f.fields[f.focused]

	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "tab":
			return f.nextField()
		case "shift+tab":
			return f.prevField()
		case "down", "enter":
			// Multi-line fields keep these keys for the textarea
			if !current.multi {
				return f.nextField()
			}
		case "up":
			if !current.multi {
				return f.prevField()
			}
		}
	}

	before := current.value()
	var cmd tea.Cmd
	if current.multi {
		current.area, cmd = current.area.Update(msg)
	} else {
		current.input, cmd = current.input.Update(msg)
	}
	if current.value() != before {
		current.touched = true
		f.push(current)
	}
	return cmd
}

// push sends one changed value to the service
func (f *FillForm) push(fi *fieldInput) {
	update, err := f.editor.UpdateDraftFields(f.draftID, map[string]string{fi.spec.Name: fi.value()})
	if err != nil {
		f.err = err
		return
	}
	f.err = nil
	fi.saveErr = update.Errors[fi.spec.Name]
}

// SetValues replaces field values, e.g. after a backup restore
func (f *FillForm) SetValues(values map[string]string) {
	for _, fi := range f.fields {
		if v, ok := values[fi.spec.Name]; ok {
			fi.setValue(v)
			fi.touched = true
		}
	}
}

// Resize updates form dimensions based on window size
func (f *FillForm) Resize(width, height int) {
	f.width = width
	for _, fi := range f.fields {
		if fi.multi {
			fi.area.SetWidth(max(width-10, 20))
		} else {
			fi.input.Width = max(width-14, 20)
		}
	}
}

// nextField moves to the next form field
func (f *FillForm) nextField() tea.Cmd {
	f.fields[f.focused].blur()
	f.focused = (f.focused + 1) % len(f.fields)
	return f.fields[f.focused].focus()
}

// prevField moves to the previous form field
func (f *FillForm) prevField() tea.Cmd {
	f.fields[f.focused].blur()
	f.focused--
	if f.focused < 0 {
		f.focused = len(f.fields) - 1
	}
	return f.fields[f.focused].focus()
}

// FocusedField returns the name of the field being edited
func (f *FillForm) FocusedField() string {
	if len(f.fields) == 0 {
		return ""
	}
	return f.fields[f.focused].spec.Name
}

// Values returns the current value of every field
func (f *FillForm) Values() map[string]string {
	out := make(map[string]string, len(f.fields))
	for _, fi := range f.fields {
		out[fi.spec.Name] = fi.value()
	}
	return out
}

// Errors returns live validation messages for touched fields
func (f *FillForm) Errors() map[string]string {
	out := make(map[string]string)
	for _, fi := range f.fields {
		if msg := f.fieldError(fi); msg != "" {
			out[fi.spec.Name] = msg
		}
	}
	return out
}

func (f *FillForm) fieldError(fi *fieldInput) string {
	state := validation.LiveValidate(fi.spec, fi.value(), fi.touched)
	if state.ShowError {
		return state.Error
	}
	if fi.touched {
		return fi.saveErr
	}
	return ""
}

// Progress counts the required fields that hold a valid value
func (f *FillForm) Progress() (done, total int) {
	for _, fi := range f.fields {
		if !fi.spec.Required {
			continue
		}
		total++
		if fi.value() != "" && validation.ValidateField(fi.spec, fi.value()) == "" {
			done++
		}
	}
	return done, total
}

// Err is the last error returned while saving
func (f *FillForm) Err() error {
	return f.err
}

// AutosaveStatus describes the last save of the draft
func (f *FillForm) AutosaveStatus() string {
	return f.editor.AutosaveStatus(f.draftID)
}

// View renders the form
func (f *FillForm) View() string {
	var b strings.Builder
	for i, fi := range f.fields {
		label := fi.spec.DisplayLabel()
		if fi.spec.Required {
			label += " *"
		}
		if i == f.focused && !f.readOnly {
			b.WriteString(StyleFormLabelFocused.Render("▶ " + label))
		} else {
			b.WriteString(StyleFormLabel.Render("  " + label))
		}
		b.WriteString("\n")

		switch {
		case f.readOnly:
			b.WriteString(StyleLockedValue.Render(fi.value()))
		case fi.multi:
			b.WriteString(fi.area.View())
		default:
			b.WriteString(fi.input.View())
		}
		b.WriteString("\n")

		if msg := f.fieldError(fi); msg != "" {
			b.WriteString(StyleFieldError.Render("✗ " + msg))
			b.WriteString("\n")
		} else if i == f.focused && fi.spec.Hint != "" {
			b.WriteString(StyleFormHelp.Render(fi.spec.Hint))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return lipgloss.NewStyle().Width(f.width).Render(b.String())
}
