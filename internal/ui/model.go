package ui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/doclast/docfill/internal/clipboard"
	"github.com/doclast/docfill/internal/errors"
	"github.com/doclast/docfill/internal/export"
	"github.com/doclast/docfill/internal/models"
	"github.com/doclast/docfill/internal/service"
	"github.com/doclast/docfill/internal/storage"
)

// statusTTL is how long a status message stays on screen
const statusTTL = 5 * time.Second

// Commands for async operations
type loadCompleteMsg struct {
	templates []*models.Template
	drafts    []*models.DocumentDraft
	err       error
}

type draftOpenedMsg struct {
	draft    *models.DocumentDraft
	template *models.Template
	err      error
}

type exportDoneMsg struct {
	location string
	strategy string
	err      error
}

type finalizeDoneMsg struct {
	doc *models.Document
	err error
}

type restoreDoneMsg struct {
	values map[string]string
	err    error
}

type previewMsg struct {
	content string
	err     error
}

type copyDoneMsg struct{ err error }

type tickMsg time.Time

// loadCmd loads the template catalogue and the drafts
func loadCmd(svc *service.Service) tea.Cmd {
	return func() tea.Msg {
		templates, err := svc.ListTemplates()
		if err != nil {
			return loadCompleteMsg{err: err}
		}
		drafts, err := svc.ListDrafts()
		return loadCompleteMsg{templates: templates, drafts: drafts, err: err}
	}
}

func openDraftCmd(svc *service.Service, id string) tea.Cmd {
	return func() tea.Msg {
		draft, err := svc.GetDraft(id)
		if err != nil {
			return draftOpenedMsg{err: err}
		}
		tmpl, err := svc.GetTemplate(draft.TemplateID)
		return draftOpenedMsg{draft: draft, template: tmpl, err: err}
	}
}

func createDraftCmd(svc *service.Service, tmpl *models.Template) tea.Cmd {
	return func() tea.Msg {
		draft, err := svc.CreateDraft(tmpl.ID, tmpl.Name)
		return draftOpenedMsg{draft: draft, template: tmpl, err: err}
	}
}

// exportCmd renders the draft and keeps the file in the exports directory.
// html selects the standalone HTML download instead of a PDF.
func exportCmd(svc *service.Service, id string, html bool) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		var (
			exported *export.Result
			err      error
		)
		if html {
			exported, err = svc.ExportDraftHTML(id)
		} else {
			exported, err = svc.ExportDraft(ctx, id)
		}
		if err != nil {
			return exportDoneMsg{err: err}
		}
		local := storage.NewLocalArchive(svc.Storage().ExportsDir())
		location, err := local.Put(ctx, exported.Filename, exported.Data, exported.ContentType)
		return exportDoneMsg{location: location, strategy: exported.Strategy, err: err}
	}
}

func finalizeCmd(svc *service.Service, id string) tea.Cmd {
	return func() tea.Msg {
		doc, _, err := svc.FinalizeDraft(context.Background(), id)
		return finalizeDoneMsg{doc: doc, err: err}
	}
}

func restoreCmd(svc *service.Service, id string) tea.Cmd {
	return func() tea.Msg {
		values, err := svc.RestoreBackup(id)
		return restoreDoneMsg{values: values, err: err}
	}
}

func previewCmd(svc *service.Service, id string, width int) tea.Cmd {
	return func() tea.Msg {
		content, err := svc.PreviewText(id, width)
		return previewMsg{content: content, err: err}
	}
}

func copyCmd(c *clipboard.Copier, text string) tea.Cmd {
	return func() tea.Msg {
		return copyDoneMsg{err: c.Copy(context.Background(), text)}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// ViewMode represents the current view in the TUI
type ViewMode int

const (
	ViewTemplates ViewMode = iota
	ViewDrafts
	ViewForm
	ViewPreview
)

// Model represents the TUI application state
type Model struct {
	service  *service.Service
	viewMode ViewMode
	keys     KeyMap

	templateList list.Model
	draftList    list.Model
	viewport     viewport.Model
	previewText  string
	clipboard    *clipboard.Copier

	form     *FillForm
	draft    *models.DocumentDraft
	template *models.Template
	busy     bool

	width  int
	height int

	statusMsg   string
	statusType  string
	statusUntil time.Time
	now         func() time.Time

	errorHandler     *errors.TUIErrorHandler
	showExpandedHelp bool
	initialDraft     string
}

// KeyMap defines all key bindings
type KeyMap struct {
	Enter      key.Binding
	Back       key.Binding
	Quit       key.Binding
	Drafts     key.Binding
	Templates  key.Binding
	Preview    key.Binding
	Export     key.Binding
	ExportHTML key.Binding
	Finalize   key.Binding
	Restore    key.Binding
	Copy       key.Binding
	ExpandHelp key.Binding
}

var keys = KeyMap{
	Enter: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "select"),
	),
	Back: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "back"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	Drafts: key.NewBinding(
		key.WithKeys("d"),
		key.WithHelp("d", "drafts"),
	),
	Templates: key.NewBinding(
		key.WithKeys("t"),
		key.WithHelp("t", "templates"),
	),
	Preview: key.NewBinding(
		key.WithKeys("ctrl+p"),
		key.WithHelp("ctrl+p", "preview"),
	),
	Export: key.NewBinding(
		key.WithKeys("ctrl+e"),
		key.WithHelp("ctrl+e", "export PDF"),
	),
	ExportHTML: key.NewBinding(
		key.WithKeys("ctrl+o"),
		key.WithHelp("ctrl+o", "export HTML"),
	),
	Finalize: key.NewBinding(
		key.WithKeys("ctrl+f"),
		key.WithHelp("ctrl+f", "finalize"),
	),
	Restore: key.NewBinding(
		key.WithKeys("ctrl+r"),
		key.WithHelp("ctrl+r", "restore backup"),
	),
	Copy: key.NewBinding(
		key.WithKeys("y"),
		key.WithHelp("y", "copy text"),
	),
	ExpandHelp: key.NewBinding(
		key.WithKeys("ctrl+g"),
		key.WithHelp("ctrl+g", "expand help"),
	),
}

// NewModel creates a new TUI model. A non-empty draftID opens that draft's
// form straight away.
func NewModel(svc *service.Service, draftID string) *Model {
	initializeColors()

	templateList := list.New(nil, list.NewDefaultDelegate(), 80, 20)
	templateList.Title = "Templates"
	templateList.SetShowHelp(false)

	draftList := list.New(nil, list.NewDefaultDelegate(), 80, 20)
	draftList.Title = "Drafts"
	draftList.SetShowHelp(false)

	return &Model{
		service:      svc,
		viewMode:     ViewTemplates,
		keys:         keys,
		templateList: templateList,
		draftList:    draftList,
		viewport:     viewport.New(80, 20),
		clipboard:    clipboard.New(),
		width:        80,
		height:       24,
		now:          time.Now,
		errorHandler: errors.NewTUIErrorHandler(false),
		initialDraft: draftID,
	}
}

// Init starts loading data
func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{loadCmd(m.service), tickCmd()}
	if m.initialDraft != "" {
		m.busy = true
		cmds = append(cmds, openDraftCmd(m.service, m.initialDraft))
	}
	return tea.Batch(cmds...)
}

func (m *Model) setStatus(text, kind string) {
	m.statusMsg = text
	m.statusType = kind
	m.statusUntil = m.now().Add(statusTTL)
}

func (m *Model) setError(err error) {
	icon, _ := m.errorHandler.GetErrorStyle(err)
	m.setStatus(icon+" "+m.errorHandler.FormatError(err), "error")
}

// Update handles messages
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		listHeight := max(msg.Height-4, 5)
		m.templateList.SetSize(msg.Width, listHeight)
		m.draftList.SetSize(msg.Width, listHeight)
		m.viewport.Width = msg.Width - 4
		m.viewport.Height = max(msg.Height-6, 5)
		if m.form != nil {
			m.form.Resize(msg.Width, msg.Height)
		}
		return m, nil

	case tickMsg:
		if !m.statusUntil.IsZero() && m.now().After(m.statusUntil) {
			m.statusMsg = ""
			m.statusUntil = time.Time{}
		}
		return m, tickCmd()

	case loadCompleteMsg:
		if msg.err != nil {
			m.setError(msg.err)
		}
		templateItems := make([]list.Item, len(msg.templates))
		for i, t := range msg.templates {
			templateItems[i] = t
		}
		draftItems := make([]list.Item, len(msg.drafts))
		for i, d := range msg.drafts {
			draftItems[i] = d
		}
		return m, tea.Batch(m.templateList.SetItems(templateItems), m.draftList.SetItems(draftItems))

	case draftOpenedMsg:
		m.busy = false
		if msg.err != nil {
			m.setError(msg.err)
			return m, nil
		}
		m.openForm(msg.draft, msg.template)
		return m, nil

	case previewMsg:
		m.busy = false
		if msg.err != nil {
			m.setError(msg.err)
			return m, nil
		}
		m.previewText = msg.content
		m.viewport.SetContent(msg.content)
		m.viewport.GotoTop()
		m.viewMode = ViewPreview
		return m, nil

	case copyDoneMsg:
		if msg.err != nil {
			m.setError(msg.err)
			return m, nil
		}
		m.setStatus("Copied to clipboard", "success")
		return m, nil

	case exportDoneMsg:
		m.busy = false
		if msg.err != nil {
			m.setError(msg.err)
			return m, nil
		}
		label := "HTML"
		if msg.strategy != "" {
			label = msg.strategy
		}
		m.setStatus(fmt.Sprintf("Exported (%s) to %s", label, msg.location), "success")
		return m, nil

	case finalizeDoneMsg:
		m.busy = false
		if msg.err != nil {
			m.setError(msg.err)
			return m, nil
		}
		status := "Document finalized"
		if msg.doc.Location != "" {
			status += ": " + msg.doc.Location
		}
		m.setStatus(status, "success")
		return m, tea.Batch(openDraftCmd(m.service, m.draft.ID), loadCmd(m.service))

	case restoreDoneMsg:
		m.busy = false
		switch {
		case msg.err != nil:
			m.setError(msg.err)
		case msg.values == nil:
			m.setStatus("No backup to restore", "info")
		default:
			m.form.SetValues(msg.values)
			m.setStatus(fmt.Sprintf("Restored %d fields from backup", len(msg.values)), "success")
		}
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, m.quit()
		}
		if key.Matches(msg, m.keys.ExpandHelp) {
			m.showExpandedHelp = !m.showExpandedHelp
			return m, nil
		}
		switch m.viewMode {
		case ViewTemplates:
			return m.updateTemplates(msg)
		case ViewDrafts:
			return m.updateDrafts(msg)
		case ViewForm:
			return m.updateForm(msg)
		case ViewPreview:
			return m.updatePreview(msg)
		}
	}

	return m, nil
}

// quit flushes the open draft before leaving
func (m *Model) quit() tea.Cmd {
	if m.draft != nil && m.form != nil && !m.form.readOnly {
		if err := m.service.FlushDraft(context.Background(), m.draft.ID); err != nil {
			m.setError(err)
		}
	}
	return tea.Quit
}

func (m *Model) openForm(draft *models.DocumentDraft, tmpl *models.Template) {
	m.draft = draft
	m.template = tmpl
	m.form = NewFillForm(m.service, draft, tmpl)
	m.form.Resize(m.width, m.height)
	m.viewMode = ViewForm
}

func (m *Model) updateTemplates(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.templateList.FilterState() != list.Filtering {
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, m.quit()
		case key.Matches(msg, m.keys.Drafts):
			m.viewMode = ViewDrafts
			return m, loadCmd(m.service)
		case key.Matches(msg, m.keys.Enter):
			if tmpl, ok := m.templateList.SelectedItem().(*models.Template); ok && !m.busy {
				m.busy = true
				return m, createDraftCmd(m.service, tmpl)
			}
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.templateList, cmd = m.templateList.Update(msg)
	return m, cmd
}

func (m *Model) updateDrafts(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.draftList.FilterState() != list.Filtering {
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, m.quit()
		case key.Matches(msg, m.keys.Templates), key.Matches(msg, m.keys.Back):
			m.viewMode = ViewTemplates
			return m, nil
		case key.Matches(msg, m.keys.Enter):
			if d, ok := m.draftList.SelectedItem().(*models.DocumentDraft); ok && !m.busy {
				m.busy = true
				return m, openDraftCmd(m.service, d.ID)
			}
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.draftList, cmd = m.draftList.Update(msg)
	return m, cmd
}

func (m *Model) updateForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	id := m.draft.ID
	switch {
	case key.Matches(msg, m.keys.Back):
		if !m.form.readOnly {
			if err := m.service.FlushDraft(context.Background(), id); err != nil {
				m.setError(err)
			}
		}
		m.viewMode = ViewDrafts
		return m, loadCmd(m.service)
	case m.busy:
		return m, nil
	case key.Matches(msg, m.keys.Preview):
		m.busy = true
		return m, previewCmd(m.service, id, max(m.width-6, 40))
	case key.Matches(msg, m.keys.Export):
		m.busy = true
		m.setStatus("Exporting...", "info")
		return m, exportCmd(m.service, id, false)
	case key.Matches(msg, m.keys.ExportHTML):
		m.busy = true
		return m, exportCmd(m.service, id, true)
	case key.Matches(msg, m.keys.Finalize) && !m.form.readOnly:
		m.busy = true
		m.setStatus("Finalizing...", "info")
		return m, finalizeCmd(m.service, id)
	case key.Matches(msg, m.keys.Restore) && !m.form.readOnly:
		m.busy = true
		return m, restoreCmd(m.service, id)
	}
	return m, m.form.Update(msg)
}

func (m *Model) updatePreview(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Back) || key.Matches(msg, m.keys.Preview) {
		m.viewMode = ViewForm
		return m, nil
	}
	if key.Matches(msg, m.keys.Copy) {
		return m, copyCmd(m.clipboard, m.previewText)
	}
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View renders the current screen
func (m *Model) View() string {
	var body, help string
	var additional []string

	switch m.viewMode {
	case ViewTemplates:
		body = m.templateList.View()
		help = "enter new draft • d drafts • / filter • q quit"
	case ViewDrafts:
		body = m.draftList.View()
		help = "enter open • t templates • / filter • q quit"
	case ViewForm:
		body = m.formView()
		help = "tab next • shift+tab prev • ctrl+p preview • esc back"
		additional = []string{"ctrl+e export PDF • ctrl+o export HTML", "ctrl+f finalize • ctrl+r restore backup"}
	case ViewPreview:
		title := CreateHeader("Preview", " "+m.draft.Name)
		body = lipgloss.JoinVertical(lipgloss.Left, title, StyleContentContainer.Render(m.viewport.View()))
		help = "↑/↓ scroll • y copy text • esc back"
	}

	parts := []string{body}
	if m.statusMsg != "" {
		parts = append(parts, CreateStatus(m.statusMsg, m.statusType))
	}
	parts = append(parts, CreateContextualHelp([]string{help}, additional, m.showExpandedHelp, m.width))
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m *Model) formView() string {
	subtitle := " " + m.template.Name
	if m.form.readOnly {
		subtitle += " (finalized)"
	}
	header := CreateHeader(m.draft.Name, subtitle)

	done, total := m.form.Progress()
	meta := fmt.Sprintf("%d/%d required fields", done, total)
	if saved := m.form.AutosaveStatus(); saved != "" {
		meta += " • saved " + saved
	}
	if err := m.form.Err(); err != nil {
		meta += " • " + m.errorHandler.FormatError(err)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		StyleMetadata.Render(meta),
		"",
		AddFormPadding(m.form.View()),
	)
}

// Run starts the TUI and blocks until the user quits
func Run(svc *service.Service, draftID string) error {
	p := tea.NewProgram(NewModel(svc, draftID), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
