package tui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"docchat/internal/app"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

type view int

const (
	viewChat view = iota
	viewRecents
	viewDocuments
)

// Model is the bubbletea presentation layer. It renders transcript, recents
// and documents from the core and forwards every user intent into the
// ChatController and DocumentRegistry; it holds no domain state of its own.
type Model struct {
	app   *app.Application
	theme Theme
	keys  keyMap

	input     textarea.Model
	pathInput textinput.Model
	spin      spinner.Model

	width  int
	height int

	view         view
	sending      bool
	recentsIndex int
	docsIndex    int
	docsLoading  bool
	promptPath   bool
	confirmDoc   *app.Document

	note    string
	noteErr bool

	// Prompt recall for the chat input, persisted across runs.
	prompts   []string
	histIndex int
	histDraft string
}

func New(application *app.Application) *Model {
	ta := textarea.New()
	ta.Placeholder = "Ask a question about your document..."
	ta.Focus()
	ta.CharLimit = 4000
	ta.SetWidth(80)
	ta.SetHeight(3)
	ta.Prompt = "▍ "
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.BlurredStyle.CursorLine = lipgloss.NewStyle()

	pi := textinput.New()
	pi.Placeholder = "path/to/document.pdf"
	pi.CharLimit = 1024

	th := NewTheme(application.Config.Theme)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = th.Spinner

	prompts := application.History.LoadPromptHistory()

	return &Model{
		app:       application,
		theme:     th,
		keys:      defaultKeyMap(),
		input:     ta,
		pathInput: pi,
		spin:      sp,
		width:     80,
		height:    24,
		prompts:   prompts,
		histIndex: len(prompts),
	}
}

func (m *Model) Init() tea.Cmd {
	return textarea.Blink
}

// Messages delivered back from blocking core calls run inside tea.Cmds.
type (
	replyMsg         struct{ err error }
	docsRefreshedMsg struct{ err error }
	uploadDoneMsg    struct {
		result app.IngestResult
		err    error
	}
	deleteDoneMsg struct {
		filename string
		err      error
	}
	downloadDoneMsg struct {
		path string
		err  error
	}
	statusTickMsg struct{}
)

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.SetWidth(msg.Width - 8)
		m.pathInput.Width = msg.Width - 16
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case replyMsg:
		m.sending = false
		return m, nil

	case docsRefreshedMsg:
		m.docsLoading = false
		m.clampDocsIndex()
		return m, nil

	case uploadDoneMsg:
		if msg.err != nil && !app.IsRemote(msg.err) {
			m.setNote(msg.err.Error(), true)
		}
		return m, tea.Batch(m.statusTickCmd(), func() tea.Msg { return docsRefreshedMsg{} })

	case deleteDoneMsg:
		m.clampDocsIndex()
		return m, m.statusTickCmd()

	case downloadDoneMsg:
		if msg.err != nil {
			m.setNote("Download failed: "+msg.err.Error(), true)
		} else {
			m.setNote("Saved to "+msg.path, false)
		}
		return m, nil

	case statusTickMsg:
		m.app.Documents.MaybeResetStatus(time.Now())
		if status, _ := m.app.Documents.Status(); status == app.StatusSuccess || status == app.StatusError {
			return m, m.statusTickCmd()
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		if m.sending || m.docsLoading {
			return m, cmd
		}
		return m, nil
	}

	if m.view == viewChat && !m.promptPath {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		return m, tea.Quit
	}

	// Path prompt and delete confirmation capture the keyboard first.
	if m.promptPath {
		return m.handlePathPromptKey(msg)
	}
	if m.confirmDoc != nil {
		return m.handleConfirmKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.NewChat):
		m.app.Chat.StartNew()
		m.view = viewChat
		m.setNote("", false)
		return m, nil

	case key.Matches(msg, m.keys.Recents):
		if m.view == viewRecents {
			m.view = viewChat
			return m, nil
		}
		m.view = viewRecents
		m.recentsIndex = 0
		return m, nil

	case key.Matches(msg, m.keys.Documents):
		if m.view == viewDocuments {
			m.view = viewChat
			return m, nil
		}
		m.view = viewDocuments
		m.docsIndex = 0
		m.docsLoading = true
		return m, tea.Batch(m.refreshCmd(), m.spin.Tick)
	}

	switch m.view {
	case viewChat:
		return m.handleChatKey(msg)
	case viewRecents:
		return m.handleRecentsKey(msg)
	case viewDocuments:
		return m.handleDocumentsKey(msg)
	}
	return m, nil
}

func (m *Model) handleChatKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Enter):
		text := strings.TrimSpace(m.input.Value())
		if text == "" || m.sending {
			return m, nil
		}
		m.recordPrompt(text)
		m.input.Reset()
		m.sending = true
		return m, tea.Batch(m.sendCmd(text), m.spin.Tick)

	case key.Matches(msg, m.keys.HistPrev):
		m.recallPrompt(-1)
		return m, nil

	case key.Matches(msg, m.keys.HistNext):
		m.recallPrompt(1)
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) recordPrompt(text string) {
	if n := len(m.prompts); n == 0 || m.prompts[n-1] != text {
		m.prompts = append(m.prompts, text)
		m.app.History.SavePromptHistory(m.prompts)
	}
	m.histIndex = len(m.prompts)
	m.histDraft = ""
}

// recallPrompt steps through earlier inputs; one step past the newest entry
// restores whatever was being typed before recall started.
func (m *Model) recallPrompt(delta int) {
	if len(m.prompts) == 0 {
		return
	}
	if m.histIndex == len(m.prompts) {
		if delta > 0 {
			return
		}
		m.histDraft = m.input.Value()
	}
	next := m.histIndex + delta
	if next < 0 {
		return
	}
	if next >= len(m.prompts) {
		m.histIndex = len(m.prompts)
		m.input.SetValue(m.histDraft)
		m.input.CursorEnd()
		return
	}
	m.histIndex = next
	m.input.SetValue(m.prompts[next])
	m.input.CursorEnd()
}

func (m *Model) handleRecentsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	convs := m.app.History.Conversations()
	switch {
	case key.Matches(msg, m.keys.Escape):
		m.view = viewChat
	case key.Matches(msg, m.keys.Up):
		if m.recentsIndex > 0 {
			m.recentsIndex--
		}
	case key.Matches(msg, m.keys.Down):
		if m.recentsIndex < len(convs)-1 {
			m.recentsIndex++
		}
	case key.Matches(msg, m.keys.Enter):
		if m.recentsIndex < len(convs) {
			m.app.Chat.Select(convs[m.recentsIndex].ID)
			m.view = viewChat
		}
	case key.Matches(msg, m.keys.Delete):
		if m.recentsIndex < len(convs) {
			m.app.Chat.DeleteConversation(convs[m.recentsIndex].ID)
			if m.recentsIndex > 0 {
				m.recentsIndex--
			}
		}
	}
	return m, nil
}

func (m *Model) handleDocumentsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	docs := m.app.Documents.Documents()
	switch {
	case key.Matches(msg, m.keys.Escape):
		m.view = viewChat
	case key.Matches(msg, m.keys.Up):
		if m.docsIndex > 0 {
			m.docsIndex--
		}
	case key.Matches(msg, m.keys.Down):
		if m.docsIndex < len(docs)-1 {
			m.docsIndex++
		}
	case key.Matches(msg, m.keys.Refresh):
		m.docsLoading = true
		return m, tea.Batch(m.refreshCmd(), m.spin.Tick)
	case key.Matches(msg, m.keys.Upload):
		m.promptPath = true
		m.pathInput.SetValue("")
		m.pathInput.Focus()
		return m, textinput.Blink
	case key.Matches(msg, m.keys.Delete):
		if m.docsIndex < len(docs) {
			doc := docs[m.docsIndex]
			m.confirmDoc = &doc
		}
	case key.Matches(msg, m.keys.Download):
		if m.docsIndex < len(docs) {
			return m, m.downloadCmd(docs[m.docsIndex].Filename)
		}
	}
	return m, nil
}

func (m *Model) handlePathPromptKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Escape):
		m.promptPath = false
		m.pathInput.Blur()
		return m, nil
	case key.Matches(msg, m.keys.Enter):
		path := strings.TrimSpace(m.pathInput.Value())
		m.promptPath = false
		m.pathInput.Blur()
		if path == "" {
			return m, nil
		}
		if fi, err := os.Stat(path); err == nil {
			m.setNote(fmt.Sprintf("Uploading %s (%s)...", filepath.Base(path), humanize.Bytes(uint64(fi.Size()))), false)
		}
		return m, tea.Batch(m.uploadCmd(path), m.spin.Tick, m.statusTickCmd())
	}

	var cmd tea.Cmd
	m.pathInput, cmd = m.pathInput.Update(msg)
	return m, cmd
}

func (m *Model) handleConfirmKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	doc := *m.confirmDoc
	switch msg.String() {
	case "y", "Y":
		m.confirmDoc = nil
		return m, m.deleteCmd(doc)
	case "n", "N", "esc":
		m.confirmDoc = nil
	}
	return m, nil
}

func (m *Model) sendCmd(text string) tea.Cmd {
	return func() tea.Msg {
		return replyMsg{err: m.app.Chat.SendMessage(context.Background(), text)}
	}
}

func (m *Model) refreshCmd() tea.Cmd {
	return func() tea.Msg {
		return docsRefreshedMsg{err: m.app.Documents.Refresh(context.Background())}
	}
}

func (m *Model) uploadCmd(path string) tea.Cmd {
	return func() tea.Msg {
		result, err := m.app.Documents.Upload(context.Background(), path)
		return uploadDoneMsg{result: result, err: err}
	}
}

func (m *Model) deleteCmd(doc app.Document) tea.Cmd {
	return func() tea.Msg {
		err := m.app.Documents.Delete(context.Background(), doc.Filename, doc.UploadedOn)
		return deleteDoneMsg{filename: doc.Filename, err: err}
	}
}

func (m *Model) downloadCmd(filename string) tea.Cmd {
	return func() tea.Msg {
		dest := downloadDir()
		path, err := m.app.Documents.Download(context.Background(), filename, dest)
		return downloadDoneMsg{path: path, err: err}
	}
}

func (m *Model) statusTickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(time.Time) tea.Msg {
		return statusTickMsg{}
	})
}

func downloadDir() string {
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return filepath.Join(home, "Downloads")
	}
	return "."
}

func (m *Model) setNote(text string, isErr bool) {
	m.note = text
	m.noteErr = isErr
}

func (m *Model) clampDocsIndex() {
	if n := len(m.app.Documents.Documents()); m.docsIndex >= n && n > 0 {
		m.docsIndex = n - 1
	} else if n == 0 {
		m.docsIndex = 0
	}
}

func (m *Model) View() string {
	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n")

	switch m.view {
	case viewRecents:
		b.WriteString(m.renderRecents())
	case viewDocuments:
		b.WriteString(m.renderDocuments())
	default:
		b.WriteString(m.renderTranscript())
	}
	b.WriteString("\n")

	if m.view == viewChat {
		style := m.theme.InputBox
		if m.input.Focused() {
			style = m.theme.InputBoxF
		}
		b.WriteString(style.Width(m.width - 4).Render(m.input.View()))
		b.WriteString("\n")
	}

	if line := m.renderStatusLine(); line != "" {
		b.WriteString(line)
		b.WriteString("\n")
	}

	b.WriteString(m.renderFooter())
	return b.String()
}

func (m *Model) renderHeader() string {
	title := m.theme.TopBarTitle.Render("docchat")
	convs := m.app.History.Conversations()
	meta := m.theme.TopBarMeta.Render(fmt.Sprintf("%d saved chat(s)", len(convs)))
	if provider := m.app.Documents.Provider(); provider != "" {
		meta += "  " + m.theme.TopBarBadge.Render("Using: "+strings.ToUpper(provider))
	}
	return m.theme.TopBar.Width(m.width - 2).Render(title + "  " + meta)
}

func (m *Model) renderTranscript() string {
	var b strings.Builder
	wrap := lipgloss.NewStyle().Width(m.width - 6)

	for _, msg := range m.app.Chat.Transcript() {
		switch msg.Role {
		case app.RoleUser:
			b.WriteString(m.theme.RoleYou.Render("You"))
		default:
			b.WriteString(m.theme.RoleAI.Render("Assistant"))
		}
		b.WriteString("\n")
		b.WriteString(wrap.Render(msg.Content))
		b.WriteString("\n\n")
	}

	if m.sending {
		b.WriteString(m.spin.View())
		b.WriteString(m.theme.TopBarMeta.Render(" Thinking..."))
		b.WriteString("\n")
	}
	return b.String()
}

func (m *Model) renderRecents() string {
	var b strings.Builder
	b.WriteString(m.theme.PaneTitle.Render("Recents"))
	b.WriteString("\n")

	convs := m.app.History.Conversations()
	if len(convs) == 0 {
		b.WriteString(m.theme.TopBarMeta.Render("No previous chats"))
		b.WriteString("\n")
		return m.theme.Pane.Width(m.width - 4).Render(b.String())
	}

	for i, c := range convs {
		title := c.Title
		if title == "" {
			title = "Untitled Chat"
		}
		line := fmt.Sprintf("%s  %s", title, m.theme.TopBarMeta.Render(c.CreatedAt.Format("Jan 02 15:04")))
		if i == m.recentsIndex {
			line = m.theme.Selected.Render("> ") + line
		} else {
			line = "  " + line
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return m.theme.PaneFocused.Width(m.width - 4).Render(b.String())
}

func (m *Model) renderDocuments() string {
	var b strings.Builder
	title := "Manage Documents"
	if provider := m.app.Documents.Provider(); provider != "" {
		title += "  " + m.theme.TopBarBadge.Render("Using: "+strings.ToUpper(provider))
	}
	b.WriteString(m.theme.PaneTitle.Render(title))
	b.WriteString("\n")

	if m.promptPath {
		b.WriteString("Upload PDF: ")
		b.WriteString(m.pathInput.View())
		b.WriteString("\n\n")
	}

	if m.confirmDoc != nil {
		warn := fmt.Sprintf("Delete %q? This removes the document and all its embeddings. (y/n)", m.confirmDoc.Filename)
		b.WriteString(m.theme.StatusWarn.Render(warn))
		b.WriteString("\n\n")
	}

	docs := m.app.Documents.Documents()
	switch {
	case m.docsLoading && len(docs) == 0:
		b.WriteString(m.spin.View())
		b.WriteString(m.theme.TopBarMeta.Render(" Loading documents..."))
		b.WriteString("\n")
	case m.app.Documents.ListError() != "" && len(docs) == 0:
		b.WriteString(m.theme.StatusErr.Render(m.app.Documents.ListError()))
		b.WriteString("\n")
	case len(docs) == 0:
		b.WriteString(m.theme.TopBarMeta.Render("No documents uploaded yet. Press u to upload a PDF."))
		b.WriteString("\n")
	default:
		for i, d := range docs {
			line := fmt.Sprintf("%s  %s  %s", d.Filename, d.SizeFormatted, d.UploadedOnFormatted)
			if m.app.Documents.Deleting(d.Filename) {
				line += "  " + m.theme.StatusWarn.Render("deleting...")
			}
			if i == m.docsIndex {
				line = m.theme.Selected.Render("> ") + line
			} else {
				line = "  " + line
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
	}

	if err := m.app.Documents.ListError(); err != "" && len(docs) > 0 {
		b.WriteString(m.theme.StatusErr.Render(err + " (showing last known list)"))
		b.WriteString("\n")
	}

	b.WriteString(m.theme.TopBarMeta.Render(fmt.Sprintf("%d document(s) available", len(docs))))
	b.WriteString("\n")
	return m.theme.PaneFocused.Width(m.width - 4).Render(b.String())
}

func (m *Model) renderStatusLine() string {
	status, message := m.app.Documents.Status()
	switch status {
	case app.StatusUploading:
		return m.spin.View() + m.theme.StatusWarn.Render(" "+message)
	case app.StatusSuccess:
		return m.theme.StatusOK.Render(message)
	case app.StatusError:
		return m.theme.StatusErr.Render(message)
	}
	if m.note != "" {
		if m.noteErr {
			return m.theme.StatusErr.Render(m.note)
		}
		return m.theme.StatusOK.Render(m.note)
	}
	return ""
}

func (m *Model) renderFooter() string {
	k := m.keys
	var line string
	switch {
	case m.promptPath:
		line = footerHelp(k.Enter, k.Escape)
	case m.view == viewRecents:
		line = footerHelp(k.Up, k.Down, k.Enter, k.Delete, k.Escape, k.Quit)
	case m.view == viewDocuments:
		line = footerHelp(k.Up, k.Down, k.Refresh, k.Upload, k.Delete, k.Download, k.Escape, k.Quit)
	default:
		line = footerHelp(k.Enter, k.NewChat, k.Recents, k.Documents, k.Quit)
	}
	return m.theme.Footer.Render(line)
}
