package tui

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mward/shadowtrace/internal/models"
	"github.com/mward/shadowtrace/internal/storage"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7D56F4"))

	paneStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7D56F4"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262"))

	highStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF5F5F"))

	senderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00BFFF"))

	deletedStyle = lipgloss.NewStyle().
			Italic(true).
			Foreground(lipgloss.Color("#FF5F5F"))
)

// Browser is the interactive session and gap viewer.
type Browser struct {
	store  *storage.Store
	dbPath string
}

func NewBrowser(store *storage.Store, dbPath string) *Browser {
	return &Browser{store: store, dbPath: dbPath}
}

func (b *Browser) Run() error {
	m := initialModel(b.store, b.dbPath)
	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return err
	}
	return nil
}

type sessionItem struct {
	session models.Session
}

func (i sessionItem) FilterValue() string {
	return i.session.Name
}

func (i sessionItem) Title() string {
	return i.session.Name
}

func (i sessionItem) Description() string {
	return fmt.Sprintf("%d msgs | %d gaps | %s | %s",
		i.session.TotalMessages, i.session.DetectedGaps,
		i.session.Status, i.session.CreatedAt.Format("2006-01-02 15:04"))
}

type viewKind int

const (
	viewMessages viewKind = iota
	viewGaps
)

type model struct {
	store    *storage.Store
	sessions []models.Session
	list     list.Model
	viewport viewport.Model
	selected *models.Session
	view     viewKind
	width    int
	height   int
	ready    bool
	err      error
	dbPath   string
}

func initialModel(store *storage.Store, dbPath string) model {
	items := []list.Item{}

	sessions, err := store.ListSessions(100, 0)
	if err == nil {
		for _, sess := range sessions {
			items = append(items, sessionItem{session: sess})
		}
	}

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true

	l := list.New(items, delegate, 0, 0)
	l.Title = "Sessions"
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.Styles.Title = titleStyle

	vp := viewport.New(0, 0)
	vp.HighPerformanceRendering = false

	return model{
		store:    store,
		sessions: sessions,
		list:     l,
		viewport: vp,
		err:      err,
		dbPath:   dbPath,
	}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		if !m.ready {
			m.ready = true
		}

		listWidth := m.width / 3
		m.list.SetSize(listWidth, m.height-3)

		m.viewport.Width = m.width - listWidth - 4
		m.viewport.Height = m.height - 4

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit

		case "enter":
			if item, ok := m.list.SelectedItem().(sessionItem); ok {
				sess, err := m.store.GetSession(item.session.ID)
				if err == nil && sess != nil {
					m.selected = sess
					m.view = viewMessages
					m.updateViewport()
				}
			}

		case "g":
			if m.selected != nil {
				m.view = viewGaps
				m.updateViewport()
			}

		case "m":
			if m.selected != nil {
				m.view = viewMessages
				m.updateViewport()
			}
		}
	}

	m.list, cmd = m.list.Update(msg)
	cmds = append(cmds, cmd)

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m *model) updateViewport() {
	if m.selected == nil {
		m.viewport.SetContent("Select a session to view")
		return
	}

	switch m.view {
	case viewGaps:
		m.viewport.SetContent(m.renderGaps())
	default:
		m.viewport.SetContent(m.renderMessages())
	}
	m.viewport.GotoTop()
}

func (m *model) renderMessages() string {
	var content strings.Builder
	content.WriteString(titleStyle.Render(m.selected.Name))
	content.WriteString("\n\n")
	content.WriteString(fmt.Sprintf("Participants: %s\n", strings.Join(m.selected.Participants, ", ")))
	content.WriteString(fmt.Sprintf("Span: %s to %s\n",
		m.selected.StartAt.Format("2006-01-02 15:04"),
		m.selected.EndAt.Format("2006-01-02 15:04")))
	content.WriteString(fmt.Sprintf("Status: %s\n", m.selected.Status))
	content.WriteString("\n" + strings.Repeat("─", 40) + "\n\n")

	msgs, err := m.store.GetMessages(m.selected.ID)
	if err != nil {
		return content.String() + fmt.Sprintf("Error loading messages: %v", err)
	}

	for _, msg := range msgs {
		ts := msg.Timestamp.Format("02/01 15:04")
		switch {
		case msg.IsDeleted:
			content.WriteString(fmt.Sprintf("[%s] %s: ", ts, senderStyle.Render(msg.Sender)))
			content.WriteString(deletedStyle.Render("(message was deleted)"))
		case msg.Kind == models.KindSystem:
			content.WriteString(helpStyle.Render(fmt.Sprintf("[%s] %s", ts, msg.Content)))
		default:
			content.WriteString(fmt.Sprintf("[%s] %s: %s", ts, senderStyle.Render(msg.Sender), msg.Content))
		}
		content.WriteString("\n")
	}

	return content.String()
}

func (m *model) renderGaps() string {
	var content strings.Builder
	content.WriteString(titleStyle.Render(m.selected.Name + " · gaps"))
	content.WriteString("\n\n")

	gaps, err := m.store.GapsForSession(m.selected.ID)
	if err != nil {
		return content.String() + fmt.Sprintf("Error loading gaps: %v", err)
	}
	if len(gaps) == 0 {
		return content.String() + "No gaps detected. Run analyze on this session first."
	}

	for _, gap := range gaps {
		score := fmt.Sprintf("%.2f", gap.SuspicionScore)
		if gap.SuspicionScore >= 0.6 {
			score = highStyle.Render(score)
		}
		content.WriteString(fmt.Sprintf("Gap %s\n", gap.ID[:8]))
		content.WriteString(fmt.Sprintf("  between seq %d and %d | %s | suspicion %s\n",
			gap.BeforeSeq, gap.AfterSeq, gap.DetectionType, score))
		for _, reason := range gap.Reasons {
			content.WriteString(fmt.Sprintf("  - %s\n", reason))
		}

		inf, err := m.store.GetInference(gap.ID)
		if err == nil && inf != nil {
			content.WriteString(fmt.Sprintf("  inference (%s, %.2f, %s): %s\n",
				inf.ModelUsed, inf.Confidence, inf.Verified, inf.PredictedIntent))
		}
		content.WriteString("\n")
	}

	return content.String()
}

func (m model) View() string {
	if !m.ready {
		return "\n  Initializing..."
	}

	if m.err != nil {
		return fmt.Sprintf("\n  Error: %v\n", m.err)
	}

	listView := paneStyle.
		Width(m.width/3 - 2).
		Height(m.height - 3).
		Render(m.list.View())

	contentView := paneStyle.
		Width(m.width - m.width/3 - 2).
		Height(m.height - 3).
		Render(m.viewport.View())

	help := helpStyle.Render("  j/k: navigate • enter: open • m: messages • g: gaps • /: filter • q: quit")

	dbInfo := fmt.Sprintf("DB: %s", filepath.Base(m.dbPath))
	if m.dbPath == "" {
		dbInfo = "DB: default"
	}

	topBar := lipgloss.JoinHorizontal(
		lipgloss.Left,
		titleStyle.Render("ShadowTrace"),
		helpStyle.Render("  "+dbInfo),
	)

	return topBar + "\n" +
		lipgloss.JoinHorizontal(
			lipgloss.Top,
			listView,
			contentView,
		) + "\n" + help
}
