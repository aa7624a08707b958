package tui

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/calebhart/ratchet/internal/models"
	"github.com/calebhart/ratchet/internal/storage"
)

type View int

const (
	ViewEventList View = iota
	ViewEventDetail
	ViewArtifact
)

type App struct {
	store *storage.Storage

	view                View
	events              []*models.Event
	selectedIdx         int
	selectedEvent       *models.Event
	artifacts           []*models.Artifact
	selectedArtifactIdx int

	artifactView  viewport.Model
	artifactTitle string
	viewportReady bool

	width  int
	height int
	err    error
}

func NewApp(store *storage.Storage) *App {
	return &App{store: store, view: ViewEventList}
}

func (a *App) Init() tea.Cmd {
	return tea.Batch(a.loadEvents, a.tickCmd())
}

func (a *App) tickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (a *App) hasRunningEvents() bool {
	for _, ev := range a.events {
		if ev.Status == models.EventStatusRunning {
			return true
		}
	}
	return false
}

type tickMsg time.Time

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKey(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		if !a.viewportReady {
			a.artifactView = viewport.New(msg.Width, msg.Height-4)
			a.viewportReady = true
		} else {
			a.artifactView.Width = msg.Width
			a.artifactView.Height = msg.Height - 4
		}
		return a, nil

	case eventsLoadedMsg:
		a.events = msg.events
		a.err = msg.err
		if a.hasRunningEvents() {
			return a, a.tickCmd()
		}
		return a, nil

	case tickMsg:
		// Refresh only while something is live; keep ticking to notice new
		// running events.
		if a.view == ViewEventList && a.hasRunningEvents() {
			return a, tea.Batch(a.loadEvents, a.tickCmd())
		}
		return a, a.tickCmd()

	case eventDetailMsg:
		a.selectedEvent = msg.event
		a.artifacts = msg.artifacts
		a.err = msg.err
		if a.err == nil {
			a.view = ViewEventDetail
		}
		return a, nil

	case eventDeletedMsg:
		a.err = msg.err
		if a.selectedIdx >= len(a.events)-1 && a.selectedIdx > 0 {
			a.selectedIdx--
		}
		return a, a.loadEvents

	case artifactLoadedMsg:
		if msg.err != nil {
			a.err = msg.err
			return a, nil
		}
		a.artifactTitle = msg.name
		if a.viewportReady {
			a.artifactView.SetContent(msg.content)
			a.artifactView.GotoTop()
		}
		a.view = ViewArtifact
		return a, nil
	}

	if a.view == ViewArtifact && a.viewportReady {
		var cmd tea.Cmd
		a.artifactView, cmd = a.artifactView.Update(msg)
		return a, cmd
	}

	return a, nil
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch a.view {
	case ViewEventList:
		return a.handleEventListKey(msg)
	case ViewEventDetail:
		return a.handleEventDetailKey(msg)
	case ViewArtifact:
		return a.handleArtifactKey(msg)
	}
	return a, nil
}

func (a *App) handleEventListKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return a, tea.Quit

	case "up", "k":
		if a.selectedIdx > 0 {
			a.selectedIdx--
		}

	case "down", "j":
		if a.selectedIdx < len(a.events)-1 {
			a.selectedIdx++
		}

	case "enter":
		if len(a.events) > 0 && a.selectedIdx < len(a.events) {
			return a, a.loadEventDetail(a.events[a.selectedIdx].ID)
		}

	case "r":
		return a, a.loadEvents

	case "d":
		if len(a.events) > 0 && a.selectedIdx < len(a.events) {
			return a, a.deleteEvent(a.events[a.selectedIdx].ID)
		}
	}

	return a, nil
}

func (a *App) handleEventDetailKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc":
		a.view = ViewEventList
		a.selectedEvent = nil
		a.artifacts = nil
		a.selectedArtifactIdx = 0

	case "ctrl+c":
		return a, tea.Quit

	case "up", "k":
		if a.selectedArtifactIdx > 0 {
			a.selectedArtifactIdx--
		}

	case "down", "j":
		if a.selectedArtifactIdx < len(a.artifacts)-1 {
			a.selectedArtifactIdx++
		}

	case "enter", "o":
		if len(a.artifacts) > 0 && a.selectedArtifactIdx < len(a.artifacts) {
			art := a.artifacts[a.selectedArtifactIdx]
			return a, a.loadArtifact(art)
		}
	}

	return a, nil
}

func (a *App) handleArtifactKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc":
		a.view = ViewEventDetail
		a.artifactTitle = ""
		return a, nil

	case "ctrl+c":
		return a, tea.Quit
	}

	if a.viewportReady {
		var cmd tea.Cmd
		a.artifactView, cmd = a.artifactView.Update(msg)
		return a, cmd
	}
	return a, nil
}

func (a *App) View() string {
	switch a.view {
	case ViewEventList:
		return a.viewEventList()
	case ViewEventDetail:
		return a.viewEventDetail()
	case ViewArtifact:
		return a.viewArtifact()
	}
	return ""
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("57"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	statusRunning   = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	statusCompleted = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	statusFailed    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	statusCancelled = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))
)

func (a *App) viewEventList() string {
	s := titleStyle.Render("Ratchet") + "\n\n"

	if a.err != nil {
		s += fmt.Sprintf("Error: %v\n", a.err)
	}

	if len(a.events) == 0 {
		s += "No events yet. Run a command with 'ratchet run'.\n"
	} else {
		s += "Recent Events\n"
		s += "─────────────\n"

		for i, ev := range a.events {
			line := a.formatEventLine(ev)
			isSelected := i == a.selectedIdx
			isRunning := ev.Status == models.EventStatusRunning

			if isSelected {
				line = selectedStyle.Render("▶ " + line)
			} else if !isRunning {
				line = "  " + dimStyle.Render(line)
			} else {
				line = "  " + line
			}
			s += line + "\n"
		}
	}

	s += "\n" + helpStyle.Render("[enter] view  [d] delete  [r] refresh  [q] quit")

	return s
}

func (a *App) formatEventLine(ev *models.Event) string {
	status := a.formatStatus(ev.Status)
	age := a.formatAge(ev.StartTime)
	session := truncate(ev.SessionID, 35)
	return fmt.Sprintf("#%-4d %-18s %s  %-6s  %s", ev.ID, ev.Command, status, age, session)
}

func (a *App) formatAge(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

func (a *App) formatStatus(status models.EventStatus) string {
	switch status {
	case models.EventStatusRunning:
		return statusRunning.Render("● running")
	case models.EventStatusCompleted:
		return statusCompleted.Render("✓ completed")
	case models.EventStatusFailed:
		return statusFailed.Render("✗ failed")
	case models.EventStatusCancelled:
		return statusCancelled.Render("⚠ cancelled")
	default:
		return string(status)
	}
}

func (a *App) viewEventDetail() string {
	if a.selectedEvent == nil {
		return "No event selected"
	}

	ev := a.selectedEvent

	header := fmt.Sprintf("Event #%d: %s", ev.ID, ev.Command)
	s := titleStyle.Render(header) + "  " + a.formatStatus(ev.Status) + "\n\n"

	s += labelStyle.Render("Session:   ") + ev.SessionID + "\n"
	s += labelStyle.Render("Project:   ") + dimStyle.Render(ev.ProjectPath) + "\n"
	if ev.WorktreeName != "" {
		s += labelStyle.Render("Worktree:  ") + ev.WorktreeName + "\n"
	}
	s += labelStyle.Render("Artifacts: ") + dimStyle.Render(ev.ArtifactsPath) + "\n"
	if ev.EndTime != nil {
		s += labelStyle.Render("Duration:  ") + formatDuration(ev.EndTime.Sub(ev.StartTime)) + "\n"
	}
	if ev.ErrorMessage != "" {
		s += labelStyle.Render("Error:     ") + statusFailed.Render(truncate(ev.ErrorMessage, 70)) + "\n"
	}
	s += "\n"

	s += "Artifacts\n"
	s += "─────────\n"

	if len(a.artifacts) == 0 {
		s += "(no artifacts recorded)\n"
	} else {
		for i, art := range a.artifacts {
			line := fmt.Sprintf("%-8s %-30s %s", art.Type, truncate(art.Name, 30), dimStyle.Render(formatSize(art.FileSize)))
			if i == a.selectedArtifactIdx {
				line = selectedStyle.Render("▶ " + line)
			} else {
				line = "  " + line
			}
			s += line + "\n"
		}
	}

	s += "\n" + helpStyle.Render("[↑/↓] select  [enter] open  [esc] back  [q] quit")

	return s
}

func (a *App) viewArtifact() string {
	s := titleStyle.Render(a.artifactTitle) + "\n\n"
	if a.viewportReady {
		s += a.artifactView.View() + "\n"
	}
	s += helpStyle.Render("[↑/↓] scroll  [esc] back  [q] quit")
	return s
}

// Messages

type eventsLoadedMsg struct {
	events []*models.Event
	err    error
}

type eventDetailMsg struct {
	event     *models.Event
	artifacts []*models.Artifact
	err       error
}

type eventDeletedMsg struct {
	eventID int64
	err     error
}

type artifactLoadedMsg struct {
	name    string
	content string
	err     error
}

// Commands

func (a *App) loadEvents() tea.Msg {
	events, err := a.store.RecentEvents(20)
	return eventsLoadedMsg{events: events, err: err}
}

func (a *App) loadEventDetail(id int64) tea.Cmd {
	return func() tea.Msg {
		ev, err := a.store.GetEvent(id)
		if err != nil {
			return eventDetailMsg{err: err}
		}

		arts, err := a.store.ArtifactsForEvent(id)
		return eventDetailMsg{event: ev, artifacts: arts, err: err}
	}
}

func (a *App) deleteEvent(id int64) tea.Cmd {
	return func() tea.Msg {
		if err := a.store.DeleteEvent(id); err != nil {
			return eventDeletedMsg{err: err}
		}
		return eventDeletedMsg{eventID: id}
	}
}

func (a *App) loadArtifact(art *models.Artifact) tea.Cmd {
	return func() tea.Msg {
		data, err := os.ReadFile(art.FilePath)
		if err != nil {
			return artifactLoadedMsg{err: fmt.Errorf("artifact file not readable: %w", err)}
		}
		return artifactLoadedMsg{name: art.Name, content: string(data)}
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func formatSize(n int64) string {
	switch {
	case n < 1024:
		return fmt.Sprintf("%dB", n)
	case n < 1024*1024:
		return fmt.Sprintf("%.1fKB", float64(n)/1024)
	default:
		return fmt.Sprintf("%.1fMB", float64(n)/(1024*1024))
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
