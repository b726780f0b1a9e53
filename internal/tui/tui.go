package tui

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"uptime-watcher/internal/ipc"
	"uptime-watcher/internal/models"
	"uptime-watcher/internal/renderer"
	"uptime-watcher/internal/statesync"
)

var (
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"})
	specialStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"})
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#F0E442", Dark: "#F0E442"})
	dangerStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#F25D94", Dark: "#F25D94"})
	titleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4")).Bold(true)

	activeTab   = lipgloss.NewStyle().Border(lipgloss.NormalBorder(), false, false, true, false).BorderForeground(lipgloss.Color("#7D56F4")).Foreground(lipgloss.Color("#7D56F4")).Bold(true).Padding(0, 1)
	inactiveTab = lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.AdaptiveColor{Light: "#AAA", Dark: "#555"})

	colName   = lipgloss.NewStyle().Width(24)
	colTarget = lipgloss.NewStyle().Width(32)
	colStatus = lipgloss.NewStyle().Width(10)
	colType   = lipgloss.NewStyle().Width(8)
	colCount  = lipgloss.NewStyle().Width(10)
)

// Backend is the daemon as seen from the terminal UI. Both the HTTP client
// and the in-process bridge satisfy it.
type Backend interface {
	Invoke(ctx context.Context, channel ipc.Channel, params ...any) (ipc.Response, error)
	FullSync(ctx context.Context) (statesync.Snapshot, error)
	Events(ctx context.Context) (<-chan statesync.Frame, error)
}

type typeItem struct {
	typ, name, desc string
}

func (i typeItem) Title() string       { return i.name }
func (i typeItem) Description() string { return i.desc }
func (i typeItem) FilterValue() string { return i.name }

type sessionState int

const (
	stateDashboard sessionState = iota
	stateEvents
	stateFormSite
	stateFormLimit
	stateSelectType
)

const (
	tabSites = iota
	tabMonitors
	tabEvents
)

const maxEventLines = 200

// Model is the bubbletea model for the dashboard.
type Model struct {
	ctx     context.Context
	backend Backend
	store   *renderer.Store
	logger  *slog.Logger

	state      sessionState
	currentTab int

	cursor       int
	tableOffset  int
	maxTableRows int

	editID   string
	inputs   []textinput.Model
	focus    int
	errorMsg string
	notice   string

	logViewport  viewport.Model
	formViewport viewport.Model

	typeList list.Model
	types    []typeItem

	frames     <-chan statesync.Frame
	eventLines []string
	connected  bool
}

// New builds the dashboard. ctx bounds every backend call and the event
// stream.
func New(ctx context.Context, backend Backend, logger *slog.Logger) Model {
	if logger == nil {
		logger = slog.Default()
	}
	vpLogs := viewport.New(100, 20)
	vpLogs.SetContent("Waiting for events...")
	vpForm := viewport.New(100, 20)

	l := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Select Monitor Type"
	l.SetShowHelp(false)

	return Model{
		ctx:          ctx,
		backend:      backend,
		store:        renderer.NewStore(backend, logger),
		logger:       logger.With("component", "tui"),
		state:        stateDashboard,
		inputs:       []textinput.Model{},
		logViewport:  vpLogs,
		formViewport: vpForm,
		typeList:     l,
		maxTableRows: 5,
	}
}

// Store exposes the synchronized state the dashboard renders.
func (m Model) Store() *renderer.Store { return m.store }

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.connect(),
		m.loadTypes(),
		m.loadHistoryLimit(),
		tick(),
	)
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return t })
}

// monitorRow flattens one monitor for the Monitors tab.
type monitorRow struct {
	site    models.Site
	monitor models.Monitor
}

func (m Model) monitorRows() []monitorRow {
	var rows []monitorRow
	for _, site := range m.store.Sites() {
		for _, mon := range site.Monitors {
			rows = append(rows, monitorRow{site: site, monitor: mon})
		}
	}
	return rows
}

func (m Model) rowCount() int {
	if m.currentTab == tabMonitors {
		return len(m.monitorRows())
	}
	return len(m.store.Sites())
}

func (m *Model) clampCursor() {
	n := m.rowCount()
	if m.cursor > n-1 {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
	if m.cursor < m.tableOffset {
		m.tableOffset = m.cursor
	}
	if m.tableOffset < 0 {
		m.tableOffset = 0
	}
}

func (m *Model) pushEvent(line string) {
	m.eventLines = append(m.eventLines, line)
	if len(m.eventLines) > maxEventLines {
		m.eventLines = m.eventLines[len(m.eventLines)-maxEventLines:]
	}
	content := ""
	for i, l := range m.eventLines {
		if i > 0 {
			content += "\n"
		}
		content += l
	}
	m.logViewport.SetContent(content)
	m.logViewport.GotoBottom()
}

func ti(ph string, width int) textinput.Model {
	t := textinput.New()
	t.Placeholder = ph
	t.Width = width
	return t
}

func (m *Model) initFormSite() {
	m.inputs = make([]textinput.Model, 5)
	m.inputs[0] = ti("my-site", 30)
	m.inputs[0].Focus()
	m.inputs[1] = ti("My Site", 30)
	m.inputs[2] = ti("http", 10)
	m.inputs[2].SetValue("http")
	m.inputs[3] = ti("https://example.com or host:port", 40)
	m.inputs[4] = ti("300", 10)
	m.focus = 0
	m.errorMsg = ""
}

func (m *Model) initFormLimit() {
	m.inputs = make([]textinput.Model, 1)
	m.inputs[0] = ti("500", 10)
	m.inputs[0].SetValue(fmt.Sprint(m.store.HistoryLimit()))
	m.inputs[0].Focus()
	m.focus = 0
	m.errorMsg = ""
}

func (m *Model) openTypeSelector() {
	m.state = stateSelectType
	items := make([]list.Item, 0, len(m.types))
	for _, t := range m.types {
		items = append(items, t)
	}
	if len(items) == 0 {
		items = append(items,
			typeItem{typ: "http", name: "HTTP (Website/API)", desc: "http"},
			typeItem{typ: "port", name: "Port", desc: "port"})
	}
	m.typeList.SetItems(items)
	m.typeList.SetSize(m.formViewport.Width, m.formViewport.Height)
}

func limitStr(text string, max int) string {
	if len(text) > max {
		return text[:max-3] + "..."
	}
	return text
}
