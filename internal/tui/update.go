package tui

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"uptime-watcher/internal/ipc"
	"uptime-watcher/internal/models"
)

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		headerHeight := 4
		footerHeight := 2
		m.maxTableRows = msg.Height - headerHeight - footerHeight - 3
		if m.maxTableRows < 1 {
			m.maxTableRows = 1
		}

		m.logViewport.Width = msg.Width
		m.logViewport.Height = msg.Height - 6

		m.formViewport.Width = msg.Width
		m.formViewport.Height = msg.Height - 3

		m.typeList.SetSize(msg.Width, msg.Height-4)

	case time.Time:
		m.clampCursor()
		return m, tick()

	case connectedMsg:
		m.frames = msg.frames
		m.connected = true
		if msg.err != nil {
			m.errorMsg = "sync failed: " + msg.err.Error()
		} else {
			m.errorMsg = ""
		}
		m.pushEvent(fmt.Sprintf("%s connected, revision %d", stamp(time.Now()), m.store.Revision()))
		return m, m.waitFrame()

	case connectErrMsg:
		m.connected = false
		m.errorMsg = "daemon unreachable: " + msg.err.Error()
		return m, tea.Tick(reconnectDelay, func(time.Time) tea.Msg { return reconnectMsg{} })

	case reconnectMsg:
		return m, m.connect()

	case frameMsg:
		line := fmt.Sprintf("%s #%d %s", stamp(msg.frame.Timestamp), msg.frame.Revision, msg.frame.Event)
		if msg.err != nil {
			line += " (resync failed: " + msg.err.Error() + ")"
		}
		m.pushEvent(line)
		m.clampCursor()
		return m, m.waitFrame()

	case streamClosedMsg:
		m.frames = nil
		m.connected = false
		m.store.MarkUnsynchronized()
		m.pushEvent(stamp(time.Now()) + " event stream closed")
		return m, tea.Tick(reconnectDelay, func(time.Time) tea.Msg { return reconnectMsg{} })

	case typesMsg:
		m.types = msg.types
		return m, nil

	case limitMsg:
		m.store.SetHistoryLimit(msg.limit)
		return m, nil

	case actionMsg:
		if msg.err != nil {
			m.errorMsg = msg.label + ": " + msg.err.Error()
			if m.state == stateFormSite || m.state == stateFormLimit {
				m.updateFormContent()
			}
			return m, nil
		}
		m.errorMsg = ""
		m.notice = msg.label
		if m.state == stateFormSite || m.state == stateFormLimit {
			m.state = stateDashboard
			if m.currentTab == tabEvents {
				m.state = stateEvents
			}
		}
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}

		if m.state == stateSelectType {
			switch msg.String() {
			case "esc":
				m.state = stateFormSite
				m.updateFormContent()
				return m, nil
			case "enter":
				if itm, ok := m.typeList.SelectedItem().(typeItem); ok {
					m.inputs[2].SetValue(itm.typ)
				}
				m.state = stateFormSite
				m.updateFormContent()
				return m, nil
			}
			m.typeList, cmd = m.typeList.Update(msg)
			return m, cmd
		}

		switch m.state {
		case stateDashboard, stateEvents:
			return m.updateDashboard(msg)

		case stateFormSite, stateFormLimit:
			switch msg.String() {
			case "esc":
				m.state = stateDashboard
				if m.currentTab == tabEvents {
					m.state = stateEvents
				}
				m.errorMsg = ""
				return m, nil

			case "pgup", "pgdown":
				m.formViewport, cmd = m.formViewport.Update(msg)
				return m, cmd

			case "tab", "shift+tab", "enter", "up", "down":
				s := msg.String()

				if m.state == stateFormSite && m.focus == 2 && s == "enter" {
					m.openTypeSelector()
					return m, nil
				}

				if s == "enter" && m.focus == len(m.inputs)-1 {
					submit, err := m.submitForm()
					if err != nil {
						m.errorMsg = err.Error()
						m.updateFormContent()
						return m, nil
					}
					return m, submit
				}

				if s == "up" || s == "shift+tab" {
					m.focus--
				} else {
					m.focus++
				}
				if m.focus > len(m.inputs)-1 {
					m.focus = 0
				}
				if m.focus < 0 {
					m.focus = len(m.inputs) - 1
				}

				for i := 0; i < len(m.inputs); i++ {
					if i == m.focus {
						cmds = append(cmds, m.inputs[i].Focus())
					} else {
						m.inputs[i].Blur()
					}
				}

				m.formViewport.SetYOffset(m.focus * 4)

				m.updateFormContent()
				return m, tea.Batch(cmds...)

			default:
				if m.state == stateFormSite && m.focus == 2 {
					return m, nil
				}
				if m.state == stateFormSite && m.focus == 0 && m.editID != "" {
					return m, nil
				}
			}
		}
	}

	if m.state == stateFormSite || m.state == stateFormLimit {
		for i := range m.inputs {
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		m.updateFormContent()
	}
	return m, tea.Batch(cmds...)
}

func (m Model) updateDashboard(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "tab":
		m.currentTab++
		if m.currentTab > tabEvents {
			m.currentTab = tabSites
		}
		m.cursor = 0
		m.tableOffset = 0
		if m.currentTab == tabEvents {
			m.state = stateEvents
		} else {
			m.state = stateDashboard
		}
	case "pgup", "pgdown":
		if m.state == stateEvents {
			m.logViewport, cmd = m.logViewport.Update(msg)
			return m, cmd
		}
	case "up", "k":
		if m.state == stateEvents {
			m.logViewport.LineUp(1)
		} else if m.cursor > 0 {
			m.cursor--
			if m.cursor < m.tableOffset {
				m.tableOffset = m.cursor
			}
		}
	case "down", "j":
		if m.state == stateEvents {
			m.logViewport.LineDown(1)
		} else if m.cursor < m.rowCount()-1 {
			m.cursor++
			if m.cursor >= m.tableOffset+m.maxTableRows {
				m.tableOffset++
			}
		}
	case "n":
		m.editID = ""
		m.state = stateFormSite
		m.initFormSite()
		m.formViewport.GotoTop()
		m.updateFormContent()
	case "e", "enter":
		site, ok := m.selectedSite()
		if !ok || m.state == stateEvents {
			return m, nil
		}
		m.editID = site.Identifier
		m.state = stateFormSite
		m.initFormSite()
		m.inputs[0].SetValue(site.Identifier)
		m.inputs[0].Blur()
		m.inputs[1].SetValue(site.Name)
		m.inputs[1].Focus()
		m.focus = 1
		if len(site.Monitors) > 0 {
			mon := site.Monitors[0]
			m.inputs[2].SetValue(mon.Type)
			m.inputs[3].SetValue(monitorTarget(mon))
			m.inputs[4].SetValue(strconv.Itoa(mon.CheckIntervalMs / 1000))
		}
		m.formViewport.GotoTop()
		m.updateFormContent()
	case "h":
		m.state = stateFormLimit
		m.initFormLimit()
		m.formViewport.GotoTop()
		m.updateFormContent()
	case "d", "backspace":
		if m.currentTab == tabMonitors {
			if row, ok := m.selectedMonitor(); ok {
				return m, m.invoke("monitor removed", ipc.RemoveMonitor, row.site.Identifier, row.monitor.ID)
			}
		} else if site, ok := m.selectedSite(); ok {
			return m, m.invoke("site removed", ipc.RemoveSite, site.Identifier)
		}
	case "s":
		if m.currentTab == tabMonitors {
			if row, ok := m.selectedMonitor(); ok {
				if row.monitor.Monitoring {
					return m, m.invoke("monitor paused", ipc.StopMonitoringForSite, row.site.Identifier, row.monitor.ID)
				}
				return m, m.invoke("monitor started", ipc.StartMonitoringForSite, row.site.Identifier, row.monitor.ID)
			}
		} else if site, ok := m.selectedSite(); ok {
			if site.Monitoring {
				return m, m.invoke("site paused", ipc.StopMonitoringForSite, site.Identifier)
			}
			return m, m.invoke("site started", ipc.StartMonitoringForSite, site.Identifier)
		}
	case "c":
		if row, ok := m.checkTarget(); ok {
			return m, m.invoke("checked "+row.site.DisplayName(), ipc.CheckSiteNow, row.site.Identifier, row.monitor.ID)
		}
	case "S":
		return m, m.invoke("monitoring started", ipc.StartMonitoring)
	case "X":
		return m, m.invoke("monitoring stopped", ipc.StopMonitoring)
	case "r":
		return m, m.resync()
	}
	return m, nil
}

func (m Model) resync() tea.Cmd {
	return func() tea.Msg {
		return actionMsg{label: "resynchronized", err: m.store.Resync(m.ctx)}
	}
}

func (m Model) selectedSite() (models.Site, bool) {
	if m.currentTab != tabSites {
		return models.Site{}, false
	}
	sites := m.store.Sites()
	if m.cursor < 0 || m.cursor >= len(sites) {
		return models.Site{}, false
	}
	return sites[m.cursor], true
}

func (m Model) selectedMonitor() (monitorRow, bool) {
	if m.currentTab != tabMonitors {
		return monitorRow{}, false
	}
	rows := m.monitorRows()
	if m.cursor < 0 || m.cursor >= len(rows) {
		return monitorRow{}, false
	}
	return rows[m.cursor], true
}

// checkTarget resolves the monitor a manual check applies to. On the Sites
// tab that is the site's first monitor.
func (m Model) checkTarget() (monitorRow, bool) {
	if row, ok := m.selectedMonitor(); ok {
		return row, true
	}
	site, ok := m.selectedSite()
	if !ok || len(site.Monitors) == 0 {
		return monitorRow{}, false
	}
	return monitorRow{site: site, monitor: site.Monitors[0]}, true
}

// submitForm validates the open form and returns the command that applies it.
func (m *Model) submitForm() (tea.Cmd, error) {
	if m.state == stateFormLimit {
		limit, err := strconv.Atoi(strings.TrimSpace(m.inputs[0].Value()))
		if err != nil {
			return nil, fmt.Errorf("history limit must be a number")
		}
		return m.invoke("history limit updated", ipc.UpdateHistoryLimit, limit), nil
	}

	identifier := strings.TrimSpace(m.inputs[0].Value())
	if identifier == "" {
		return nil, fmt.Errorf("identifier is required")
	}
	target := strings.TrimSpace(m.inputs[3].Value())
	if target == "" {
		return nil, fmt.Errorf("URL or host:port is required")
	}
	mon := models.Monitor{Type: m.inputs[2].Value(), Monitoring: true}
	if v := strings.TrimSpace(m.inputs[4].Value()); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil || secs < 1 {
			return nil, fmt.Errorf("interval must be a positive number of seconds")
		}
		mon.CheckIntervalMs = secs * 1000
	}
	if err := setTarget(&mon, target); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(m.inputs[1].Value())

	if m.editID != "" {
		site, _ := m.store.Site(m.editID)
		monitors := append([]models.Monitor{}, site.Monitors...)
		if len(monitors) > 0 {
			mon.ID = monitors[0].ID
			mon.Monitoring = monitors[0].Monitoring
			mon.TimeoutMs = monitors[0].TimeoutMs
			mon.RetryAttempts = monitors[0].RetryAttempts
			if mon.CheckIntervalMs == 0 {
				mon.CheckIntervalMs = monitors[0].CheckIntervalMs
			}
			monitors[0] = mon
		} else {
			monitors = append(monitors, mon)
		}
		update := map[string]any{"name": name, "monitors": monitors}
		return m.invoke("site updated", ipc.UpdateSite, m.editID, update), nil
	}

	site := models.Site{
		Identifier: identifier,
		Name:       name,
		Monitoring: true,
		Monitors:   []models.Monitor{mon},
	}
	return m.invoke("site added", ipc.AddSite, site), nil
}

func setTarget(mon *models.Monitor, target string) error {
	if mon.Type == "port" {
		host, port, err := net.SplitHostPort(target)
		if err != nil {
			return fmt.Errorf("port monitors need host:port")
		}
		n, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid port %q", port)
		}
		mon.Host, mon.Port = host, n
		return nil
	}
	mon.URL = target
	return nil
}

func monitorTarget(mon models.Monitor) string {
	if mon.Type == "port" {
		return net.JoinHostPort(mon.Host, strconv.Itoa(mon.Port))
	}
	return mon.URL
}

func stamp(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.Local().Format("15:04:05")
}
