package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"uptime-watcher/internal/models"
)

func (m *Model) updateFormContent() {
	var content string
	if m.errorMsg != "" {
		content += dangerStyle.Render("Error: "+m.errorMsg) + "\n\n"
	}

	if m.state == stateFormSite {
		if len(m.inputs) < 5 {
			return
		}
		title := "Add Site"
		if m.editID != "" {
			title = "Edit Site " + m.editID
		}
		content += titleStyle.Render(title) + "\n\n"
		idView := m.inputs[0].View()
		if m.editID != "" {
			idView = subtleStyle.Render(m.editID)
		}
		content += "Identifier:\n" + idView + "\n\n"
		content += "Name:\n" + m.inputs[1].View() + "\n\n"

		lbl := "Monitor Type:"
		val := fmt.Sprintf("%s [Enter to Change]", m.inputs[2].Value())
		if m.focus == 2 {
			lbl = specialStyle.Render(lbl)
			val = specialStyle.Render(val)
		}
		content += lbl + "\n" + val + "\n\n"
		target := "URL:"
		if m.inputs[2].Value() == "port" {
			target = "Host:Port:"
		}
		content += target + "\n" + m.inputs[3].View() + "\n\n"
		content += "Check Interval (sec):\n" + m.inputs[4].View() + "\n\n"

	} else if m.state == stateFormLimit {
		if len(m.inputs) < 1 {
			return
		}
		content += titleStyle.Render("History Limit") + "\n\n"
		content += "Entries kept per monitor (0 keeps everything):\n" + m.inputs[0].View() + "\n\n"
	}
	m.formViewport.SetContent(lipgloss.NewStyle().Padding(1, 2).Render(content))
}

func (m Model) View() string {
	switch m.state {
	case stateSelectType:
		f := subtleStyle.Render("\n[Enter] Select  [Esc] Cancel")
		return lipgloss.NewStyle().Padding(1, 2).Render(m.typeList.View()) + "\n" + f
	case stateFormSite, stateFormLimit:
		f := subtleStyle.Render("\n[Enter] Save  [PgUp/PgDn] Scroll  [Esc] Cancel")
		return m.formViewport.View() + "\n" + f
	default:
		return m.viewDashboard()
	}
}

func statusStyle(status string) lipgloss.Style {
	switch status {
	case models.StatusDown:
		return dangerStyle
	case models.StatusPending:
		return warnStyle
	case models.StatusPaused:
		return subtleStyle
	}
	return specialStyle
}

// siteStatus folds monitor statuses: any down wins, then pending, then up.
// A site with nothing running is paused.
func siteStatus(site models.Site) string {
	status := models.StatusPaused
	for _, mon := range site.Monitors {
		if !mon.Monitoring {
			continue
		}
		switch {
		case mon.Status == models.StatusDown:
			return models.StatusDown
		case mon.Status == models.StatusPending:
			status = models.StatusPending
		case status == models.StatusPaused:
			status = models.StatusUp
		}
	}
	return status
}

func monitorStatus(mon models.Monitor) string {
	if !mon.Monitoring {
		return models.StatusPaused
	}
	return mon.Status
}

func (m Model) viewDashboard() string {
	tabs := []string{"Sites", "Monitors", "Events"}
	var renderedTabs []string
	for i, t := range tabs {
		if i == m.currentTab {
			renderedTabs = append(renderedTabs, activeTab.Render(t))
		} else {
			renderedTabs = append(renderedTabs, inactiveTab.Render(t))
		}
	}
	header := lipgloss.JoinHorizontal(lipgloss.Top, renderedTabs...) + "  " + m.syncBadge()
	content := ""

	switch m.currentTab {
	case tabSites:
		content += m.viewSites()
	case tabMonitors:
		content += m.viewMonitors()
	case tabEvents:
		content += "\n" + m.logViewport.View()
	}

	status := ""
	if m.errorMsg != "" {
		status = "\n" + dangerStyle.Render(m.errorMsg)
	} else if m.notice != "" {
		status = "\n" + subtleStyle.Render(m.notice)
	}
	footer := subtleStyle.Render("\n[n] New  [e] Edit  [d] Delete  [s] Start/Stop  [c] Check  [S/X] All On/Off  [h] History  [r] Resync  [Tab] View  [q] Quit")
	return lipgloss.NewStyle().Padding(1, 2).Render(header + "\n" + content + status + "\n" + footer)
}

func (m Model) syncBadge() string {
	if !m.connected {
		return dangerStyle.Render("offline")
	}
	if !m.store.Synchronized() {
		return warnStyle.Render("syncing")
	}
	return specialStyle.Render(fmt.Sprintf("rev %d", m.store.Revision()))
}

func (m Model) window(n int) (int, int) {
	start := m.tableOffset
	end := start + m.maxTableRows
	if end > n {
		end = n
	}
	if start > end {
		start = end
	}
	return start, end
}

func (m Model) viewSites() string {
	sites := m.store.Sites()
	content := "\n" + lipgloss.JoinHorizontal(lipgloss.Left,
		colName.Render("SITE"), colStatus.Render("STATUS"), colCount.Render("MONITORS"), "HISTORY") + "\n"
	content += subtleStyle.Render(strings.Repeat("-", 70)) + "\n"

	if len(sites) == 0 {
		return content + "\n  No sites configured."
	}
	start, end := m.window(len(sites))
	for i := start; i < end; i++ {
		site := sites[i]
		st := siteStatus(site)
		active := 0
		for _, mon := range site.Monitors {
			if mon.Monitoring {
				active++
			}
		}
		row := lipgloss.JoinHorizontal(lipgloss.Left,
			colName.Render(limitStr(site.DisplayName(), 22)),
			colStatus.Render(statusStyle(st).Render(strings.ToUpper(st))),
			colCount.Render(fmt.Sprintf("%d/%d", active, len(site.Monitors))),
			strconv.Itoa(m.store.HistoryLimit()),
		)
		content += m.cursorRow(i, row) + "\n"
	}
	return content
}

func (m Model) viewMonitors() string {
	rows := m.monitorRows()
	content := "\n" + lipgloss.JoinHorizontal(lipgloss.Left,
		colName.Render("SITE"), colType.Render("TYPE"), colTarget.Render("TARGET"), colStatus.Render("STATUS"), "LATENCY") + "\n"
	content += subtleStyle.Render(strings.Repeat("-", 90)) + "\n"

	if len(rows) == 0 {
		return content + "\n  No monitors configured."
	}
	start, end := m.window(len(rows))
	for i := start; i < end; i++ {
		r := rows[i]
		st := monitorStatus(r.monitor)
		latency := "-"
		if !r.monitor.LastChecked.IsZero() {
			latency = (time.Duration(r.monitor.ResponseTime) * time.Millisecond).String()
		}
		row := lipgloss.JoinHorizontal(lipgloss.Left,
			colName.Render(limitStr(r.site.DisplayName(), 22)),
			colType.Render(r.monitor.Type),
			colTarget.Render(limitStr(monitorTarget(r.monitor), 30)),
			colStatus.Render(statusStyle(st).Render(strings.ToUpper(st))),
			latency,
		)
		content += m.cursorRow(i, row) + "\n"
	}
	return content
}

func (m Model) cursorRow(i int, row string) string {
	if m.cursor == i {
		return lipgloss.NewStyle().Bold(true).Render(">" + row)
	}
	return " " + row
}
