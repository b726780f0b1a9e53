package tui

import (
	"errors"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"uptime-watcher/internal/ipc"
	"uptime-watcher/internal/monitortypes"
	"uptime-watcher/internal/statesync"
)

const reconnectDelay = 3 * time.Second

type connectedMsg struct {
	frames <-chan statesync.Frame
	err    error
}

type connectErrMsg struct{ err error }

type frameMsg struct {
	frame statesync.Frame
	err   error
}

type streamClosedMsg struct{}

type reconnectMsg struct{}

type typesMsg struct{ types []typeItem }

type limitMsg struct{ limit int }

type actionMsg struct {
	label string
	err   error
}

// connect subscribes first and then pulls a snapshot, so no delta between the
// two is lost. Frames the snapshot already covers are discarded by revision.
func (m Model) connect() tea.Cmd {
	return func() tea.Msg {
		frames, err := m.backend.Events(m.ctx)
		if err != nil {
			return connectErrMsg{err: err}
		}
		return connectedMsg{frames: frames, err: m.store.Resync(m.ctx)}
	}
}

func (m Model) waitFrame() tea.Cmd {
	frames := m.frames
	if frames == nil {
		return nil
	}
	return func() tea.Msg {
		f, ok := <-frames
		if !ok {
			return streamClosedMsg{}
		}
		return frameMsg{frame: f, err: m.store.Handle(m.ctx, f)}
	}
}

func (m Model) loadTypes() tea.Cmd {
	return func() tea.Msg {
		resp, err := m.backend.Invoke(m.ctx, ipc.GetMonitorTypes)
		if err != nil {
			return actionMsg{label: "load monitor types", err: err}
		}
		var configs []monitortypes.Config
		if err := resp.Decode(&configs); err != nil {
			return actionMsg{label: "load monitor types", err: err}
		}
		items := make([]typeItem, 0, len(configs))
		for _, c := range configs {
			items = append(items, typeItem{typ: c.Type, name: c.DisplayName, desc: c.Description})
		}
		return typesMsg{types: items}
	}
}

func (m Model) loadHistoryLimit() tea.Cmd {
	return func() tea.Msg {
		var limit int
		resp, err := m.backend.Invoke(m.ctx, ipc.GetHistoryLimit)
		if err == nil {
			err = resp.Decode(&limit)
		}
		if err != nil {
			return actionMsg{label: "load history limit", err: err}
		}
		return limitMsg{limit: limit}
	}
}

// invoke runs one channel call and reports the outcome as an actionMsg.
func (m Model) invoke(label string, channel ipc.Channel, params ...any) tea.Cmd {
	return func() tea.Msg {
		resp, err := m.backend.Invoke(m.ctx, channel, params...)
		if err == nil {
			err = responseError(resp)
		}
		return actionMsg{label: label, err: err}
	}
}

func responseError(resp ipc.Response) error {
	if resp.Success {
		return nil
	}
	if errs := resp.ValidationErrors(); len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return errors.New(resp.Error)
}
