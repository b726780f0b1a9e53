package server

import (
	"context"

	"uptime-watcher/internal/ipc"
	"uptime-watcher/internal/statesync"
)

// Local serves a renderer running inside the daemon process. Params go
// through the same JSON normalization a remote call would, so validators see
// identical shapes.
type Local struct {
	registry *ipc.Registry
	sync     *statesync.Service
	buffer   int
}

func NewLocal(reg *ipc.Registry, sync *statesync.Service, buffer int) *Local {
	if buffer <= 0 {
		buffer = defaultEventBuff
	}
	return &Local{registry: reg, sync: sync, buffer: buffer}
}

func (l *Local) Invoke(ctx context.Context, channel ipc.Channel, params ...any) (ipc.Response, error) {
	p, err := ipc.NormalizeParams(params...)
	if err != nil {
		return ipc.Response{}, err
	}
	resp := l.registry.Invoke(ctx, channel, p)
	// Round-trip data too, so callers decode the same shapes as over HTTP.
	if err := resp.Normalize(); err != nil {
		return ipc.Response{}, err
	}
	return resp, nil
}

func (l *Local) FullSync(ctx context.Context) (statesync.Snapshot, error) {
	resp, err := l.Invoke(ctx, ipc.RequestFullSync)
	if err != nil {
		return statesync.Snapshot{}, err
	}
	var snap statesync.Snapshot
	err = resp.Decode(&snap)
	return snap, err
}

func (l *Local) Events(ctx context.Context) (<-chan statesync.Frame, error) {
	_, frames, cancel, _ := l.sync.Subscribe(l.buffer)
	go func() {
		<-ctx.Done()
		cancel()
	}()
	return frames, nil
}
