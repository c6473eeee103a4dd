package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"nhooyr.io/websocket"

	"github.com/argusquant/argus/internal/modules/compute"
)

const (
	streamWriteWait = 10 * time.Second
	streamTickEvery = time.Second
)

// StreamCompute answers GET /api/compute/stream: a websocket pushing
// pipeline progress snapshots. Every broadcast event is forwarded and
// a keepalive snapshot goes out once per second while a run is active.
func (a *API) StreamCompute(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		a.log.Debug().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	events, cancel := a.computer.Subscribe()
	defer cancel()

	ctx := r.Context()
	ticker := time.NewTicker(streamTickEvery)
	defer ticker.Stop()

	// Send the current state immediately so late subscribers see a
	// run already in flight.
	if err := writeProgress(ctx, conn, a.computer.Progress()); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case prog, ok := <-events:
			if !ok {
				return
			}
			if err := writeProgress(ctx, conn, prog); err != nil {
				return
			}
		case <-ticker.C:
			prog := a.computer.Progress()
			if prog.Status != compute.StatusRunning {
				continue
			}
			if err := writeProgress(ctx, conn, prog); err != nil {
				return
			}
		}
	}
}

func writeProgress(ctx context.Context, conn *websocket.Conn, prog compute.Progress) error {
	data, err := json.Marshal(prog)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, streamWriteWait)
	defer cancel()
	return conn.Write(wctx, websocket.MessageText, data)
}
