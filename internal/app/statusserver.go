package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vk/buildgridgo/internal/events"
	"github.com/vk/buildgridgo/internal/report"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The server is bound to localhost for a single operator.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// startStatusServer exposes run progress over HTTP while the run executes:
// GET /health for liveness, GET /progress for a JSON snapshot, and
// GET /events for a websocket stream of status changes.
func (a *App) startStatusServer(ctx context.Context, agg *report.Aggregator, bus *events.Bus) error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "OK")
	})

	mux.HandleFunc("/progress", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(agg.Snapshot()); err != nil {
			a.logger.Warn("Failed to write progress snapshot.", "error", err)
		}
	})

	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		a.serveEvents(ctx, w, r, bus)
	})

	addr := fmt.Sprintf("127.0.0.1:%d", a.config.StatusPort)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("status server listen on %s: %w", addr, err)
	}

	a.httpServer = &http.Server{Handler: mux}
	go func() {
		if err := a.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Warn("Status server stopped unexpectedly.", "error", err)
		}
	}()

	a.logger.Info("Status server listening.", "addr", addr)
	return nil
}

func (a *App) serveEvents(ctx context.Context, w http.ResponseWriter, r *http.Request, bus *events.Bus) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn("Websocket upgrade failed.", "error", err)
		return
	}
	defer conn.Close()

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	changes, err := bus.Subscribe(streamCtx)
	if err != nil {
		a.logger.Warn("Event subscription failed.", "error", err)
		return
	}

	// Drain the client's read side so close frames are processed.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-streamCtx.Done():
			deadline := time.Now().Add(time.Second)
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run complete")
			_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
			return
		case change, ok := <-changes:
			if !ok {
				return
			}
			if err := conn.WriteJSON(change); err != nil {
				return
			}
		}
	}
}

func (a *App) stopStatusServer() {
	if a.httpServer == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("Status server shutdown failed.", "error", err)
	}
	a.httpServer = nil
}
