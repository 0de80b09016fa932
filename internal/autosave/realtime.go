package autosave

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"
)

// Realtime reconnect and heartbeat constants.
const (
	realtimeInitBackoff = 1 * time.Second
	realtimeMaxBackoff  = 30 * time.Second
	realtimeBackoffMult = 2
	realtimeHeartbeat   = 25 * time.Second
	realtimeWriteWait   = 10 * time.Second
)

// RealtimeWatcher derives connectivity from a long-lived websocket to the
// backend's realtime endpoint: connected means online, a dropped or failed
// connection means offline. It reconnects with capped exponential backoff
// and sends Phoenix-style heartbeats so the server keeps the socket open.
type RealtimeWatcher struct {
	conn   *Connectivity
	url    string
	header http.Header
	logger *slog.Logger
	ref    atomic.Uint64

	heartbeat time.Duration
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewRealtimeWatcher creates a watcher dialing url (ws:// or wss://) with
// the given request headers.
func NewRealtimeWatcher(conn *Connectivity, url string, header http.Header, logger *slog.Logger) *RealtimeWatcher {
	return &RealtimeWatcher{
		conn:      conn,
		url:       url,
		header:    header,
		logger:    logger,
		heartbeat: realtimeHeartbeat,
		sleepFunc: sleepCtx,
	}
}

// Run maintains the connection until ctx is canceled. Always returns nil.
func (w *RealtimeWatcher) Run(ctx context.Context) error {
	backoff := realtimeInitBackoff

	for {
		connected, err := w.session(ctx)
		if ctx.Err() != nil {
			return nil
		}

		w.conn.Set(false)

		if connected {
			backoff = realtimeInitBackoff
		}

		w.logger.Warn("realtime connection lost",
			slog.String("error", errString(err)),
			slog.Duration("backoff", backoff),
		)

		if sleepErr := w.sleepFunc(ctx, backoff); sleepErr != nil {
			return nil
		}

		backoff *= realtimeBackoffMult
		if backoff > realtimeMaxBackoff {
			backoff = realtimeMaxBackoff
		}
	}
}

// session dials once and blocks until the connection fails. connected
// reports whether the dial succeeded.
func (w *RealtimeWatcher) session(ctx context.Context) (connected bool, err error) {
	c, _, err := websocket.Dial(ctx, w.url, &websocket.DialOptions{HTTPHeader: w.header})
	if err != nil {
		return false, fmt.Errorf("dialing realtime endpoint: %w", err)
	}
	defer c.CloseNow()

	w.logger.Debug("realtime connection established", slog.String("url", w.url))
	w.conn.Set(true)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for {
			if _, _, readErr := c.Read(gctx); readErr != nil {
				return readErr
			}
		}
	})

	g.Go(func() error {
		ticker := time.NewTicker(w.heartbeat)
		defer ticker.Stop()

		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-ticker.C:
				if hbErr := w.sendHeartbeat(gctx, c); hbErr != nil {
					return hbErr
				}
			}
		}
	})

	err = g.Wait()

	if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
		return true, errors.New("server closed the connection")
	}

	return true, err
}

func (w *RealtimeWatcher) sendHeartbeat(ctx context.Context, c *websocket.Conn) error {
	writeCtx, cancel := context.WithTimeout(ctx, realtimeWriteWait)
	defer cancel()

	ref := strconv.FormatUint(w.ref.Add(1), 10)
	msg := `{"topic":"phoenix","event":"heartbeat","payload":{},"ref":"` + ref + `"}`

	if err := c.Write(writeCtx, websocket.MessageText, []byte(msg)); err != nil {
		return fmt.Errorf("sending heartbeat: %w", err)
	}

	return nil
}

// sleepCtx waits for d or until ctx is canceled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}
