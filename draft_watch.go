package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/DbyProsper/Fort-Hare-Tutors-Hub-sub000/internal/application"
	"github.com/DbyProsper/Fort-Hare-Tutors-Hub-sub000/internal/autosave"
	"github.com/DbyProsper/Fort-Hare-Tutors-Hub-sub000/internal/config"
	"github.com/DbyProsper/Fort-Hare-Tutors-Hub-sub000/internal/remote"
)

// realtimeProtocolVersion is the Phoenix serializer version requested from
// the realtime endpoint.
const realtimeProtocolVersion = "1.0.0"

func newDraftWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <file>",
		Short: "Autosave a draft file while it is being edited",
		Long: `Watch a draft file and autosave every edit: saves are debounced and
throttled, and while the backend is unreachable the latest draft is kept on
this device and uploaded once the connection returns.

Send SIGHUP (or run 'tutorhub draft save <file>') to save immediately.`,
		Args: cobra.ExactArgs(1),
		RunE: runDraftWatch,
	}

	cmd.Flags().Bool("ephemeral", false, "keep offline drafts in memory only")

	return cmd
}

func runDraftWatch(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	path := args[0]

	d, err := cc.loadDraft(path)
	if err != nil {
		return err
	}

	cleanup, err := writePIDFile(watchPIDPath(cc.Cfg.Store.Path, d.RecordID))
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := shutdownContext(cmd.Context(), cc.Logger)

	client, err := cc.remoteClient()
	if err != nil {
		return err
	}

	var fallback autosave.FallbackStore

	if ephemeral, _ := cmd.Flags().GetBool("ephemeral"); ephemeral {
		fallback = autosave.NewMemoryFallback(0)
	} else {
		store, storeErr := cc.openStore(ctx)
		if storeErr != nil {
			return storeErr
		}
		defer store.Close()

		fallback = store
	}

	conn := autosave.NewConnectivity(cc.checkOnline(ctx, client), cc.Logger)

	s := autosave.New(autosave.Deps{
		Persister:     application.NewDraftPersister(client, cc.Cfg.Remote.Table),
		Fallback:      fallback,
		Connectivity:  conn,
		Detector:      application.NewDetector(),
		StatusDisplay: cc.Cfg.StatusDisplay,
	}, cc.Logger)
	defer s.Wait()
	defer s.Close()

	source, err := connectivitySource(cc, client, conn)
	if err != nil {
		return err
	}

	updates, stopUpdates := s.Subscribe()
	defer stopUpdates()

	s.Configure(draftOptions(cc.Cfg, d))

	cc.Statusf("Watching %s (record %s). Press Ctrl-C to stop.\n", path, d.RecordID)

	g, gctx := errgroup.WithContext(ctx)

	if source != nil {
		g.Go(func() error { return source(gctx) })
	}

	g.Go(func() error {
		printStatusUpdates(gctx, cmd.OutOrStdout(), cc.Flags.JSON, updates)
		return nil
	})

	g.Go(func() error {
		return watchDraftFile(gctx, path, cc.Logger, func() {
			next, loadErr := cc.loadDraft(path)
			if loadErr != nil {
				cc.Logger.Warn("ignoring unreadable draft", slog.String("path", path), slog.String("error", loadErr.Error()))
				return
			}

			s.Configure(draftOptions(cc.Cfg, next))
		})
	})

	hups := saveRequests(gctx)

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-hups:
				cc.Logger.Info("save requested")
				s.SaveNow()
			}
		}
	})

	waitErr := g.Wait()

	stopSynchronizer(cc, s)

	return waitErr
}

// stopSynchronizer closes s and blocks until a save still in flight returns.
func stopSynchronizer(cc *CLIContext, s *autosave.Synchronizer) {
	if s.Status().IsSaving {
		cc.Statusf("Waiting for the current save to finish...\n")
	}

	s.Close()
	s.Wait()
}

// connectivitySource returns the goroutine body feeding conn for the
// configured mode, or nil when nothing should run: --offline pins the
// state, and "always" never changes it.
func connectivitySource(cc *CLIContext, client *remote.Client, conn *autosave.Connectivity) (func(context.Context) error, error) {
	if cc.Cfg.Offline {
		return nil, nil
	}

	switch cc.Cfg.Connectivity.Mode {
	case config.ConnectivityAlways:
		conn.Set(true)
		return nil, nil

	case config.ConnectivityRealtime:
		wsURL, err := realtimeURL(cc.Cfg.Remote.BaseURL, cc.Cfg.Remote.RealtimePath, cc.Cfg.Remote.APIKey)
		if err != nil {
			return nil, err
		}

		header := http.Header{}
		if cc.Cfg.Remote.APIKey != "" {
			header.Set("apikey", cc.Cfg.Remote.APIKey)
		}

		return autosave.NewRealtimeWatcher(conn, wsURL, header, cc.Logger).Run, nil

	default:
		check := func(ctx context.Context) error {
			return client.Health(ctx, cc.Cfg.Remote.HealthPath)
		}

		return autosave.NewProber(conn, check, cc.Cfg.ProbeEvery, cc.Cfg.ConnectTimeout, cc.Logger).Run, nil
	}
}

// realtimeURL derives the websocket endpoint from the REST base URL.
func realtimeURL(baseURL, path, apiKey string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}

	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("base URL %q: unsupported scheme %q", baseURL, u.Scheme)
	}

	u.Path = strings.TrimRight(u.Path, "/") + path

	q := url.Values{}
	if apiKey != "" {
		q.Set("apikey", apiKey)
	}

	q.Set("vsn", realtimeProtocolVersion)
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// printStatusUpdates writes each status change until ctx is done or the
// channel closes.
func printStatusUpdates(ctx context.Context, w io.Writer, asJSON bool, updates <-chan autosave.SaveStatus) {
	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-updates:
			if !ok {
				return
			}

			if asJSON {
				if err := printJSON(w, toStatusJSON(st)); err != nil {
					return
				}

				continue
			}

			fmt.Fprintln(w, statusLine(st))
		}
	}
}

// watchDraftFile calls onChange after every write to path. The parent
// directory is watched so editors that save by rename-and-replace are
// followed.
func watchDraftFile(ctx context.Context, path string, logger *slog.Logger, onChange func()) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", path, err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			if filepath.Clean(ev.Name) != abs || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			logger.Debug("draft file changed", slog.String("path", path), slog.String("op", ev.Op.String()))
			onChange()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}

			if errors.Is(watchErr, fsnotify.ErrEventOverflow) {
				logger.Warn("file watcher overflow, rereading draft", slog.String("path", path))
				onChange()

				continue
			}

			logger.Warn("file watcher error", slog.String("error", watchErr.Error()))
		}
	}
}
