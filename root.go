package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/DbyProsper/Fort-Hare-Tutors-Hub-sub000/internal/config"
	"github.com/DbyProsper/Fort-Hare-Tutors-Hub-sub000/internal/localstore"
	"github.com/DbyProsper/Fort-Hare-Tutors-Hub-sub000/internal/remote"
	"github.com/DbyProsper/Fort-Hare-Tutors-Hub-sub000/internal/tokenfile"
)

// version is set at build time via ldflags.
var version = "dev"

// dialKeepAlive is the TCP keep-alive period for backend connections.
const dialKeepAlive = 30 * time.Second

// errNoRemote is returned by commands that need the backend when no base
// URL is configured.
var errNoRemote = errors.New("no backend configured: set remote.base_url or " + config.EnvBaseURL)

// errNoOwner is returned when no owner ID can be determined for a draft.
var errNoOwner = errors.New("no owner: pass --owner, set " + config.EnvOwner + ", or run 'tutorhub token save'")

// CLIFlags holds the persistent flag values.
type CLIFlags struct {
	ConfigPath string
	StorePath  string
	OwnerID    string
	Offline    bool
	JSON       bool
	Verbose    bool
	Quiet      bool
}

// CLIContext is built once per invocation by the root pre-run and carried in
// the command context.
type CLIContext struct {
	Flags  CLIFlags
	Logger *slog.Logger
	Cfg    *config.Resolved
}

type cliContextKey struct{}

// mustCLIContext returns the CLIContext stored by the root pre-run. A missing
// context is a programming error.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok || cc == nil {
		panic("tutorhub: command ran without CLIContext")
	}

	return cc
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	var flags CLIFlags

	cmd := &cobra.Command{
		Use:     "tutorhub",
		Short:   "Tutor application drafts with offline-safe autosave",
		Long:    "Edit tutor applications as local draft files. Changes are autosaved to the backend and kept on this device while offline.",
		Version: version,
		// Silence Cobra's default error/usage printing; main handles it.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cc := &CLIContext{Flags: flags}

			if err := config.LoadDotEnv(""); err != nil {
				return err
			}

			resolved, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}

			cc.Cfg = resolved
			cc.Logger = buildLogger(resolved, flags, cmd.ErrOrStderr())
			cmd.SetContext(context.WithValue(cmd.Context(), cliContextKey{}, cc))

			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.ConfigPath, "config", "", "config file path")
	pf.StringVar(&flags.StorePath, "store", "", "local fallback database path")
	pf.StringVar(&flags.OwnerID, "owner", "", "owner (student) ID for drafts")
	pf.BoolVar(&flags.Offline, "offline", false, "treat the backend as unreachable")
	pf.BoolVar(&flags.JSON, "json", false, "output in JSON format")
	pf.BoolVarP(&flags.Verbose, "verbose", "v", false, "enable debug logging")
	pf.BoolVarP(&flags.Quiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newDraftCmd())
	cmd.AddCommand(newTokenCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// loadConfig resolves the effective configuration from the four-layer
// override chain. Only flags the user actually set are passed on.
func loadConfig(cmd *cobra.Command, flags CLIFlags) (*config.Resolved, error) {
	cli := config.CLIOverrides{ConfigPath: flags.ConfigPath}

	if cmd.Flags().Changed("store") {
		cli.StorePath = &flags.StorePath
	}

	if cmd.Flags().Changed("owner") {
		cli.OwnerID = &flags.OwnerID
	}

	if cmd.Flags().Changed("offline") {
		cli.Offline = &flags.Offline
	}

	resolved, err := config.Resolve(config.ReadEnvOverrides(), cli)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	return resolved, nil
}

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. Config-file log level provides the baseline; --verbose and
// --quiet override it. Format "auto" picks text on a terminal and JSON
// otherwise.
func buildLogger(cfg *config.Resolved, flags CLIFlags, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	format := "auto"

	if cfg != nil {
		switch cfg.Logging.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}

		format = cfg.Logging.LogFormat
	}

	if flags.Verbose {
		level = slog.LevelDebug
	}

	if flags.Quiet {
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if format == "json" || (format == "auto" && !isTerminal(w)) {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// httpClient returns an HTTP client bounded by the configured timeouts.
func (cc *CLIContext) httpClient() *http.Client {
	dialer := &net.Dialer{Timeout: cc.Cfg.ConnectTimeout, KeepAlive: dialKeepAlive}

	return &http.Client{
		Timeout: cc.Cfg.DataTimeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         dialer.DialContext,
			TLSHandshakeTimeout: cc.Cfg.ConnectTimeout,
		},
	}
}

// remoteClient builds the backend client. A configured access token wins
// over a saved one; with neither, requests carry only the project API key.
func (cc *CLIContext) remoteClient() (*remote.Client, error) {
	r := cc.Cfg.Remote
	if r.BaseURL == "" {
		return nil, errNoRemote
	}

	client := remote.NewClient(r.BaseURL, r.APIKey, cc.httpClient(), nil, cc.Logger)
	client.SetUserAgent(userAgent(r.UserAgent))

	if r.AccessToken != "" {
		client.SetTokenSource(remote.StaticTokenSource(r.AccessToken))
		return client, nil
	}

	tokens, _, err := remote.SavedTokenSource(cc.Cfg.TokenPath, cc.Logger)

	switch {
	case err == nil:
		client.SetTokenSource(tokens)
	case errors.Is(err, remote.ErrNotLoggedIn):
		cc.Logger.Debug("no saved token, using anonymous access")
	default:
		return nil, err
	}

	return client, nil
}

func userAgent(configured string) string {
	if configured != "" {
		return configured
	}

	return "tutorhub/" + version
}

// ownerID resolves the owner for new drafts: --owner or TUTORHUB_OWNER,
// then the user of the saved token.
func (cc *CLIContext) ownerID() (string, error) {
	if cc.Cfg.OwnerID != "" {
		return cc.Cfg.OwnerID, nil
	}

	saved, err := tokenfile.Load(cc.Cfg.TokenPath)
	if err != nil {
		return "", err
	}

	if saved == nil {
		return "", errNoOwner
	}

	return saved.UserID, nil
}

// openStore opens the local fallback database.
func (cc *CLIContext) openStore(ctx context.Context) (*localstore.Store, error) {
	return localstore.Open(ctx, cc.Cfg.Store.Path, cc.Logger)
}

// checkOnline reports whether the backend answers its health endpoint.
// --offline short-circuits to false.
func (cc *CLIContext) checkOnline(ctx context.Context, client *remote.Client) bool {
	if cc.Cfg.Offline {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, cc.Cfg.ConnectTimeout)
	defer cancel()

	if err := client.Health(ctx, cc.Cfg.Remote.HealthPath); err != nil {
		cc.Logger.Debug("backend unreachable", slog.String("error", err.Error()))
		return false
	}

	return true
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
