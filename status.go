package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show backend reachability, saved token, and drafts stored on this device",
		Args:  cobra.NoArgs,
		RunE:  runStatus,
	}
}

// statusReport is everything the status command shows.
type statusReport struct {
	ConfigPath   string    `json:"config_path"`
	StorePath    string    `json:"store_path"`
	Backend      string    `json:"backend,omitempty"`
	Connectivity string    `json:"connectivity"`
	Pending      int       `json:"pending_drafts"`
	Token        tokenJSON `json:"token"`
}

// Connectivity states reported by status.
const (
	connOnline        = "online"
	connUnreachable   = "unreachable"
	connForcedOffline = "offline (forced)"
	connUnconfigured  = "not configured"
)

func runStatus(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	report := statusReport{
		ConfigPath: cc.Cfg.ConfigPath,
		StorePath:  cc.Cfg.Store.Path,
		Backend:    cc.Cfg.Remote.BaseURL,
	}

	client, err := cc.remoteClient()

	switch {
	case errors.Is(err, errNoRemote):
		report.Connectivity = connUnconfigured
	case err != nil:
		return err
	case cc.Cfg.Offline:
		report.Connectivity = connForcedOffline
	case cc.checkOnline(ctx, client):
		report.Connectivity = connOnline
	default:
		report.Connectivity = connUnreachable
	}

	store, err := cc.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.List(ctx)
	if err != nil {
		return err
	}

	report.Pending = len(entries)

	report.Token, err = loadTokenState(cc.Cfg.TokenPath)
	if err != nil {
		cc.Logger.Warn("reading saved token", slog.String("error", err.Error()))
	}

	if cc.Flags.JSON {
		return printJSON(cmd.OutOrStdout(), report)
	}

	w := cmd.OutOrStdout()
	backend := report.Backend

	if backend == "" {
		backend = "-"
	}

	printTable(w, []string{"SETTING", "VALUE"}, [][]string{
		{"config", report.ConfigPath},
		{"store", report.StorePath},
		{"backend", backend},
		{"connectivity", report.Connectivity},
		{"pending drafts", fmt.Sprint(report.Pending)},
		{"token", describeToken(report.Token, time.Now())},
	})

	return nil
}
