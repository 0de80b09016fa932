package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/DbyProsper/Fort-Hare-Tutors-Hub-sub000/internal/application"
	"github.com/DbyProsper/Fort-Hare-Tutors-Hub-sub000/internal/autosave"
	"github.com/DbyProsper/Fort-Hare-Tutors-Hub-sub000/internal/config"
	"github.com/DbyProsper/Fort-Hare-Tutors-Hub-sub000/internal/localstore"
)

const defaultDraftFile = "application.toml"

func newDraftCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "draft",
		Short: "Create, autosave, and submit application drafts",
	}

	cmd.AddCommand(newDraftNewCmd())
	cmd.AddCommand(newDraftWatchCmd())
	cmd.AddCommand(newDraftSaveCmd())
	cmd.AddCommand(newDraftPullCmd())
	cmd.AddCommand(newDraftListCmd())
	cmd.AddCommand(newDraftReplayCmd())
	cmd.AddCommand(newDraftSubmitCmd())

	return cmd
}

func newDraftNewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "new [file]",
		Short: "Write an empty draft with a fresh record ID",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runDraftNew,
	}

	cmd.Flags().String("record", "", "record ID (default: a new UUID)")
	cmd.Flags().Bool("force", false, "overwrite an existing file")

	return cmd
}

func runDraftNew(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())

	path := defaultDraftFile
	if len(args) > 0 {
		path = args[0]
	}

	force, _ := cmd.Flags().GetBool("force")
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}

	owner, err := cc.ownerID()
	if err != nil {
		return err
	}

	recordID, _ := cmd.Flags().GetString("record")
	if recordID == "" {
		recordID = uuid.NewString()
	}

	d := &application.Draft{
		OwnerID:  owner,
		RecordID: recordID,
		Status:   application.StatusDraft,
		Form:     application.EmptyForm(),
	}

	if err := application.WriteDraft(path, d); err != nil {
		return err
	}

	cc.Logger.Debug("draft created", slog.String("path", path), slog.String("key", d.Key().String()))

	if cc.Flags.JSON {
		return printJSON(cmd.OutOrStdout(), map[string]string{
			"path": path, "owner_id": owner, "record_id": recordID,
		})
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created %s (record %s)\n", path, recordID)

	return nil
}

// loadDraft reads a draft file. A missing owner_id falls back to the
// resolved owner; a missing record_id is an error.
func (cc *CLIContext) loadDraft(path string) (*application.Draft, error) {
	d, err := application.LoadDraft(path)
	if err != nil {
		return nil, err
	}

	if d.RecordID == "" {
		return nil, fmt.Errorf("%s has no record_id", path)
	}

	if d.OwnerID == "" {
		owner, ownerErr := cc.ownerID()
		if ownerErr != nil {
			return nil, fmt.Errorf("%s has no owner_id: %w", path, ownerErr)
		}

		d.OwnerID = owner
	}

	return d, nil
}

// draftOptions maps a draft and the configured timings to synchronizer
// options.
func draftOptions(cfg *config.Resolved, d *application.Draft) autosave.Options {
	return autosave.Options{
		OwnerID:  d.OwnerID,
		RecordID: d.RecordID,
		Snapshot: d.Form,
		Debounce: cfg.DebounceDelay,
		Throttle: cfg.ThrottleDelay,
		Disabled: d.Status == application.StatusSubmitted,
	}
}

func newDraftSaveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "save <file>",
		Short: "Save a draft now",
		Long: `Save a draft immediately. If a watcher is running for the draft it is
asked to save (SIGHUP); otherwise the draft is saved directly, or stored on
this device when the backend is unreachable.`,
		Args: cobra.ExactArgs(1),
		RunE: runDraftSave,
	}
}

func runDraftSave(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	d, err := cc.loadDraft(args[0])
	if err != nil {
		return err
	}

	if d.Status == application.StatusSubmitted {
		return fmt.Errorf("record %s is already submitted", d.RecordID)
	}

	err = sendSIGHUP(watchPIDPath(cc.Cfg.Store.Path, d.RecordID))
	if err == nil {
		cc.Statusf("Asked the running watcher to save %s\n", d.RecordID)
		return nil
	}

	if !errors.Is(err, errNoWatcher) {
		return err
	}

	cc.Logger.Debug("no watcher, saving directly", slog.String("reason", err.Error()))

	client, err := cc.remoteClient()
	if err != nil {
		return err
	}

	store, err := cc.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	conn := autosave.NewConnectivity(cc.checkOnline(ctx, client), cc.Logger)

	s := autosave.New(autosave.Deps{
		Persister:     application.NewDraftPersister(client, cc.Cfg.Remote.Table),
		Fallback:      store,
		Connectivity:  conn,
		Detector:      application.NewDetector(),
		StatusDisplay: cc.Cfg.StatusDisplay,
	}, cc.Logger)

	s.Configure(draftOptions(cc.Cfg, d))
	s.SaveNow()
	s.Wait()

	rm := s.Status()
	s.Close()

	return reportSave(cmd, cc, d, rm.Status)
}

// reportSave prints the outcome of a one-shot save. Only an error status
// fails the command; offline means the draft is safe on this device.
func reportSave(cmd *cobra.Command, cc *CLIContext, d *application.Draft, st autosave.SaveStatus) error {
	if cc.Flags.JSON {
		if err := printJSON(cmd.OutOrStdout(), toStatusJSON(st)); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", d.RecordID, st.Message)
	}

	if st.Kind == autosave.StatusError {
		return fmt.Errorf("saving %s: %s", d.RecordID, st.Message)
	}

	return nil
}

func newDraftPullCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pull <record-id> [file]",
		Short: "Download a saved application into a draft file",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runDraftPull,
	}

	cmd.Flags().Bool("force", false, "overwrite an existing file")

	return cmd
}

func runDraftPull(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())

	path := defaultDraftFile
	if len(args) > 1 {
		path = args[1]
	}

	force, _ := cmd.Flags().GetBool("force")
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}

	client, err := cc.remoteClient()
	if err != nil {
		return err
	}

	row, err := client.Fetch(cmd.Context(), cc.Cfg.Remote.Table, args[0])
	if err != nil {
		return fmt.Errorf("fetching %s: %w", args[0], err)
	}

	d, err := application.FromRecord(row)
	if err != nil {
		return err
	}

	if err := application.WriteDraft(path, d); err != nil {
		return err
	}

	cc.Statusf("Wrote %s (record %s, %s, %d fields)\n", path, d.RecordID, d.Status, filledFields(d.Form))

	return nil
}

func filledFields(snap autosave.FormSnapshot) int {
	n := 0

	for _, f := range snap.Fields() {
		if !f.Value.IsEmpty() {
			n++
		}
	}

	return n
}

func newDraftListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List drafts stored on this device awaiting upload",
		Args:  cobra.NoArgs,
		RunE:  runDraftList,
	}
}

// pendingJSON is the --json form of a stored fallback record.
type pendingJSON struct {
	OwnerID  string                `json:"owner_id"`
	RecordID string                `json:"record_id"`
	SavedAt  time.Time             `json:"saved_at"`
	Form     autosave.FormSnapshot `json:"form"`
}

func runDraftList(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	store, err := cc.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.List(ctx)
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		out := make([]pendingJSON, 0, len(entries))
		for _, e := range entries {
			out = append(out, pendingJSON{
				OwnerID:  e.Key.OwnerID,
				RecordID: e.Key.RecordID,
				SavedAt:  time.UnixMilli(e.Record.Timestamp).UTC(),
				Form:     e.Record.Snapshot,
			})
		}

		return printJSON(cmd.OutOrStdout(), out)
	}

	if len(entries) == 0 {
		cc.Statusf("No drafts waiting for upload.\n")
		return nil
	}

	now := time.Now()
	rows := make([][]string, 0, len(entries))

	for _, e := range entries {
		rows = append(rows, []string{
			e.Key.OwnerID,
			e.Key.RecordID,
			formatTime(time.UnixMilli(e.Record.Timestamp), now),
			strconv.Itoa(filledFields(e.Record.Snapshot)),
		})
	}

	printTable(cmd.OutOrStdout(), []string{"OWNER", "RECORD", "STORED", "FIELDS"}, rows)

	return nil
}

func newDraftReplayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replay",
		Short: "Upload every draft stored on this device",
		Args:  cobra.NoArgs,
		RunE:  runDraftReplay,
	}
}

func runDraftReplay(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	if cc.Cfg.Offline {
		return errors.New("cannot replay while --offline is set")
	}

	client, err := cc.remoteClient()
	if err != nil {
		return err
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

	return replayEntries(ctx, cc, application.NewDraftPersister(client, cc.Cfg.Remote.Table), store, entries)
}

// fallbackDeleter is the part of the local store replay needs besides the
// entries themselves.
type fallbackDeleter interface {
	Delete(ctx context.Context, key string) error
}

// replayEntries uploads each entry and deletes it once stored remotely.
// Every entry is tried; failures are joined into the returned error.
func replayEntries(ctx context.Context, cc *CLIContext, p autosave.Persister, store fallbackDeleter, entries []localstore.Entry) error {
	var errs []error

	uploaded := 0

	for _, e := range entries {
		if err := p.Upsert(ctx, e.Key, e.Record.Snapshot); err != nil {
			cc.Logger.Warn("replay failed", slog.String("key", e.Key.String()), slog.String("error", err.Error()))
			errs = append(errs, fmt.Errorf("%s: %w", e.Key, err))

			continue
		}

		if err := store.Delete(ctx, e.Key.FallbackKey()); err != nil {
			errs = append(errs, fmt.Errorf("%s: uploaded but not cleared locally: %w", e.Key, err))
			continue
		}

		uploaded++
	}

	cc.Statusf("Uploaded %d of %d stored drafts.\n", uploaded, len(entries))

	if len(errs) > 0 {
		return fmt.Errorf("replay incomplete: %w", errors.Join(errs...))
	}

	return nil
}

func newDraftSubmitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "submit <file>",
		Short: "Validate a draft and submit the application",
		Args:  cobra.ExactArgs(1),
		RunE:  runDraftSubmit,
	}
}

func runDraftSubmit(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()
	path := args[0]

	d, err := cc.loadDraft(path)
	if err != nil {
		return err
	}

	if d.Status == application.StatusSubmitted {
		return fmt.Errorf("record %s is already submitted", d.RecordID)
	}

	if cc.Cfg.Offline {
		return errors.New("cannot submit while --offline is set")
	}

	client, err := cc.remoteClient()
	if err != nil {
		return err
	}

	if err := application.Submit(ctx, client, cc.Cfg.Remote.Table, application.NewValidator(), d, time.Now()); err != nil {
		return err
	}

	// A stored draft replayed later would revert the submission.
	store, err := cc.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Delete(ctx, d.Key().FallbackKey()); err != nil {
		cc.Logger.Warn("clearing stored draft after submit failed", slog.String("error", err.Error()))
	}

	d.Status = application.StatusSubmitted
	if err := application.WriteDraft(path, d); err != nil {
		return fmt.Errorf("submitted, but updating %s failed: %w", path, err)
	}

	cc.Statusf("Submitted application %s\n", d.RecordID)

	return nil
}
