package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/DbyProsper/Fort-Hare-Tutors-Hub-sub000/internal/remote"
	"github.com/DbyProsper/Fort-Hare-Tutors-Hub-sub000/internal/tokenfile"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the saved access token",
		Long: `Manage the access token used for backend requests. The token is
obtained by signing in on the web app; it is never refreshed here.`,
	}

	cmd.AddCommand(newTokenSaveCmd())
	cmd.AddCommand(newTokenShowCmd())
	cmd.AddCommand(newTokenClearCmd())

	return cmd
}

func newTokenSaveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "save",
		Short: "Save an access token read from stdin",
		Args:  cobra.NoArgs,
		RunE:  runTokenSave,
	}

	cmd.Flags().Duration("expires-in", time.Hour, "token lifetime from now (0 = no expiry)")
	cmd.Flags().String("email", "", "account email, for display only")

	return cmd
}

func runTokenSave(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	if cc.Cfg.OwnerID == "" {
		return errors.New("token save needs the signed-in user's ID: pass --owner")
	}

	access, err := readToken(cmd.InOrStdin())
	if err != nil {
		return err
	}

	tok := &oauth2.Token{AccessToken: access, TokenType: "Bearer"}

	if expiresIn, _ := cmd.Flags().GetDuration("expires-in"); expiresIn > 0 {
		tok.Expiry = time.Now().Add(expiresIn)
	}

	email, _ := cmd.Flags().GetString("email")

	if err := tokenfile.Save(cc.Cfg.TokenPath, &tokenfile.File{Token: tok, UserID: cc.Cfg.OwnerID, Email: email}); err != nil {
		return err
	}

	cc.Statusf("Saved token for %s to %s\n", cc.Cfg.OwnerID, cc.Cfg.TokenPath)

	return nil
}

// readToken returns the first non-empty line of r.
func readToken(r io.Reader) (string, error) {
	sc := bufio.NewScanner(r)

	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			return line, nil
		}
	}

	if err := sc.Err(); err != nil {
		return "", fmt.Errorf("reading token: %w", err)
	}

	return "", errors.New("no token on stdin")
}

func newTokenShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show who the saved token belongs to and when it expires",
		Args:  cobra.NoArgs,
		RunE:  runTokenShow,
	}
}

// tokenJSON is the --json form of the saved token state. The token itself
// is never printed.
type tokenJSON struct {
	Path   string    `json:"path"`
	Saved  bool      `json:"saved"`
	UserID string    `json:"user_id,omitempty"`
	Email  string    `json:"email,omitempty"`
	Expiry time.Time `json:"expiry,omitzero"`
	Valid  bool      `json:"valid"`
}

func loadTokenState(path string) (tokenJSON, error) {
	state := tokenJSON{Path: path}

	saved, err := tokenfile.Load(path)
	if err != nil {
		return state, err
	}

	if saved == nil {
		return state, nil
	}

	state.Saved = true
	state.UserID = saved.UserID
	state.Email = saved.Email
	state.Expiry = saved.Token.Expiry
	state.Valid = saved.Token.Valid()

	return state, nil
}

func runTokenShow(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	state, err := loadTokenState(cc.Cfg.TokenPath)
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		return printJSON(cmd.OutOrStdout(), state)
	}

	fmt.Fprintln(cmd.OutOrStdout(), describeToken(state, time.Now()))

	return nil
}

func describeToken(state tokenJSON, now time.Time) string {
	switch {
	case !state.Saved:
		return "No saved token."
	case !state.Valid:
		return fmt.Sprintf("Token for %s expired %s.", state.UserID, formatTime(state.Expiry, now))
	case state.Expiry.IsZero():
		return fmt.Sprintf("Token for %s, no expiry.", state.UserID)
	default:
		return fmt.Sprintf("Token for %s, expires %s.", state.UserID, formatTime(state.Expiry, now))
	}
}

func newTokenClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete the saved token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())
			return remote.ForgetToken(cc.Cfg.TokenPath, cc.Logger)
		},
	}
}
