package remote

import (
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/oauth2"

	"github.com/DbyProsper/Fort-Hare-Tutors-Hub-sub000/internal/tokenfile"
)

// SavedTokenSource loads the token saved at path and returns a token source
// serving it until it expires. Returns ErrNotLoggedIn if nothing is saved.
func SavedTokenSource(path string, logger *slog.Logger) (oauth2.TokenSource, *tokenfile.File, error) {
	saved, err := tokenfile.Load(path)
	if err != nil {
		return nil, nil, err
	}

	if saved == nil {
		return nil, nil, ErrNotLoggedIn
	}

	logger.Debug("loaded saved token",
		slog.String("path", path),
		slog.Time("expiry", saved.Token.Expiry),
		slog.Bool("expired", !saved.Token.Valid()),
	)

	return &expiringSource{tok: saved.Token, path: path, logger: logger}, saved, nil
}

// StaticTokenSource wraps a token supplied through config or env. It never
// expires.
func StaticTokenSource(accessToken string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
}

// expiringSource serves a saved token and fails once it has expired. There
// is no refresh: a new token must be saved.
type expiringSource struct {
	tok    *oauth2.Token
	path   string
	logger *slog.Logger
	warned sync.Once
}

func (s *expiringSource) Token() (*oauth2.Token, error) {
	if s.tok.Valid() {
		return s.tok, nil
	}

	s.warned.Do(func() {
		s.logger.Warn("saved token expired", slog.String("path", s.path), slog.Time("expiry", s.tok.Expiry))
	})

	return nil, fmt.Errorf("remote: saved token at %s expired at %s: %w",
		s.path, s.tok.Expiry.Format("2006-01-02 15:04:05"), ErrNotLoggedIn)
}

// ForgetToken removes the saved token. Nothing saved is not an error.
func ForgetToken(path string, logger *slog.Logger) error {
	removed, err := tokenfile.Remove(path)
	if err != nil {
		return err
	}

	if !removed {
		logger.Info("no saved token to remove", slog.String("path", path))
		return nil
	}

	logger.Info("removed saved token", slog.String("path", path))

	return nil
}
