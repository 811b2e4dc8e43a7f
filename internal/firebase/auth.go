package firebase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	identityToolkitURL = "https://identitytoolkit.googleapis.com/v1"
	secureTokenURL     = "https://securetoken.googleapis.com/v1/token"
)

var (
	// ErrNotSignedIn is returned when no saved session exists.
	ErrNotSignedIn = errors.New("not signed in (run 'hours login')")
	// ErrInvalidCredentials is returned for a rejected email/password pair.
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// Identity is the signed-in Firebase user.
type Identity struct {
	UID         string `json:"uid"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName,omitempty"`
}

// savedSession is the layout of the token file.
type savedSession struct {
	Identity
	Token *oauth2.Token `json:"token"`
}

// Auth signs users in with Firebase Auth and keeps their ID token fresh.
type Auth struct {
	apiKey      string
	tokenPath   string
	identityURL string
	tokenURL    string
	http        *resty.Client
	logger      *zap.Logger

	mu sync.Mutex
}

// NewAuth returns an Auth for the project's web API key. The session is
// persisted at tokenPath.
func NewAuth(apiKey, tokenPath string, logger *zap.Logger) *Auth {
	return &Auth{
		apiKey:      apiKey,
		tokenPath:   tokenPath,
		identityURL: identityToolkitURL,
		tokenURL:    secureTokenURL,
		http: resty.New().
			SetTimeout(15*time.Second).
			SetRetryCount(2).
			SetRetryWaitTime(500*time.Millisecond).
			SetHeader("Accept", "application/json"),
		logger: logger,
	}
}

// DefaultTokenPath returns ~/.hours/auth/firebase_session.json.
func DefaultTokenPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".hours", "auth", "firebase_session.json"), nil
}

// oauth2Config refreshes ID tokens through the securetoken endpoint, which
// speaks the standard refresh_token grant.
func (a *Auth) oauth2Config() *oauth2.Config {
	return &oauth2.Config{
		Endpoint: oauth2.Endpoint{
			TokenURL:  a.tokenURL + "?key=" + a.apiKey,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

type signInResponse struct {
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	DisplayName  string `json:"displayName"`
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// SignIn exchanges email and password for a session and saves it.
func (a *Auth) SignIn(ctx context.Context, email, password string) (Identity, error) {
	var (
		res    signInResponse
		failed apiError
	)
	resp, err := a.http.R().
		SetContext(ctx).
		SetQueryParam("key", a.apiKey).
		SetBody(map[string]any{
			"email":             email,
			"password":          password,
			"returnSecureToken": true,
		}).
		SetResult(&res).
		SetError(&failed).
		Post(a.identityURL + "/accounts:signInWithPassword")
	if err != nil {
		return Identity{}, fmt.Errorf("sign-in request failed: %w", err)
	}
	if resp.IsError() {
		switch failed.Error.Message {
		case "EMAIL_NOT_FOUND", "INVALID_PASSWORD", "INVALID_LOGIN_CREDENTIALS", "INVALID_EMAIL":
			return Identity{}, ErrInvalidCredentials
		}
		return Identity{}, fmt.Errorf("sign-in failed (%d): %s", resp.StatusCode(), failed.Error.Message)
	}

	secs, _ := strconv.Atoi(res.ExpiresIn)
	sess := savedSession{
		Identity: Identity{UID: res.LocalID, Email: res.Email, DisplayName: res.DisplayName},
		Token: &oauth2.Token{
			AccessToken:  res.IDToken,
			TokenType:    "Bearer",
			RefreshToken: res.RefreshToken,
			Expiry:       time.Now().Add(time.Duration(secs) * time.Second),
		},
	}
	if err := a.save(sess); err != nil {
		return Identity{}, err
	}
	a.logger.Info("Signed in", zap.String("uid", sess.UID), zap.String("email", sess.Email))
	return sess.Identity, nil
}

// SignOut removes the saved session.
func (a *Auth) SignOut() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := os.Remove(a.tokenPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing session file: %w", err)
	}
	return nil
}

// Current returns the identity of the saved session.
func (a *Auth) Current() (Identity, error) {
	sess, err := a.load()
	if err != nil {
		return Identity{}, err
	}
	return sess.Identity, nil
}

// TokenSource returns a source of valid ID tokens for the saved session.
// Refreshed tokens are written back to disk.
func (a *Auth) TokenSource(ctx context.Context) (oauth2.TokenSource, Identity, error) {
	sess, err := a.load()
	if err != nil {
		return nil, Identity{}, err
	}
	ts := a.oauth2Config().TokenSource(ctx, sess.Token)
	return &savingTokenSource{ts: ts, auth: a, identity: sess.Identity}, sess.Identity, nil
}

// savingTokenSource wraps a TokenSource and persists refreshed tokens.
type savingTokenSource struct {
	ts       oauth2.TokenSource
	auth     *Auth
	identity Identity

	mu   sync.Mutex
	last string
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.ts.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	changed := tok.AccessToken != s.last
	s.last = tok.AccessToken
	s.mu.Unlock()
	if changed {
		if err := s.auth.save(savedSession{Identity: s.identity, Token: tok}); err != nil {
			s.auth.logger.Warn("Could not save refreshed token", zap.Error(err))
		}
	}
	return tok, nil
}

// load loads a previously saved session from disk.
func (a *Auth) load() (savedSession, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	data, err := os.ReadFile(a.tokenPath)
	if os.IsNotExist(err) {
		return savedSession{}, ErrNotSignedIn
	}
	if err != nil {
		return savedSession{}, fmt.Errorf("reading session file: %w", err)
	}
	var sess savedSession
	if err := json.Unmarshal(data, &sess); err != nil {
		return savedSession{}, fmt.Errorf("corrupt session file (delete %s to sign in again): %w", a.tokenPath, err)
	}
	if sess.Token == nil || sess.UID == "" {
		return savedSession{}, ErrNotSignedIn
	}
	return sess, nil
}

// save persists a session to disk.
func (a *Auth) save(sess savedSession) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(a.tokenPath), 0o700); err != nil {
		return fmt.Errorf("creating auth directory: %w", err)
	}
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling session: %w", err)
	}
	tmpPath := a.tokenPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("writing session file: %w", err)
	}
	if err := os.Rename(tmpPath, a.tokenPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("saving session file: %w", err)
	}
	return nil
}
