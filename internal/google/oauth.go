package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// ErrNoToken is returned when the token file does not exist.
var ErrNoToken = errors.New("no Google OAuth token found; run `inboxreply auth`")

// LoadConfig reads an OAuth client credentials file.
func LoadConfig(credentialsFile string) (*oauth2.Config, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}
	conf, err := google.ConfigFromJSON(data, MailboxScopes...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse credentials file: %w", err)
	}
	return conf, nil
}

// AuthURL returns the consent URL. Offline access with forced approval
// makes Google issue a refresh token every time.
func AuthURL(conf *oauth2.Config, state string) string {
	return conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for a token and stores it.
func Exchange(ctx context.Context, conf *oauth2.Config, code, tokenFile string) (*oauth2.Token, error) {
	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange auth code: %w", err)
	}
	if err := SaveToken(tokenFile, tok); err != nil {
		return nil, err
	}
	return tok, nil
}

// ReadToken loads a token file.
func ReadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("invalid token file %s: %w", path, err)
	}
	if tok.RefreshToken == "" && tok.AccessToken == "" {
		return nil, fmt.Errorf("invalid token file %s: no token", path)
	}
	return &tok, nil
}

// SaveToken writes tok to path with owner-only permissions.
func SaveToken(path string, tok *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace token file: %w", err)
	}
	return nil
}

// HasToken reports whether a readable token exists at path.
func HasToken(path string) bool {
	_, err := ReadToken(path)
	return err == nil
}

// persistingTokenSource writes every newly minted token back to disk.
type persistingTokenSource struct {
	src  oauth2.TokenSource
	path string

	mu   sync.Mutex
	last string
}

func (p *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := p.src.Token()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if tok.AccessToken != p.last {
		p.last = tok.AccessToken
		if err := SaveToken(p.path, tok); err != nil {
			return nil, err
		}
	}
	return tok, nil
}

// TokenSource returns a refreshing token source backed by tokenFile.
func TokenSource(ctx context.Context, conf *oauth2.Config, tokenFile string) (oauth2.TokenSource, error) {
	tok, err := ReadToken(tokenFile)
	if err != nil {
		return nil, err
	}
	return oauth2.ReuseTokenSource(tok, &persistingTokenSource{
		src:  conf.TokenSource(ctx, tok),
		path: tokenFile,
		last: tok.AccessToken,
	}), nil
}

// HTTPClient returns an authenticated HTTP/1.1 client for the mailbox.
func HTTPClient(ctx context.Context, credentialsFile, tokenFile string) (*http.Client, error) {
	conf, err := LoadConfig(credentialsFile)
	if err != nil {
		return nil, err
	}
	ts, err := TokenSource(ctx, conf, tokenFile)
	if err != nil {
		return nil, err
	}

	base := &http.Transport{
		Proxy:             http.ProxyFromEnvironment,
		ForceAttemptHTTP2: false,
	}
	return &http.Client{
		Transport: &oauth2.Transport{Source: ts, Base: base},
	}, nil
}
