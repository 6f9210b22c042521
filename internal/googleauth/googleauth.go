// Package googleauth builds OAuth2 clients for the Gmail and Calendar APIs
// from a client secret and a token file on disk.
package googleauth

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/gmail/v1"
)

const (
	ScopeGmailReadonly = gmail.GmailReadonlyScope
	ScopeCalendar      = calendar.CalendarEventsScope
)

var Endpoint = oauth2.Endpoint{
	AuthURL:  "https://accounts.google.com/o/oauth2/auth",
	TokenURL: "https://oauth2.googleapis.com/token",
}

// ErrNoToken means the token file does not exist yet; run the authorize flow.
var ErrNoToken = errors.New("no oauth token; run with -authorize")

type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	TokenFile    string
	Scopes       []string
}

func (c Config) oauth2Config() *oauth2.Config {
	redirect := c.RedirectURL
	if redirect == "" {
		redirect = "http://localhost"
	}
	scopes := c.Scopes
	if len(scopes) == 0 {
		scopes = []string{ScopeGmailReadonly, ScopeCalendar}
	}
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  redirect,
		Scopes:       scopes,
		Endpoint:     Endpoint,
	}
}

// HTTPClient returns a client that refreshes the saved token as needed.
func HTTPClient(ctx context.Context, cfg Config) (*http.Client, error) {
	tok, err := LoadToken(cfg.TokenFile)
	if err != nil {
		return nil, err
	}
	return cfg.oauth2Config().Client(ctx, tok), nil
}

func LoadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoToken
	}
	if err != nil {
		return nil, fmt.Errorf("read token: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	return &tok, nil
}

// SaveToken writes tok to path with owner-only permissions.
func SaveToken(path string, tok *oauth2.Token) error {
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal token: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create token dir: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	return os.Rename(tmp, path)
}

// Authorize runs the interactive consent flow: it prints the consent URL to
// out, reads the authorization code (or the full redirect URL) from in and
// saves the resulting token.
func Authorize(ctx context.Context, cfg Config, in io.Reader, out io.Writer) error {
	oc := cfg.oauth2Config()
	authURL := oc.AuthCodeURL("cinesync", oauth2.AccessTypeOffline, oauth2.ApprovalForce)

	fmt.Fprintf(out, "Open this URL in a browser and grant access:\n\n%s\n\nPaste the code or the URL you were redirected to: ", authURL)

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read code: %w", err)
	}
	code := extractCode(line)
	if code == "" {
		return errors.New("no authorization code entered")
	}

	tok, err := oc.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("exchange code: %w", err)
	}
	if err := SaveToken(cfg.TokenFile, tok); err != nil {
		return err
	}
	fmt.Fprintf(out, "Token saved to %s\n", cfg.TokenFile)
	return nil
}

func extractCode(input string) string {
	input = strings.TrimSpace(input)
	if strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://") {
		if u, err := url.Parse(input); err == nil {
			return u.Query().Get("code")
		}
	}
	return input
}
