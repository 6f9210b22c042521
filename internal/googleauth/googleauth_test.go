package googleauth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

func TestTokenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token.json")

	if _, err := LoadToken(path); !errors.Is(err, ErrNoToken) {
		t.Fatalf("LoadToken missing: err = %v, want ErrNoToken", err)
	}

	want := &oauth2.Token{
		AccessToken:  "access",
		RefreshToken: "refresh",
		Expiry:       time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := SaveToken(path, want); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}
	got, err := LoadToken(path)
	if err != nil {
		t.Fatalf("LoadToken: %v", err)
	}
	if got.RefreshToken != "refresh" || !got.Expiry.Equal(want.Expiry) {
		t.Errorf("token = %+v", got)
	}
}

func TestExtractCode(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"4/abc\n", "4/abc"},
		{"http://localhost/?state=cinesync&code=4%2Fxyz&scope=a", "4/xyz"},
		{"   ", ""},
	}
	for _, tt := range tests {
		if got := extractCode(tt.in); got != tt.want {
			t.Errorf("extractCode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAuthorize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if got := r.Form.Get("code"); got != "the-code" {
			t.Errorf("code = %q, want the-code", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"a","refresh_token":"r","token_type":"Bearer","expires_in":3600}`)
	}))
	defer server.Close()

	orig := Endpoint
	Endpoint = oauth2.Endpoint{AuthURL: server.URL + "/auth", TokenURL: server.URL + "/token"}
	defer func() { Endpoint = orig }()

	path := filepath.Join(t.TempDir(), "token.json")
	var out bytes.Buffer
	cfg := Config{ClientID: "id", ClientSecret: "secret", TokenFile: path}

	if err := Authorize(context.Background(), cfg, strings.NewReader("the-code\n"), &out); err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if !strings.Contains(out.String(), server.URL+"/auth?") {
		t.Errorf("consent URL not printed: %q", out.String())
	}

	tok, err := LoadToken(path)
	if err != nil {
		t.Fatalf("LoadToken: %v", err)
	}
	if tok.RefreshToken != "r" {
		t.Errorf("RefreshToken = %q, want r", tok.RefreshToken)
	}
}
