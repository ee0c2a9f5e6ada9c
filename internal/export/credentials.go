package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

var ErrNoCredentials = errors.New("missing Google credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, GOOGLE_APPLICATION_CREDENTIALS, or GOOGLE_OAUTH_CLIENT_JSON with GOOGLE_OAUTH_TOKEN_FILE)")

// Credentials holds the raw credential material for the Sheets API. A
// service account wins over an OAuth client and token.
type Credentials struct {
	ServiceAccountJSON []byte
	OAuthClientJSON    []byte
	OAuthTokenJSON     []byte
}

// CredentialsFromEnv reads credentials from the environment.
// Service account: GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or
// GOOGLE_APPLICATION_CREDENTIALS.
// OAuth user: GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE, plus
// GOOGLE_OAUTH_TOKEN_JSON or GOOGLE_OAUTH_TOKEN_FILE.
func CredentialsFromEnv() (Credentials, error) {
	var c Credentials
	var err error

	if c.ServiceAccountJSON, err = envOrFile("GOOGLE_SERVICE_ACCOUNT_JSON", "GOOGLE_SERVICE_ACCOUNT_FILE"); err != nil {
		return Credentials{}, err
	}
	if len(c.ServiceAccountJSON) == 0 {
		if path := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")); path != "" {
			if c.ServiceAccountJSON, err = os.ReadFile(path); err != nil {
				return Credentials{}, fmt.Errorf("read service account file: %w", err)
			}
		}
	}
	if len(c.ServiceAccountJSON) > 0 {
		return c, nil
	}

	if c.OAuthClientJSON, err = envOrFile("GOOGLE_OAUTH_CLIENT_JSON", "GOOGLE_OAUTH_CLIENT_FILE"); err != nil {
		return Credentials{}, err
	}
	if c.OAuthTokenJSON, err = envOrFile("GOOGLE_OAUTH_TOKEN_JSON", "GOOGLE_OAUTH_TOKEN_FILE"); err != nil {
		return Credentials{}, err
	}
	if len(c.OAuthClientJSON) > 0 && len(c.OAuthTokenJSON) > 0 {
		return c, nil
	}
	return Credentials{}, ErrNoCredentials
}

func envOrFile(jsonKey, fileKey string) ([]byte, error) {
	if v := strings.TrimSpace(os.Getenv(jsonKey)); v != "" {
		return []byte(v), nil
	}
	path := strings.TrimSpace(os.Getenv(fileKey))
	if path == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", fileKey, err)
	}
	return b, nil
}

// OAuthClientFromEnv reads the OAuth client JSON from GOOGLE_OAUTH_CLIENT_JSON
// or GOOGLE_OAUTH_CLIENT_FILE.
func OAuthClientFromEnv() ([]byte, error) {
	b, err := envOrFile("GOOGLE_OAUTH_CLIENT_JSON", "GOOGLE_OAUTH_CLIENT_FILE")
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return nil, errors.New("set GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE")
	}
	return b, nil
}

// OAuthConfig parses an OAuth client JSON for the spreadsheets scope.
func OAuthConfig(clientJSON []byte) (*oauth2.Config, error) {
	cfg, err := google.ConfigFromJSON(clientJSON, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}
	return cfg, nil
}

// newSheetsService builds a Sheets client from c over a pooled HTTP client.
func newSheetsService(ctx context.Context, c Credentials) (*gsheet.Service, error) {
	base := newHTTPClientWithPooling()

	switch {
	case len(c.ServiceAccountJSON) > 0:
		slog.InfoContext(ctx, "Creating Google Sheets service with Service Account",
			"credentials_size", len(c.ServiceAccountJSON))
		svc, err := gsheet.NewService(ctx,
			goption.WithCredentialsJSON(c.ServiceAccountJSON),
			goption.WithScopes(gsheet.SpreadsheetsScope))
		if err != nil {
			return nil, fmt.Errorf("create sheets service: %w", err)
		}
		return svc, nil

	case len(c.OAuthClientJSON) > 0 && len(c.OAuthTokenJSON) > 0:
		cfg, err := OAuthConfig(c.OAuthClientJSON)
		if err != nil {
			return nil, err
		}
		var tok oauth2.Token
		if err := json.Unmarshal(c.OAuthTokenJSON, &tok); err != nil {
			return nil, fmt.Errorf("parse oauth token: %w", err)
		}
		slog.InfoContext(ctx, "Creating Google Sheets service with OAuth token",
			"has_refresh_token", tok.RefreshToken != "")
		ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
		svc, err := gsheet.NewService(ctx, goption.WithHTTPClient(cfg.Client(ctx, &tok)))
		if err != nil {
			return nil, fmt.Errorf("create sheets service: %w", err)
		}
		return svc, nil
	}
	return nil, ErrNoCredentials
}

// newHTTPClientWithPooling returns an HTTP client tuned for the Sheets API.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   5,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   60 * time.Second,
	}
}
