package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"chantier/internal/export"
)

var (
	redirectPort string
	tokenFile    string
)

var sheetsAuthCmd = &cobra.Command{
	Use:   "sheets-auth",
	Short: "Authorize the Google Sheets export with an OAuth user account",
	Long: `Run the OAuth consent flow and store the resulting token.

The OAuth client comes from GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE.
Add http://localhost:<port>/callback to the client's authorized redirect URIs.

Example:
  chantierctl sheets-auth --token-file token.json`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		clientJSON, err := export.OAuthClientFromEnv()
		exitOnError(err, "missing OAuth client")
		oauthCfg, err := export.OAuthConfig(clientJSON)
		exitOnError(err, "invalid OAuth client")

		oauthCfg.RedirectURL = "http://localhost:" + redirectPort + "/callback"
		tok, err := authorize(cmd, oauthCfg)
		exitOnError(err, "authorization failed")
		exitOnError(saveToken(tokenFile, tok), "failed to save token")
		fmt.Fprintf(cmd.OutOrStdout(), "Saved token to %s\n", tokenFile)
	},
}

func init() {
	defaultToken := os.Getenv("GOOGLE_OAUTH_TOKEN_FILE")
	if defaultToken == "" {
		defaultToken = "token.json"
	}
	sheetsAuthCmd.Flags().StringVar(&redirectPort, "port", "8085", "local port for the OAuth redirect")
	sheetsAuthCmd.Flags().StringVar(&tokenFile, "token-file", defaultToken, "where to write the token")
}

// authorize serves the redirect on localhost and exchanges the returned code.
func authorize(cmd *cobra.Command, oauthCfg *oauth2.Config) (*oauth2.Token, error) {
	state := uuid.NewString()
	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	mux := chi.NewRouter()
	mux.Get("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case q.Get("error") != "":
			http.Error(w, "OAuth error: "+q.Get("error"), http.StatusBadRequest)
			send(errCh, fmt.Errorf("consent refused: %s", q.Get("error")))
		case q.Get("state") != state:
			http.Error(w, "state mismatch", http.StatusBadRequest)
		default:
			fmt.Fprintln(w, "You may close this window and return to the terminal.")
			send(codeCh, q.Get("code"))
		}
	})
	srv := &http.Server{Addr: "localhost:" + redirectPort, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			send(errCh, err)
		}
	}()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()

	fmt.Fprintf(cmd.OutOrStdout(), "Open this URL to authorize:\n%s\n", oauthCfg.AuthCodeURL(state, oauth2.AccessTypeOffline))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	select {
	case code := <-codeCh:
		tok, err := oauthCfg.Exchange(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("token exchange: %w", err)
		}
		return tok, nil
	case err := <-errCh:
		return nil, err
	case <-time.After(5 * time.Minute):
		return nil, errors.New("authorization timed out")
	case <-ctx.Done():
		return nil, errors.New("interrupted")
	}
}

// send never blocks; only the first value matters.
func send[T any](ch chan<- T, v T) {
	select {
	case ch <- v:
	default:
	}
}

func saveToken(path string, tok *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open token file: %w", err)
	}
	if err := json.NewEncoder(f).Encode(tok); err != nil {
		f.Close()
		return fmt.Errorf("write token: %w", err)
	}
	return f.Close()
}
