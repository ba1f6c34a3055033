// Command google-token walks through the one-time Google OAuth consent flow
// and prints the refresh token to put in GOOGLE_REFRESH_TOKEN. Run it
// locally, open the printed URL, and approve calendar access.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"

	appconfig "github.com/harmonyclinic/intake-line/internal/config"
	"github.com/harmonyclinic/intake-line/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.NewText("info")

	if cfg.GoogleClientID == "" || cfg.GoogleClientSecret == "" {
		logger.Error("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET must be set")
		os.Exit(1)
	}

	redirectURI := cfg.GoogleRedirectURI
	callback, err := url.Parse(redirectURI)
	if err != nil {
		logger.Error("invalid GOOGLE_REDIRECT_URI", "uri", redirectURI, "error", err)
		os.Exit(1)
	}

	oc := &oauth2.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  redirectURI,
		Endpoint:     google.Endpoint,
		Scopes:       []string{gcal.CalendarEventsScope},
	}

	authURL := oc.AuthCodeURL("state-token",
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)

	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc(callback.Path, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if oauthErr := q.Get("error"); oauthErr != "" {
			http.Error(w, "OAuth error. Check terminal.", http.StatusBadRequest)
			errCh <- fmt.Errorf("oauth consent denied: %s", oauthErr)
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(w, "Missing code.", http.StatusBadRequest)
			return
		}
		fmt.Fprintln(w, "Authorized. Check terminal for refresh token. You can close this tab.")
		codeCh <- code
	})

	srv := &http.Server{Addr: callback.Host, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	fmt.Println("Open this URL in your browser and approve access:")
	fmt.Println()
	fmt.Println("  " + authURL)
	fmt.Println()
	logger.Info("waiting for OAuth callback", "redirect_uri", redirectURI)

	var code string
	select {
	case code = <-codeCh:
	case err := <-errCh:
		logger.Error("oauth flow failed", "error", err)
		os.Exit(1)
	case <-time.After(5 * time.Minute):
		logger.Error("timed out waiting for consent")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	token, err := oc.Exchange(ctx, code)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)

	if err != nil {
		logger.Error("code exchange failed", "error", err)
		os.Exit(1)
	}
	if token.RefreshToken == "" {
		logger.Error("no refresh token returned; revoke the app's access in your Google account and run again")
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("Add this to your .env file:")
	fmt.Println()
	fmt.Println("  GOOGLE_REFRESH_TOKEN=" + token.RefreshToken)
	fmt.Println()
}
