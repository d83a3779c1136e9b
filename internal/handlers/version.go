package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	versionCheckInterval = 48 * time.Hour
	releaseAPIURL        = "https://api.github.com/repos/chiefnetworks/dockru/releases/latest"
)

// StartVersionChecker probes the upstream release feed once at boot and then
// every 48 hours. Failures are logged and the loop continues — an offline
// host just never shows an update hint.
func (app *App) StartVersionChecker(ctx context.Context) {
	go func() {
		for {
			if v, err := fetchLatestVersion(ctx); err != nil {
				slog.Warn("version check", "err", err)
			} else if v != "" {
				app.setLatestVersion(v)
				if err := app.Settings.Set("latestVersion", v); err != nil {
					slog.Warn("store latest version", "err", err)
				}
				slog.Debug("version check", "latest", v)
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(versionCheckInterval):
			}
		}
	}()
}

func (app *App) setLatestVersion(v string) {
	app.latestMu.Lock()
	app.latestVersion = v
	app.latestMu.Unlock()
}

// LatestVersion returns the most recently fetched upstream version, or ""
// if no check has succeeded yet.
func (app *App) LatestVersion() string {
	app.latestMu.Lock()
	defer app.latestMu.Unlock()
	return app.latestVersion
}

func fetchLatestVersion(ctx context.Context) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, releaseAPIURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errStatus(resp.StatusCode)
	}

	var release struct {
		TagName string `json:"tag_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return "", err
	}
	return strings.TrimPrefix(release.TagName, "v"), nil
}

type errStatus int

func (e errStatus) Error() string {
	return http.StatusText(int(e))
}
