package handlers

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chiefnetworks/dockru/internal/compose"
	"github.com/chiefnetworks/dockru/internal/terminal"
	"github.com/chiefnetworks/dockru/internal/ws"
)

const (
	defaultImageUpdateInterval = 6 * time.Hour
	imageCheckConcurrency      = 3
)

func RegisterServiceHandlers(app *App) {
	app.WS.Handle("startService", app.handleStartService)
	app.WS.Handle("stopService", app.handleStopService)
	app.WS.Handle("restartService", app.handleRestartService)
	app.WS.Handle("updateService", app.handleUpdateService)
	app.WS.Handle("checkImageUpdates", app.handleCheckImageUpdates)
}

// serviceArgs pulls the (stack, service) pair every service event carries.
func serviceArgs(c *ws.Conn, msg *ws.ClientMessage) (string, string, bool) {
	args := parseArgs(msg)
	stackName := argString(args, 0)
	serviceName := argString(args, 1)
	if stackName == "" || serviceName == "" {
		if msg.ID != nil {
			c.SendAck(*msg.ID, ws.ErrorResponse{OK: false, Msg: "Stack and service name required"})
		}
		return "", "", false
	}
	return stackName, serviceName, true
}

func (app *App) handleStartService(c *ws.Conn, msg *ws.ClientMessage) {
	if checkLogin(c, msg) == 0 {
		return
	}
	stackName, serviceName, ok := serviceArgs(c, msg)
	if !ok {
		return
	}
	go func() {
		err := app.runServiceAction(stackName, "start service", func(ctx context.Context, w *terminal.Terminal) error {
			return app.Compose.ServiceUp(ctx, stackName, serviceName, w)
		})
		app.ackComposeResult(c, msg.ID, "start service", "Started", err)
	}()
}

func (app *App) handleStopService(c *ws.Conn, msg *ws.ClientMessage) {
	if checkLogin(c, msg) == 0 {
		return
	}
	stackName, serviceName, ok := serviceArgs(c, msg)
	if !ok {
		return
	}
	go func() {
		err := app.runServiceAction(stackName, "stop service", func(ctx context.Context, w *terminal.Terminal) error {
			return app.Compose.ServiceStop(ctx, stackName, serviceName, w)
		})
		app.ackComposeResult(c, msg.ID, "stop service", "Stopped", err)
	}()
}

func (app *App) handleRestartService(c *ws.Conn, msg *ws.ClientMessage) {
	if checkLogin(c, msg) == 0 {
		return
	}
	stackName, serviceName, ok := serviceArgs(c, msg)
	if !ok {
		return
	}
	go func() {
		err := app.runServiceAction(stackName, "restart service", func(ctx context.Context, w *terminal.Terminal) error {
			return app.Compose.ServiceRestart(ctx, stackName, serviceName, w)
		})
		app.ackComposeResult(c, msg.ID, "restart service", "Restarted", err)
	}()
}

func (app *App) handleUpdateService(c *ws.Conn, msg *ws.ClientMessage) {
	if checkLogin(c, msg) == 0 {
		return
	}
	stackName, serviceName, ok := serviceArgs(c, msg)
	if !ok {
		return
	}
	go func() {
		err := app.runServiceAction(stackName, "update service", func(ctx context.Context, w *terminal.Terminal) error {
			return app.Compose.ServicePullAndUp(ctx, stackName, serviceName, w)
		})
		if err == nil {
			app.checkImageUpdatesForStack(stackName)
		}
		app.BroadcastAll()
		app.ackComposeResult(c, msg.ID, "update service", "Updated", err)
	}()
}

// runServiceAction claims the stack's compose terminal exclusively and runs
// one Composer operation against it, so single-service ops and whole-stack
// ops share the same one-at-a-time rule.
func (app *App) runServiceAction(stackName, action string, op func(context.Context, *terminal.Terminal) error) error {
	termName := composeTermName(stackName)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	term, err := app.Terms.RecreateExclusive(termName, terminal.TypePipe)
	if err != nil {
		return err
	}
	term.BeginOp()
	defer func() {
		term.EndOp()
		app.Terms.RemoveAfter(termName, 30*time.Second)
		app.TriggerRefresh()
	}()

	if err := op(ctx, term); err != nil {
		if ctx.Err() == nil {
			term.Write([]byte("\r\n[Error] " + err.Error() + "\r\n"))
			slog.Error("service action", "action", action, "stack", stackName, "err", err)
		}
		return err
	}
	term.Write([]byte("\r\n[Done]\r\n"))
	return nil
}

func (app *App) handleCheckImageUpdates(c *ws.Conn, msg *ws.ClientMessage) {
	if checkLogin(c, msg) == 0 {
		return
	}

	args := parseArgs(msg)
	stackName := argString(args, 0)
	if stackName == "" {
		if msg.ID != nil {
			c.SendAck(*msg.ID, ws.ErrorResponse{OK: false, Msg: "Stack name required"})
		}
		return
	}

	go func() {
		app.checkImageUpdatesForStack(stackName)
		app.BroadcastAll()
	}()

	// Ack immediately — the check runs asynchronously
	if msg.ID != nil {
		c.SendAck(*msg.ID, ws.OkResponse{OK: true})
	}
}

// checkImageUpdatesForStack compares, per service, the local image digest
// against the registry digest and records the result. Services labelled
// dockru.imageupdates.check=false are skipped and any stale row is dropped.
func (app *App) checkImageUpdatesForStack(stackName string) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	path := compose.FindComposeFile(app.StacksDir, stackName)
	if path == "" {
		return
	}
	serviceData := compose.ParseFile(path)

	for svc, sd := range serviceData {
		if sd.Image == "" {
			continue
		}

		if !sd.ImageUpdatesCheck {
			if err := app.ImageUpdates.DeleteService(stackName, svc); err != nil {
				slog.Warn("delete disabled service update entry", "err", err, "stack", stackName, "svc", svc)
			}
			continue
		}

		localDigest := app.localImageDigest(ctx, sd.Image)
		remoteDigest, err := app.Docker.DistributionInspect(ctx, sd.Image)
		if err != nil {
			remoteDigest = ""
		}

		hasUpdate := localDigest != "" && remoteDigest != "" && localDigest != remoteDigest
		if err := app.ImageUpdates.Upsert(stackName, svc, sd.Image, localDigest, remoteDigest, hasUpdate); err != nil {
			slog.Error("image update upsert", "err", err, "stack", stackName, "svc", svc)
		}
	}
}

// localImageDigest extracts the sha256 digest of the locally pulled image.
func (app *App) localImageDigest(ctx context.Context, imageRef string) string {
	digests, err := app.Docker.ImageInspect(ctx, imageRef)
	if err != nil || len(digests) == 0 {
		return ""
	}
	// RepoDigests are "repo@sha256:abc..."
	for _, d := range digests {
		if idx := strings.Index(d, "@"); idx >= 0 {
			return d[idx+1:]
		}
	}
	return digests[0]
}

// imageUpdateInterval reads the check interval (hours) from settings.
func (app *App) imageUpdateInterval() time.Duration {
	val, err := app.Settings.Get("imageUpdateCheckInterval")
	if err != nil || val == "" {
		return defaultImageUpdateInterval
	}
	hours, err := strconv.ParseFloat(val, 64)
	if err != nil || hours <= 0 {
		return defaultImageUpdateInterval
	}
	return time.Duration(hours * float64(time.Hour))
}

// imageUpdateCheckEnabled reads the enabled flag from settings; on by default.
func (app *App) imageUpdateCheckEnabled() bool {
	val, err := app.Settings.Get("imageUpdateCheckEnabled")
	if err != nil || val == "" {
		return true
	}
	return val != "0" && val != "false"
}

// StartImageUpdateChecker periodically re-checks every managed stack's images
// against their registries. Settings are re-read each tick so an interval or
// enabled change takes effect without a restart.
func (app *App) StartImageUpdateChecker(ctx context.Context) {
	go func() {
		// Let the stack list load before the first sweep
		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
		}

		for {
			if app.imageUpdateCheckEnabled() {
				app.checkAllImageUpdates()
				app.BroadcastAll()
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(app.imageUpdateInterval()):
			}
		}
	}()
}

// checkAllImageUpdates sweeps every managed stack, bounded so the daemon and
// registries aren't saturated.
func (app *App) checkAllImageUpdates() {
	entries, err := os.ReadDir(app.StacksDir)
	if err != nil {
		slog.Warn("image update sweep: read stacks dir", "err", err)
		return
	}

	var stackNames []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if compose.FindComposeFile(app.StacksDir, entry.Name()) != "" {
			stackNames = append(stackNames, entry.Name())
		}
	}
	if len(stackNames) == 0 {
		return
	}

	slog.Info("image update sweep starting", "stacks", len(stackNames))

	sem := make(chan struct{}, imageCheckConcurrency)
	var wg sync.WaitGroup
	for _, name := range stackNames {
		wg.Add(1)
		sem <- struct{}{}
		go func(stackName string) {
			defer wg.Done()
			defer func() { <-sem }()
			app.checkImageUpdatesForStack(stackName)
		}(name)
	}
	wg.Wait()

	slog.Info("image update sweep complete")
}
