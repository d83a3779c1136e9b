package main

import (
	"compress/gzip"
	"context"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	netpprof "net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/chiefnetworks/dockru/internal/agent"
	"github.com/chiefnetworks/dockru/internal/compose"
	"github.com/chiefnetworks/dockru/internal/config"
	"github.com/chiefnetworks/dockru/internal/db"
	"github.com/chiefnetworks/dockru/internal/docker"
	"github.com/chiefnetworks/dockru/internal/handlers"
	"github.com/chiefnetworks/dockru/internal/models"
	"github.com/chiefnetworks/dockru/internal/ratelimit"
	"github.com/chiefnetworks/dockru/internal/secret"
	"github.com/chiefnetworks/dockru/internal/terminal"
	"github.com/chiefnetworks/dockru/internal/ws"
)

// version is set at build time via -ldflags="-X main.version=..."
var version = "1.5.0"

func main() {
	// Quick healthcheck mode — used by Docker HEALTHCHECK from scratch image.
	// Avoids needing wget/curl in the container. The binary starts in ~10ms,
	// hits /healthz, and exits immediately — no server initialization.
	if len(os.Args) > 1 && os.Args[1] == "healthcheck" {
		port := "5001"
		if v := os.Getenv("DOCKRU_PORT"); v != "" {
			port = v
		}
		resp, err := http.Get("http://127.0.0.1:" + port + "/healthz")
		if err != nil || resp.StatusCode != 200 {
			os.Exit(1)
		}
		os.Exit(0)
	}

	cfg := config.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	})))

	slog.Info("starting dockru",
		"port", cfg.Port,
		"hostname", cfg.Hostname,
		"stacksDir", cfg.StacksDir,
		"dataDir", cfg.DataDir,
		"dev", cfg.Dev,
		"logLevel", cfg.LogLevel,
		"noAuth", cfg.NoAuth,
		"enableConsole", cfg.EnableConsole,
	)

	// Open database
	database, err := db.Open(cfg.DataDir)
	if err != nil {
		slog.Error("database", "err", err)
		os.Exit(1)
	}
	defer database.Close()

	// WebSocket server
	wss := ws.NewServer()

	// HTTP mux
	mux := http.NewServeMux()
	mux.Handle("/ws", wss.UpgradeHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Enable pprof endpoints in dev mode or via DOCKRU_PPROF=1
	if cfg.Dev || cfg.Pprof {
		mux.HandleFunc("/debug/pprof/", pprofIndex)
		mux.HandleFunc("/debug/pprof/cmdline", pprofCmdline)
		mux.HandleFunc("/debug/pprof/profile", pprofProfile)
		mux.HandleFunc("/debug/pprof/symbol", pprofSymbol)
		mux.HandleFunc("/debug/pprof/trace", pprofTrace)
		slog.Info("pprof enabled at /debug/pprof/")
	}

	// Frontend SPA handler
	var frontendFS fs.FS
	if cfg.Dev {
		// Serve from filesystem (for Vite HMR, point Vite proxy at this port)
		distPath := "dist"
		slog.Info("dev mode: serving frontend from filesystem", "path", distPath)
		frontendFS = os.DirFS(distPath)
	} else {
		// Serve from embedded files
		sub, err := fs.Sub(staticFiles, "dist")
		if err != nil {
			slog.Error("embed frontend", "err", err)
			os.Exit(1)
		}
		frontendFS = sub
	}
	mux.Handle("/", gzipMiddleware(spaHandler(frontendFS)))

	// Models
	users := models.NewUserStore(database)
	settings := models.NewSettingStore(database)
	agents := models.NewAgentStore(database)
	imageUpdates := models.NewImageUpdateStore(database)

	// JWT secret (auto-generated on first run). Its bcrypt hash doubles as
	// the AES-GCM key-derivation input for agent passwords at rest.
	jwtSecret, err := settings.EnsureJWTSecret()
	if err != nil {
		slog.Error("jwt secret", "err", err)
		os.Exit(1)
	}

	agentKey := secret.DeriveKey(jwtSecret)
	if err := agents.ReencryptLegacy(agentKey); err != nil {
		slog.Warn("reencrypt legacy agent passwords", "err", err)
	}

	// Check if setup is needed
	userCount, err := users.Count()
	if err != nil {
		slog.Error("user count", "err", err)
		os.Exit(1)
	}

	// Dev mode: auto-seed admin user
	if cfg.Dev && userCount == 0 {
		if _, err := users.Create("admin", "testpass123"); err != nil {
			slog.Error("dev seed", "err", err)
		} else {
			slog.Info("dev mode: seeded admin user")
			userCount = 1
		}
	}

	// Docker client — connects to whatever DOCKER_HOST points to.
	dockerClient, err := docker.NewSDKClient()
	if err != nil {
		slog.Error("docker client", "err", err)
		os.Exit(1)
	}
	defer dockerClient.Close()

	// Terminal manager
	terms := terminal.NewManager()

	// Agent mesh: one process-wide manager; peer status changes and pushes
	// fan out to every authenticated local session.
	agentMgr := agent.NewManager(handlers.AgentStatusBroadcaster(wss))
	agentMgr.OnEvent(handlers.AgentEventForwarder(wss))

	// Wire up handlers
	app := &handlers.App{
		Users:         users,
		Settings:      settings,
		Agents:        agents,
		ImageUpdates:  imageUpdates,
		WS:            wss,
		Docker:        dockerClient,
		Compose:       &compose.Exec{StacksDir: cfg.StacksDir},
		Terms:         terms,
		AgentMgr:      agentMgr,
		Limiters:      ratelimit.New(),
		JWTSecret:     jwtSecret,
		NeedSetup:     userCount == 0,
		Version:       version,
		StacksDir:     cfg.StacksDir,
		EnableConsole: cfg.EnableConsole,
		NoAuth:        cfg.NoAuth,
		Dev:           cfg.Dev,
	}
	handlers.RegisterAuthHandlers(app)
	handlers.RegisterSettingsHandlers(app)
	handlers.RegisterStackHandlers(app)
	handlers.RegisterTerminalHandlers(app)
	handlers.RegisterDockerHandlers(app)
	handlers.RegisterServiceHandlers(app)
	handlers.RegisterAgentHandlers(app)

	// Clean up terminal writers when a connection disconnects
	wss.OnDisconnect(func(c *ws.Conn) {
		terms.RemoveWriterFromAll(c.ID())
	})

	// Start background tasks
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Compose file watcher (fsnotify) — broadcasts when files change on disk
	if err := compose.StartWatcher(ctx, cfg.StacksDir, func(stackName string) {
		app.TriggerRefresh()
	}); err != nil {
		slog.Warn("compose file watcher failed to start", "err", err)
	}

	app.StartStackWatcher(ctx)
	app.StartImageUpdateChecker(ctx)
	app.StartVersionChecker(ctx)

	// Start HTTP server
	addr := net.JoinHostPort(cfg.Hostname, strconv.Itoa(cfg.Port))
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	agentMgr.DisconnectAll()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)
}

// spaHandler serves static files from the given FS. If the requested file
// doesn't exist, it falls back to index.html for client-side routing.
func spaHandler(fsys fs.FS) http.Handler {
	fileServer := http.FileServer(http.FS(fsys))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Clean the path
		path := strings.TrimPrefix(r.URL.Path, "/")
		if path == "" {
			path = "index.html"
		}

		// Try to open the file
		f, err := fsys.Open(path)
		if err != nil {
			// File not found — serve index.html for SPA routing
			r.URL.Path = "/"
			fileServer.ServeHTTP(w, r)
			return
		}
		f.Close()

		// File exists — serve it
		fileServer.ServeHTTP(w, r)
	})
}

// pprof handler wrappers — net/http/pprof registers on DefaultServeMux via init(),
// but we use a custom mux. Reference the exported handler functions directly.
var (
	pprofIndex   = netpprof.Index
	pprofCmdline = netpprof.Cmdline
	pprofProfile = netpprof.Profile
	pprofSymbol  = netpprof.Symbol
	pprofTrace   = netpprof.Trace
)

// gzipPool reuses gzip.Writer instances (~256KB internal state each).
var gzipPool = sync.Pool{
	New: func() any {
		w, _ := gzip.NewWriterLevel(nil, gzip.DefaultCompression)
		return w
	},
}

// gzipMiddleware compresses responses on the fly for clients that accept it.
func gzipMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			next.ServeHTTP(w, r)
			return
		}

		// Skip compression for small/binary responses
		path := r.URL.Path
		ext := filepath.Ext(path)
		switch ext {
		case ".png", ".jpg", ".jpeg", ".gif", ".ico", ".woff", ".woff2", ".br", ".gz":
			next.ServeHTTP(w, r)
			return
		}

		gz := gzipPool.Get().(*gzip.Writer)
		gz.Reset(w)
		defer func() {
			gz.Close()
			gzipPool.Put(gz)
		}()

		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Del("Content-Length")

		next.ServeHTTP(&gzipResponseWriter{Writer: gz, ResponseWriter: w}, r)
	})
}

type gzipResponseWriter struct {
	io.Writer
	http.ResponseWriter
}

func (w *gzipResponseWriter) Write(b []byte) (int, error) {
	return w.Writer.Write(b)
}
