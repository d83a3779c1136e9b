package handlers

import (
	"log/slog"

	"github.com/chiefnetworks/dockru/internal/models"
	"github.com/chiefnetworks/dockru/internal/ws"
)

// clientKey derives the rate-limiter bucket key for a connection. The
// protocol has no access to the originating IP once it reaches a handler,
// so every connection currently shares a single bucket. Proxy-header
// extraction would slot in here.
const clientKey = "local"

func RegisterAuthHandlers(app *App) {
	app.WS.Handle("login", app.handleLogin)
	app.WS.Handle("loginByToken", app.handleLoginByToken)
	app.WS.Handle("logout", app.handleLogout)
	app.WS.Handle("setup", app.handleSetup)
	app.WS.Handle("needSetup", app.handleNeedSetup)
	app.WS.Handle("changePassword", app.handleChangePassword)
	app.WS.Handle("getTurnstileSiteKey", app.handleGetTurnstileSiteKey)
	app.WS.Handle("prepare2FA", app.handleStub2FA)
	app.WS.Handle("save2FA", app.handleStub2FA)
	app.WS.Handle("disable2FA", app.handleStub2FA)
	app.WS.Handle("verifyToken", app.handleStub2FA)
	app.WS.Handle("twoFAStatus", app.handleTwoFAStatus)

	app.WS.HandleConnect(app.handleConnect)
}

// handleConnect fires when a new WebSocket connection is established. It
// pushes the initial "info" event (and a "setup" nudge if no admin exists
// yet), and under --no-auth auto-authenticates the session as user 1.
func (app *App) handleConnect(c *ws.Conn) {
	if app.NoAuth {
		c.SetUser(1)
	}

	c.SendEvent("info", infoPayload(app))

	if app.NeedSetup {
		c.SendEvent("setup")
	}
}

func infoPayload(app *App) map[string]interface{} {
	payload := map[string]interface{}{
		"version":     app.Version,
		"isContainer": true,
	}
	if latest := app.LatestVersion(); latest != "" {
		payload["latestVersion"] = latest
	}
	if hostname, err := app.Settings.Get("primaryHostname"); err == nil && hostname != "" {
		payload["primaryHostname"] = hostname
	}
	return payload
}

// afterLogin re-sends connect-time pushes plus the data an authenticated
// session needs immediately: the agent list and a fresh stack list. It also
// dials every stored agent — unless this session is itself an inbound agent
// link, which must never extend the mesh another hop.
func (app *App) afterLogin(c *ws.Conn) {
	c.SendEvent("info", infoPayload(app))
	app.sendAgentListTo(c)
	app.sendStackListTo(c)

	if c.Endpoint() == "" {
		go app.connectAllAgents()
	}
}

func (app *App) handleLogin(c *ws.Conn, msg *ws.ClientMessage) {
	if !app.Limiters.AllowLogin(clientKey) {
		if msg.ID != nil {
			c.SendAck(*msg.ID, ws.ErrorResponse{OK: false, Msg: "authRateLimitExceeded", MsgI18n: true})
		}
		return
	}

	args := parseArgs(msg)

	// The frontend sends either a single {username,password} object or
	// positional (username, password, token, otherToken) arguments.
	var username, password string
	var creds struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if argObject(args, 0, &creds) && creds.Username != "" {
		username, password = creds.Username, creds.Password
	} else {
		username = argString(args, 0)
		password = argString(args, 1)
	}

	if username == "" || password == "" {
		if msg.ID != nil {
			c.SendAck(*msg.ID, ws.ErrorResponse{OK: false, Msg: "Username and password required"})
		}
		return
	}

	user, err := app.Users.FindByUsername(username)
	if err != nil {
		slog.Error("login: find user", "err", err)
		if msg.ID != nil {
			c.SendAck(*msg.ID, ws.ErrorResponse{OK: false, Msg: "Internal error"})
		}
		return
	}
	if user == nil || !models.VerifyPassword(password, user.Password) {
		if msg.ID != nil {
			c.SendAck(*msg.ID, ws.ErrorResponse{OK: false, Msg: "authIncorrectCreds", MsgI18n: true})
		}
		return
	}

	// Transparently upgrade hashes minted at a different bcrypt cost. The
	// JWT below embeds the new hash's fingerprint, so the freshly issued
	// token stays valid while older ones die.
	if models.NeedsRehash(user.Password) {
		if err := app.Users.ChangePassword(user.ID, password); err != nil {
			slog.Warn("password rehash", "err", err)
		} else if fresh, err := app.Users.FindByID(user.ID); err == nil && fresh != nil {
			user = fresh
		}
	}

	token, err := models.CreateJWT(user, app.JWTSecret)
	if err != nil {
		slog.Error("login: create jwt", "err", err)
		if msg.ID != nil {
			c.SendAck(*msg.ID, ws.ErrorResponse{OK: false, Msg: "Internal error"})
		}
		return
	}

	c.SetUser(user.ID)
	app.afterLogin(c)

	if msg.ID != nil {
		c.SendAck(*msg.ID, ws.OkResponse{OK: true, Token: token})
	}
}

// handleLoginByToken re-authenticates a session from a JWT persisted by the
// browser. The token embeds a SHAKE256 hash of the password at mint time
// (JWTClaims.H); if the stored password hash has since changed, the token
// is rejected so a password change invalidates every outstanding session.
func (app *App) handleLoginByToken(c *ws.Conn, msg *ws.ClientMessage) {
	args := parseArgs(msg)
	token := argString(args, 0)
	if token == "" {
		if msg.ID != nil {
			c.SendAck(*msg.ID, ws.ErrorResponse{OK: false, Msg: "Token required"})
		}
		return
	}

	claims, err := models.VerifyJWT(token, app.JWTSecret)
	if err != nil {
		if msg.ID != nil {
			c.SendAck(*msg.ID, ws.ErrorResponse{OK: false, Msg: "authInvalidToken", MsgI18n: true})
		}
		return
	}

	user, err := app.Users.FindByUsername(claims.Username)
	if err != nil {
		slog.Error("loginByToken: find user", "err", err)
		if msg.ID != nil {
			c.SendAck(*msg.ID, ws.ErrorResponse{OK: false, Msg: "Internal error"})
		}
		return
	}
	if user == nil || claims.H != models.Shake256Hex(user.Password, 16) {
		if msg.ID != nil {
			c.SendAck(*msg.ID, ws.ErrorResponse{OK: false, Msg: "authInvalidToken", MsgI18n: true})
		}
		return
	}

	c.SetUser(user.ID)
	app.afterLogin(c)

	if msg.ID != nil {
		c.SendAck(*msg.ID, ws.OkResponse{OK: true})
	}
}

func (app *App) handleLogout(c *ws.Conn, msg *ws.ClientMessage) {
	c.SetUser(0)
	if msg.ID != nil {
		c.SendAck(*msg.ID, ws.OkResponse{OK: true})
	}
}

func (app *App) handleSetup(c *ws.Conn, msg *ws.ClientMessage) {
	if !app.Limiters.AllowLogin(clientKey) {
		if msg.ID != nil {
			c.SendAck(*msg.ID, ws.ErrorResponse{OK: false, Msg: "authRateLimitExceeded", MsgI18n: true})
		}
		return
	}

	args := parseArgs(msg)
	username := argString(args, 0)
	password := argString(args, 1)

	if username == "" || len(password) < 6 {
		if msg.ID != nil {
			c.SendAck(*msg.ID, ws.ErrorResponse{OK: false, Msg: "Username required and password must be at least 6 characters"})
		}
		return
	}

	count, err := app.Users.Count()
	if err != nil {
		slog.Error("setup: count users", "err", err)
		if msg.ID != nil {
			c.SendAck(*msg.ID, ws.ErrorResponse{OK: false, Msg: "Internal error"})
		}
		return
	}
	if count > 0 {
		if msg.ID != nil {
			c.SendAck(*msg.ID, ws.ErrorResponse{OK: false, Msg: "Setup already completed"})
		}
		return
	}

	if _, err := app.Users.Create(username, password); err != nil {
		slog.Error("setup: create user", "err", err)
		if msg.ID != nil {
			c.SendAck(*msg.ID, ws.ErrorResponse{OK: false, Msg: "Internal error"})
		}
		return
	}

	app.NeedSetup = false
	slog.Info("setup completed", "username", username)

	if msg.ID != nil {
		c.SendAck(*msg.ID, ws.OkResponse{OK: true, Msg: "successAdded", MsgI18n: true})
	}
}

func (app *App) handleNeedSetup(c *ws.Conn, msg *ws.ClientMessage) {
	if msg.ID != nil {
		c.SendAck(*msg.ID, struct {
			OK        bool `json:"ok"`
			NeedSetup bool `json:"needSetup"`
		}{OK: true, NeedSetup: app.NeedSetup})
	}
}

func (app *App) handleChangePassword(c *ws.Conn, msg *ws.ClientMessage) {
	uid := checkLogin(c, msg)
	if uid == 0 {
		return
	}

	args := parseArgs(msg)
	currentPassword := argString(args, 0)
	newPassword := argString(args, 1)

	if len(newPassword) < 6 {
		if msg.ID != nil {
			c.SendAck(*msg.ID, ws.ErrorResponse{OK: false, Msg: "New password must be at least 6 characters"})
		}
		return
	}

	user, err := app.Users.FindByID(uid)
	if err != nil || user == nil {
		if msg.ID != nil {
			c.SendAck(*msg.ID, ws.ErrorResponse{OK: false, Msg: "User not found"})
		}
		return
	}
	if !models.VerifyPassword(currentPassword, user.Password) {
		if msg.ID != nil {
			c.SendAck(*msg.ID, ws.ErrorResponse{OK: false, Msg: "Incorrect current password"})
		}
		return
	}

	if err := app.Users.ChangePassword(uid, newPassword); err != nil {
		slog.Error("change password", "err", err)
		if msg.ID != nil {
			c.SendAck(*msg.ID, ws.ErrorResponse{OK: false, Msg: "Internal error"})
		}
		return
	}

	// Every outstanding JWT embeds a hash of the old password (JWTClaims.H),
	// so changing it invalidates every other session; drop them now rather
	// than waiting for their next request to fail loginByToken.
	app.WS.BroadcastAuthenticated("refresh")

	if msg.ID != nil {
		c.SendAck(*msg.ID, ws.OkResponse{OK: true, Msg: "Password changed"})
	}
}

func (app *App) handleGetTurnstileSiteKey(c *ws.Conn, msg *ws.ClientMessage) {
	if msg.ID != nil {
		c.SendAck(*msg.ID, struct {
			OK               bool   `json:"ok"`
			TurnstileSiteKey string `json:"turnstileSiteKey"`
		}{OK: true})
	}
}

// handleStub2FA answers every 2FA configuration event with a fixed error.
// Two-factor verification is not implemented; the event names are wired so
// clients probing for them get a real response, but nothing is enrolled.
func (app *App) handleStub2FA(c *ws.Conn, msg *ws.ClientMessage) {
	if !app.Limiters.AllowTwoFA(clientKey) {
		if msg.ID != nil {
			c.SendAck(*msg.ID, ws.ErrorResponse{OK: false, Msg: "authRateLimitExceeded", MsgI18n: true})
		}
		return
	}
	if checkLogin(c, msg) == 0 {
		return
	}
	if msg.ID != nil {
		c.SendAck(*msg.ID, ws.ErrorResponse{OK: false, Msg: "Two-factor authentication is not supported"})
	}
}

func (app *App) handleTwoFAStatus(c *ws.Conn, msg *ws.ClientMessage) {
	if checkLogin(c, msg) == 0 {
		return
	}
	if msg.ID != nil {
		c.SendAck(*msg.ID, struct {
			OK     bool `json:"ok"`
			Status bool `json:"status"`
		}{OK: true, Status: false})
	}
}

