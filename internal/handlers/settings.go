package handlers

import (
	"fmt"
	"log/slog"

	"github.com/chiefnetworks/dockru/internal/ws"
)

func RegisterSettingsHandlers(app *App) {
	app.WS.Handle("getSettings", app.handleGetSettings)
	app.WS.Handle("setSettings", app.handleSetSettings)
	app.WS.Handle("disconnectOtherSocketClients", app.handleDisconnectOthers)
	app.WS.Handle("composerize", app.handleComposerize)
}

// settingsBlocklist holds keys that are never sent to a client, even an
// authenticated one — the JWT secret doubles as the agent-password
// encryption key (see secret.DeriveKey) and must never leave the server.
var settingsBlocklist = map[string]bool{
	"jwtSecret": true,
}

func (app *App) handleGetSettings(c *ws.Conn, msg *ws.ClientMessage) {
	if checkLogin(c, msg) == 0 {
		return
	}

	all, err := app.Settings.GetAll()
	if err != nil {
		slog.Error("get settings", "err", err)
		if msg.ID != nil {
			c.SendAck(*msg.ID, ws.ErrorResponse{OK: false, Msg: "Internal error"})
		}
		return
	}

	data := make(map[string]string, len(all))
	for k, v := range all {
		if settingsBlocklist[k] {
			continue
		}
		data[k] = v
	}

	if msg.ID != nil {
		c.SendAck(*msg.ID, struct {
			OK   bool              `json:"ok"`
			Data map[string]string `json:"data"`
		}{OK: true, Data: data})
	}
}

func (app *App) handleSetSettings(c *ws.Conn, msg *ws.ClientMessage) {
	if checkLogin(c, msg) == 0 {
		return
	}

	args := parseArgs(msg)
	var updates map[string]interface{}
	if !argObject(args, 0, &updates) {
		if msg.ID != nil {
			c.SendAck(*msg.ID, ws.ErrorResponse{OK: false, Msg: "Settings object required"})
		}
		return
	}

	for key, v := range updates {
		if settingsBlocklist[key] {
			continue
		}
		value := stringifySetting(v)
		if err := app.Settings.Set(key, value); err != nil {
			slog.Error("set setting", "key", key, "err", err)
			if msg.ID != nil {
				c.SendAck(*msg.ID, ws.ErrorResponse{OK: false, Msg: "Internal error"})
			}
			return
		}
	}
	app.Settings.InvalidateCache()

	if msg.ID != nil {
		c.SendAck(*msg.ID, ws.OkResponse{OK: true, Msg: "Settings saved"})
	}
}

// stringifySetting renders a decoded JSON value as the flat string the
// setting table stores — booleans as "1"/"0", everything else via fmt's
// default verb.
func stringifySetting(v interface{}) string {
	switch t := v.(type) {
	case bool:
		if t {
			return "1"
		}
		return "0"
	case string:
		return t
	default:
		return fmt.Sprintf("%v", t)
	}
}

func (app *App) handleDisconnectOthers(c *ws.Conn, msg *ws.ClientMessage) {
	if checkLogin(c, msg) == 0 {
		return
	}
	app.WS.DisconnectOthers(c)
	if msg.ID != nil {
		c.SendAck(*msg.ID, ws.OkResponse{OK: true})
	}
}

// handleComposerize is a stub. Translating `docker run` command lines into
// compose files relies on the external composerize service, which this
// server does not call; the event is wired but always fails.
func (app *App) handleComposerize(c *ws.Conn, msg *ws.ClientMessage) {
	if checkLogin(c, msg) == 0 {
		return
	}
	if msg.ID != nil {
		c.SendAck(*msg.ID, ws.ErrorResponse{OK: false, Msg: "Composerize conversion is not available"})
	}
}
