package handlers

import (
	"encoding/json"
	"log/slog"

	"github.com/chiefnetworks/dockru/internal/agent"
	"github.com/chiefnetworks/dockru/internal/ws"
)

// allDockruEndpoints is the broadcast pseudo-endpoint: an "agent" event
// addressed here is dispatched locally AND fanned out to every connected
// peer.
const allDockruEndpoints = "##ALL_DOCKRU_ENDPOINTS##"

func RegisterAgentHandlers(app *App) {
	app.WS.Handle("addAgent", app.handleAddAgent)
	app.WS.Handle("removeAgent", app.handleRemoveAgent)
	app.WS.Handle("agent", app.handleAgentEvent)
}

// AgentStatusBroadcaster builds the agent.StatusFunc passed to
// agent.NewManager. It closes over the WebSocket server directly (rather
// than *App) so it can be constructed before the App struct exists, since
// App.AgentMgr is itself built from this callback.
func AgentStatusBroadcaster(wss *ws.Server) agent.StatusFunc {
	return func(endpoint, status, msg string) {
		wss.BroadcastAuthenticated("agent", allDockruEndpoints, "agentStatus", map[string]interface{}{
			"endpoint": endpoint,
			"status":   status,
			"msg":      msg,
		})
	}
}

// AgentEventForwarder relays "agent"-wrapped pushes from a peer (its stack
// list, terminal output, status changes) to every authenticated local
// session, rewriting the envelope's endpoint slot to the peer's endpoint so
// the client attributes the payload to the right instance.
func AgentEventForwarder(wss *ws.Server) agent.EventFunc {
	return func(endpoint string, data json.RawMessage) {
		var parts []json.RawMessage
		if err := json.Unmarshal(data, &parts); err == nil && len(parts) >= 2 {
			tagged, err := json.Marshal(endpoint)
			if err == nil {
				parts[0] = tagged
				wss.BroadcastAuthenticated("agent", rawSlice(parts))
				return
			}
		}
		wss.BroadcastAuthenticated("agent", data)
	}
}

// rawSlice re-types for emit so the marshaller sees one positional array.
func rawSlice(parts []json.RawMessage) []interface{} {
	out := make([]interface{}, len(parts))
	for i, p := range parts {
		out[i] = p
	}
	return out
}

// connectAllAgents dials every stored agent. Runs when an ordinary session
// authenticates; the manager stamps the ready-grace window so proxied emits
// issued right after login wait for the handshakes instead of failing.
func (app *App) connectAllAgents() {
	stored, err := app.Agents.GetAll(app.AgentKey())
	if err != nil {
		slog.Error("connect all agents", "err", err)
		return
	}
	list := make([]agent.StoredAgent, 0, len(stored))
	for _, a := range stored {
		if !a.Active {
			continue
		}
		list = append(list, agent.StoredAgent{URL: a.URL, Username: a.Username, Password: a.Password})
	}
	app.AgentMgr.ConnectAll(list)
}

// agentListEntry is the client-facing projection of a stored agent —
// Password never leaves the server.
type agentListEntry struct {
	URL       string `json:"url"`
	Username  string `json:"username"`
	Name      string `json:"name"`
	Active    bool   `json:"active"`
	Connected bool   `json:"connected"`
}

func (app *App) buildAgentList() ([]agentListEntry, error) {
	stored, err := app.Agents.GetAll(app.AgentKey())
	if err != nil {
		return nil, err
	}
	list := make([]agentListEntry, 0, len(stored))
	for _, a := range stored {
		endpoint, err := agent.Endpoint(a.URL)
		connected := err == nil && app.AgentMgr.Connected(endpoint)
		list = append(list, agentListEntry{
			URL:       a.URL,
			Username:  a.Username,
			Name:      a.Name,
			Active:    a.Active,
			Connected: connected,
		})
	}
	return list, nil
}

func (app *App) sendAgentListTo(c *ws.Conn) {
	list, err := app.buildAgentList()
	if err != nil {
		slog.Warn("agent list", "err", err)
		return
	}
	c.SendEvent("agent", allDockruEndpoints, "agentList", list)
}

func (app *App) broadcastAgentList() {
	if !app.WS.HasAuthenticatedConns() {
		return
	}
	list, err := app.buildAgentList()
	if err != nil {
		slog.Warn("agent list broadcast", "err", err)
		return
	}
	app.WS.BroadcastAuthenticated("agent", allDockruEndpoints, "agentList", list)
}

func (app *App) handleAddAgent(c *ws.Conn, msg *ws.ClientMessage) {
	if checkLogin(c, msg) == 0 {
		return
	}

	args := parseArgs(msg)
	url := argString(args, 0)
	username := argString(args, 1)
	password := argString(args, 2)
	name := argString(args, 3)

	if url == "" || username == "" || password == "" {
		if msg.ID != nil {
			c.SendAck(*msg.ID, ws.ErrorResponse{OK: false, Msg: "URL, username, and password required"})
		}
		return
	}

	if err := app.AgentMgr.Test(url, username, password); err != nil {
		if msg.ID != nil {
			c.SendAck(*msg.ID, ws.ErrorResponse{OK: false, Msg: "Could not connect: " + err.Error()})
		}
		return
	}

	if _, err := app.Agents.Add(url, username, password, name, app.AgentKey()); err != nil {
		slog.Error("add agent", "err", err, "url", url)
		if msg.ID != nil {
			c.SendAck(*msg.ID, ws.ErrorResponse{OK: false, Msg: "Internal error"})
		}
		return
	}

	if err := app.AgentMgr.Connect(url, username, password); err != nil {
		slog.Warn("agent connect after add", "url", url, "err", err)
	}

	app.broadcastAgentList()

	if msg.ID != nil {
		c.SendAck(*msg.ID, ws.OkResponse{OK: true, Msg: "Agent added"})
	}
}

func (app *App) handleRemoveAgent(c *ws.Conn, msg *ws.ClientMessage) {
	if checkLogin(c, msg) == 0 {
		return
	}

	args := parseArgs(msg)
	url := argString(args, 0)
	if url == "" {
		if msg.ID != nil {
			c.SendAck(*msg.ID, ws.ErrorResponse{OK: false, Msg: "URL required"})
		}
		return
	}

	if err := app.Agents.Remove(url); err != nil {
		slog.Error("remove agent", "err", err, "url", url)
		if msg.ID != nil {
			c.SendAck(*msg.ID, ws.ErrorResponse{OK: false, Msg: "Internal error"})
		}
		return
	}
	if err := app.AgentMgr.Remove(url); err != nil {
		slog.Warn("agent disconnect on remove", "url", url, "err", err)
	}

	app.broadcastAgentList()

	if msg.ID != nil {
		c.SendAck(*msg.ID, ws.OkResponse{OK: true, Msg: "Agent removed"})
	}
}

// handleAgentEvent implements the proxy envelope: every cross-instance
// call, local or remote, travels as ("agent", endpoint, eventName,
// ...payload). endpoint selects the target:
//
//   - allDockruEndpoints: dispatch locally AND fan out to every peer
//   - "" or this instance's own tag: dispatch locally only
//   - anything else: forward to that single peer, no local dispatch
//
// One shared agent.Manager serves the whole process (see agent.Manager's
// doc comment); Conn.Endpoint() keeps a proxied inbound session from
// re-entering the mesh.
func (app *App) handleAgentEvent(c *ws.Conn, msg *ws.ClientMessage) {
	if checkLogin(c, msg) == 0 {
		return
	}
	if !app.Limiters.AllowAPI(clientKey) {
		if msg.ID != nil {
			c.SendAck(*msg.ID, ws.ErrorResponse{OK: false, Msg: "authRateLimitExceeded", MsgI18n: true})
		}
		return
	}

	args := parseArgs(msg)
	endpoint := argString(args, 0)
	eventName := argString(args, 1)
	var payload []json.RawMessage
	if len(args) > 2 {
		payload = args[2:]
	}

	switch {
	case endpoint == allDockruEndpoints:
		app.dispatchLocalAgentEvent(c, msg.ID, eventName, payload)
		app.AgentMgr.EmitToAllEndpoints(eventName, collapseRawArgs(payload))

	case endpoint == "" || endpoint == c.Endpoint():
		app.dispatchLocalAgentEvent(c, msg.ID, eventName, payload)

	default:
		if err := app.AgentMgr.EmitToEndpoint(endpoint, eventName, collapseRawArgs(payload)); err != nil {
			if msg.ID != nil {
				c.SendAck(*msg.ID, ws.ErrorResponse{OK: false, Msg: err.Error()})
			}
			return
		}
		if msg.ID != nil {
			c.SendAck(*msg.ID, ws.OkResponse{OK: true})
		}
	}
}

// dispatchLocalAgentEvent re-packs the inner event and routes it through the
// normal handler table, carrying the original ack ID so the caller's ack
// still resolves through whichever handler ultimately runs.
func (app *App) dispatchLocalAgentEvent(c *ws.Conn, id *int64, eventName string, payload []json.RawMessage) {
	argsJSON, err := json.Marshal(payload)
	if err != nil {
		slog.Error("agent event: marshal payload", "event", eventName, "err", err)
		return
	}
	inner := &ws.ClientMessage{ID: id, Event: eventName, Args: argsJSON}
	app.WS.Dispatch(c, inner)
}

// collapseRawArgs mirrors the emit(event, ...args) collapsing convention
// (0 args -> nil, 1 -> value, 2+ -> array) for a slice of already-decoded
// JSON arguments, so a proxied call look identical on the wire to a direct
// local emit.
func collapseRawArgs(args []json.RawMessage) interface{} {
	switch len(args) {
	case 0:
		return nil
	case 1:
		var v interface{}
		json.Unmarshal(args[0], &v)
		return v
	default:
		vals := make([]interface{}, len(args))
		for i, r := range args {
			json.Unmarshal(r, &vals[i])
		}
		return vals
	}
}
