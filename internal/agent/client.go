// Package agent implements the outbound half of the agent mesh: one
// websocket client per configured peer instance, plus a manager that owns
// the endpoint→client map and the proxy-protocol fan-out rules.
package agent

import (
    "context"
    "encoding/json"
    "fmt"
    "log/slog"
    "net/http"
    "net/url"
    "strconv"
    "sync"
    "sync/atomic"
    "time"

    "github.com/coder/websocket"

    "github.com/chiefnetworks/dockru/internal/ws"
)

// minPeerVersion is the lowest peer server version this client will stay
// connected to; below it the handshake disconnects with a warning.
const minPeerVersion = "1.4.0"

const (
    loginAckTimeout = 10 * time.Second
    writeTimeout    = 10 * time.Second
)

// StatusFunc is called whenever a client's connection status changes.
type StatusFunc func(endpoint, status, msg string)

// EventFunc receives "agent"-wrapped events pushed by the peer, e.g. its
// stack-list broadcasts. data is the raw payload exactly as received.
type EventFunc func(endpoint string, data json.RawMessage)

// Client is one outbound connection to a peer dockru instance.
type Client struct {
    Endpoint string // host[:port] derived from URL

    url      string
    username string
    password string
    onStatus StatusFunc
    onEvent  EventFunc

    mu       sync.Mutex
    conn     *websocket.Conn
    loggedIn bool
    cancel   context.CancelFunc

    ackID  int64
    acksMu sync.Mutex
    acks   map[int64]chan json.RawMessage
}

// Endpoint derives host[:port] from a URL string, e.g.
// "https://peer:5001" -> "peer:5001".
func Endpoint(rawURL string) (string, error) {
    u, err := url.Parse(rawURL)
    if err != nil {
        return "", fmt.Errorf("parse agent url: %w", err)
    }
    if u.Host == "" {
        return "", fmt.Errorf("agent url %q has no host", rawURL)
    }
    return u.Host, nil
}

// NewClient builds a client for the given peer.
func NewClient(rawURL, username, password string, onStatus StatusFunc) (*Client, error) {
    endpoint, err := Endpoint(rawURL)
    if err != nil {
        return nil, err
    }
    return &Client{
        Endpoint: endpoint,
        url:      rawURL,
        username: username,
        password: password,
        onStatus: onStatus,
        acks:     make(map[int64]chan json.RawMessage),
    }, nil
}

func (c *Client) emitStatus(status, msg string) {
    if c.onStatus != nil {
        c.onStatus(c.Endpoint, status, msg)
    }
}

// LoggedIn reports whether the login handshake has completed successfully.
func (c *Client) LoggedIn() bool {
    c.mu.Lock()
    defer c.mu.Unlock()
    return c.loggedIn
}

// Connect dials the peer and performs the login handshake. On failure the
// client emits an "offline" status and returns the error; it does not retry
// on its own — retry policy belongs to the Manager.
func (c *Client) Connect(ctx context.Context) error {
    wsURL, err := toWebsocketURL(c.url)
    if err != nil {
        return err
    }

    // The header carries the peer's own endpoint as this instance addresses
    // it. The peer tags the inbound session with it, so proxied
    // agent(endpoint, …) events addressed to that endpoint dispatch locally
    // there, and the non-empty tag keeps the peer from extending the mesh.
    header := http.Header{}
    header.Set("X-Dockru-Endpoint", c.Endpoint)

    conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: header})
    if err != nil {
        c.emitStatus("offline", err.Error())
        return fmt.Errorf("dial agent %s: %w", c.Endpoint, err)
    }

    connCtx, cancel := context.WithCancel(context.Background())
    c.mu.Lock()
    c.conn = conn
    c.cancel = cancel
    c.mu.Unlock()

    go c.readLoop(connCtx)

    loginCtx, loginCancel := context.WithTimeout(ctx, loginAckTimeout)
    defer loginCancel()

    ack, err := c.request(loginCtx, "login", c.username, c.password)
    if err != nil {
        c.emitStatus("offline", err.Error())
        c.Disconnect()
        return fmt.Errorf("login %s: %w", c.Endpoint, err)
    }

    var resp ws.OkResponse
    if err := json.Unmarshal(ack, &resp); err != nil {
        c.emitStatus("offline", "malformed login ack")
        c.Disconnect()
        return fmt.Errorf("login %s: malformed ack: %w", c.Endpoint, err)
    }
    if !resp.OK {
        c.emitStatus("offline", resp.Msg)
        c.Disconnect()
        return fmt.Errorf("login %s: %s", c.Endpoint, resp.Msg)
    }

    c.mu.Lock()
    c.loggedIn = true
    c.mu.Unlock()

    c.emitStatus("online", "")
    return nil
}

// Disconnect closes the connection. Safe to call multiple times.
func (c *Client) Disconnect() {
    c.mu.Lock()
    conn := c.conn
    cancel := c.cancel
    c.conn = nil
    c.cancel = nil
    c.loggedIn = false
    c.mu.Unlock()

    if cancel != nil {
        cancel()
    }
    if conn != nil {
        conn.Close(websocket.StatusNormalClosure, "")
    }
}

// Emit sends a fire-and-forget event to the peer (no ack awaited). Used to
// forward proxied "agent" events.
func (c *Client) Emit(event string, args ...interface{}) error {
    c.mu.Lock()
    conn := c.conn
    c.mu.Unlock()
    if conn == nil {
        return fmt.Errorf("agent %s not connected", c.Endpoint)
    }

    msg := ws.ClientMessage{Event: event}
    raw, err := json.Marshal(collapseArgs(args))
    if err != nil {
        return fmt.Errorf("marshal emit args: %w", err)
    }
    msg.Args = raw

    data, err := json.Marshal(msg)
    if err != nil {
        return fmt.Errorf("marshal emit: %w", err)
    }

    ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
    defer cancel()
    return conn.Write(ctx, websocket.MessageText, data)
}

// request sends an event expecting an ack and blocks until it arrives or ctx
// is done.
func (c *Client) request(ctx context.Context, event string, args ...interface{}) (json.RawMessage, error) {
    c.mu.Lock()
    conn := c.conn
    c.mu.Unlock()
    if conn == nil {
        return nil, fmt.Errorf("agent %s not connected", c.Endpoint)
    }

    id := atomic.AddInt64(&c.ackID, 1)
    ch := make(chan json.RawMessage, 1)
    c.acksMu.Lock()
    c.acks[id] = ch
    c.acksMu.Unlock()
    defer func() {
        c.acksMu.Lock()
        delete(c.acks, id)
        c.acksMu.Unlock()
    }()

    raw, err := json.Marshal(collapseArgs(args))
    if err != nil {
        return nil, fmt.Errorf("marshal request args: %w", err)
    }
    msg := ws.ClientMessage{ID: &id, Event: event, Args: raw}
    data, err := json.Marshal(msg)
    if err != nil {
        return nil, fmt.Errorf("marshal request: %w", err)
    }

    writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
    defer cancel()
    if err := conn.Write(writeCtx, websocket.MessageText, data); err != nil {
        return nil, fmt.Errorf("write request: %w", err)
    }

    select {
    case ack := <-ch:
        return ack, nil
    case <-ctx.Done():
        return nil, ctx.Err()
    }
}

func (c *Client) readLoop(ctx context.Context) {
    defer c.Disconnect()

    for {
        c.mu.Lock()
        conn := c.conn
        c.mu.Unlock()
        if conn == nil {
            return
        }

        _, data, err := conn.Read(ctx)
        if err != nil {
            c.emitStatus("offline", "disconnected")
            return
        }

        var envelope struct {
            ID    *int64          `json:"id"`
            Event string          `json:"event"`
            Data  json.RawMessage `json:"data"`
        }
        if err := json.Unmarshal(data, &envelope); err != nil {
            slog.Warn("agent client unmarshal", "endpoint", c.Endpoint, "err", err)
            continue
        }

        if envelope.ID != nil {
            c.acksMu.Lock()
            ch, ok := c.acks[*envelope.ID]
            c.acksMu.Unlock()
            if ok {
                ch <- envelope.Data
            }
            continue
        }

        switch envelope.Event {
        case "info":
            c.handleInfo(envelope.Data)
        case "agent":
            if c.onEvent != nil {
                c.onEvent(c.Endpoint, envelope.Data)
            }
        }
    }
}

// OnEvent registers the callback for peer-pushed "agent" events. Must be set
// before Connect.
func (c *Client) OnEvent(fn EventFunc) {
    c.onEvent = fn
}

func (c *Client) handleInfo(data json.RawMessage) {
    var info struct {
        Version string `json:"version"`
    }
    if err := json.Unmarshal(data, &info); err != nil {
        return
    }
    if info.Version != "" && versionLess(info.Version, minPeerVersion) {
        slog.Warn("agent peer version too old", "endpoint", c.Endpoint, "version", info.Version, "min", minPeerVersion)
        c.emitStatus("offline", "Unsupported version")
        c.Disconnect()
    }
}

func collapseArgs(args []interface{}) interface{} {
    switch len(args) {
    case 0:
        return nil
    case 1:
        return args[0]
    default:
        return args
    }
}

func toWebsocketURL(rawURL string) (string, error) {
    u, err := url.Parse(rawURL)
    if err != nil {
        return "", fmt.Errorf("parse agent url: %w", err)
    }
    switch u.Scheme {
    case "https":
        u.Scheme = "wss"
    default:
        u.Scheme = "ws"
    }
    u.Path = "/ws"
    return u.String(), nil
}

// versionLess reports whether a < b for dotted numeric version strings
// (e.g. "1.3.9" < "1.4.0"). Non-numeric segments sort as 0.
func versionLess(a, b string) bool {
    as, bs := splitVersion(a), splitVersion(b)
    for i := 0; i < len(as) || i < len(bs); i++ {
        var av, bv int
        if i < len(as) {
            av = as[i]
        }
        if i < len(bs) {
            bv = bs[i]
        }
        if av != bv {
            return av < bv
        }
    }
    return false
}

func splitVersion(v string) []int {
    var out []int
    start := 0
    for i := 0; i <= len(v); i++ {
        if i == len(v) || v[i] == '.' {
            n, _ := strconv.Atoi(v[start:i])
            out = append(out, n)
            start = i + 1
        }
    }
    return out
}
