package agent

import (
    "context"
    "fmt"
    "log/slog"
    "sync"
    "time"
)

const (
    testOuterDeadline = 30 * time.Second
    readyGraceWindow  = 10 * time.Second
)

// StoredAgent is the subset of a persisted agent row the manager needs to
// dial a peer. Defined here (rather than imported from internal/models) to
// keep this package independent of the persistence layer.
type StoredAgent struct {
    URL      string
    Username string
    Password string
}

// Manager owns the endpoint→Client map and the connect-all /
// emit-to-endpoint / emit-to-all-endpoints fan-out rules.
//
// One Manager serves the whole process. Only an ordinary browser session
// ever triggers ConnectAll — an agent-side inbound link already carries a
// non-empty endpoint tag and is rejected before any mesh operation — so a
// chain of instances never forms a transitive mesh.
type Manager struct {
    onStatus StatusFunc
    onEvent  EventFunc

    mu              sync.RWMutex
    clients         map[string]*Client
    firstConnectSet bool
    firstConnect    time.Time
}

func NewManager(onStatus StatusFunc) *Manager {
    return &Manager{
        onStatus: onStatus,
        clients:  make(map[string]*Client),
    }
}

// OnEvent registers the callback each client forwards peer-pushed "agent"
// events to. Set once at boot, before any Connect.
func (m *Manager) OnEvent(fn EventFunc) {
    m.onEvent = fn
}

// Test performs a transient connect+login to validate credentials without
// persisting or keeping the connection. Fails if the endpoint is already
// connected.
func (m *Manager) Test(url, username, password string) error {
    endpoint, err := Endpoint(url)
    if err != nil {
        return err
    }

    m.mu.RLock()
    _, exists := m.clients[endpoint]
    m.mu.RUnlock()
    if exists {
        return fmt.Errorf("agent %s already connected", endpoint)
    }

    c, err := NewClient(url, username, password, nil)
    if err != nil {
        return err
    }

    ctx, cancel := context.WithTimeout(context.Background(), testOuterDeadline)
    defer cancel()

    if err := c.Connect(ctx); err != nil {
        return err
    }
    c.Disconnect()
    return nil
}

// Connect idempotently establishes and installs a client for the given
// peer.
func (m *Manager) Connect(url, username, password string) error {
    endpoint, err := Endpoint(url)
    if err != nil {
        return err
    }

    m.mu.Lock()
    if _, exists := m.clients[endpoint]; exists {
        m.mu.Unlock()
        return nil
    }
    c, err := NewClient(url, username, password, m.onStatus)
    if err != nil {
        m.mu.Unlock()
        return err
    }
    c.OnEvent(m.onEvent)
    m.clients[endpoint] = c
    m.mu.Unlock()

    go func() {
        ctx, cancel := context.WithTimeout(context.Background(), testOuterDeadline)
        defer cancel()
        if err := c.Connect(ctx); err != nil {
            slog.Warn("agent connect failed", "endpoint", endpoint, "err", err)
        }
    }()
    return nil
}

// Remove disconnects and forgets the client for the given peer URL.
func (m *Manager) Remove(url string) error {
    endpoint, err := Endpoint(url)
    if err != nil {
        return err
    }

    m.mu.Lock()
    c, ok := m.clients[endpoint]
    delete(m.clients, endpoint)
    m.mu.Unlock()

    if ok {
        c.Disconnect()
    }
    return nil
}

// ConnectAll stamps the ready-grace-window start and connects to every
// stored agent. Must never be called for a session that is itself an
// inbound agent link (endpoint != ""); callers enforce that check.
func (m *Manager) ConnectAll(agents []StoredAgent) {
    m.mu.Lock()
    m.firstConnectSet = true
    m.firstConnect = time.Now()
    m.mu.Unlock()

    for _, a := range agents {
        if err := m.Connect(a.URL, a.Username, a.Password); err != nil {
            slog.Warn("agent connect-all", "url", a.URL, "err", err)
        }
    }
}

// EmitToEndpoint forwards eventName/args to a single peer, wrapped in the
// "agent" proxy envelope. If the peer isn't logged in yet and we're still
// within the post-ConnectAll grace window, it polls once per second until
// login completes or the window closes.
func (m *Manager) EmitToEndpoint(endpoint, eventName string, args interface{}) error {
    m.mu.RLock()
    c, ok := m.clients[endpoint]
    firstConnectSet := m.firstConnectSet
    firstConnect := m.firstConnect
    m.mu.RUnlock()

    if !ok {
        return fmt.Errorf("socket client not connected")
    }

    if !c.LoggedIn() {
        deadline := time.Now().Add(readyGraceWindow)
        if firstConnectSet {
            deadline = firstConnect.Add(readyGraceWindow)
        }
        for !c.LoggedIn() && time.Now().Before(deadline) {
            time.Sleep(1 * time.Second)
        }
        if !c.LoggedIn() {
            return fmt.Errorf("socket client not connected")
        }
    }

    // Splice the payload into the envelope positionally, so the peer sees
    // agent(endpoint, event, a, b, c) — not a nested argument array.
    emitArgs := []interface{}{endpoint, eventName}
    switch v := args.(type) {
    case nil:
    case []interface{}:
        emitArgs = append(emitArgs, v...)
    default:
        emitArgs = append(emitArgs, v)
    }
    return c.Emit("agent", emitArgs...)
}

// EmitToAllEndpoints fans out to every stored endpoint. Per-endpoint
// failures are logged, not returned — a single unreachable peer must not
// block the others.
func (m *Manager) EmitToAllEndpoints(eventName string, args interface{}) {
    m.mu.RLock()
    endpoints := make([]string, 0, len(m.clients))
    for e := range m.clients {
        endpoints = append(endpoints, e)
    }
    m.mu.RUnlock()

    for _, e := range endpoints {
        if err := m.EmitToEndpoint(e, eventName, args); err != nil {
            slog.Warn("agent emit to all", "endpoint", e, "event", eventName, "err", err)
        }
    }
}

// DisconnectAll tears down every client. Called on shutdown.
func (m *Manager) DisconnectAll() {
    m.mu.Lock()
    clients := m.clients
    m.clients = make(map[string]*Client)
    m.mu.Unlock()

    for _, c := range clients {
        c.Disconnect()
    }
}

// Connected reports whether the given endpoint currently has a logged-in
// client.
func (m *Manager) Connected(endpoint string) bool {
    m.mu.RLock()
    c, ok := m.clients[endpoint]
    m.mu.RUnlock()
    return ok && c.LoggedIn()
}
