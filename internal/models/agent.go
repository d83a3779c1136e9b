package models

import (
    "database/sql"
    "errors"
    "fmt"

    "github.com/chiefnetworks/dockru/internal/secret"
)

// Agent is a peer dockru instance this server can proxy compose/docker
// operations to. Password is always the plaintext value in memory; at rest
// it is AES-GCM ciphertext (see internal/secret), decrypted transparently
// by GetAll/FindByURL.
type Agent struct {
    ID       int    `json:"id"`
    URL      string `json:"url"`
    Username string `json:"username"`
    Password string `json:"-"`
    Name     string `json:"name"`
    Active   bool   `json:"active"`
}

type AgentStore struct {
    db *sql.DB
}

func NewAgentStore(database *sql.DB) *AgentStore {
    return &AgentStore{db: database}
}

func scanAgent(row interface{ Scan(...interface{}) error }, key []byte) (*Agent, error) {
    var a Agent
    var active int
    if err := row.Scan(&a.ID, &a.URL, &a.Username, &a.Password, &a.Name, &active); err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return nil, nil
        }
        return nil, err
    }
    a.Active = active != 0

    plain, err := secret.Decrypt(a.Password, key)
    if err != nil {
        return nil, fmt.Errorf("decrypt agent password: %w", err)
    }
    a.Password = plain
    return &a, nil
}

const agentColumns = "id, url, username, password, name, active"

// GetAll returns all agents with passwords decrypted using key.
func (s *AgentStore) GetAll(key []byte) ([]Agent, error) {
    rows, err := s.db.Query("SELECT " + agentColumns + " FROM agent")
    if err != nil {
        return nil, fmt.Errorf("get agents: %w", err)
    }
    defer rows.Close()

    var agents []Agent
    for rows.Next() {
        a, err := scanAgent(rows, key)
        if err != nil {
            return nil, fmt.Errorf("get agents: %w", err)
        }
        agents = append(agents, *a)
    }
    return agents, rows.Err()
}

// FindByURL returns the agent with the given URL, decrypted, or nil.
func (s *AgentStore) FindByURL(url string, key []byte) (*Agent, error) {
    row := s.db.QueryRow("SELECT "+agentColumns+" FROM agent WHERE url = ?", url)
    a, err := scanAgent(row, key)
    if err != nil {
        return nil, fmt.Errorf("find agent: %w", err)
    }
    return a, nil
}

// Add inserts a new agent. password is encrypted with key before storage.
func (s *AgentStore) Add(url, username, password, name string, key []byte) (*Agent, error) {
    ciphertext, err := secret.Encrypt(password, key)
    if err != nil {
        return nil, fmt.Errorf("encrypt agent password: %w", err)
    }

    res, err := s.db.Exec(
        "INSERT INTO agent (url, username, password, name, active) VALUES (?, ?, ?, ?, 1)",
        url, username, ciphertext, name,
    )
    if err != nil {
        return nil, fmt.Errorf("add agent: %w", err)
    }
    id, err := res.LastInsertId()
    if err != nil {
        return nil, fmt.Errorf("add agent: %w", err)
    }

    return &Agent{ID: int(id), URL: url, Username: username, Password: password, Name: name, Active: true}, nil
}

// Remove deletes an agent by URL.
func (s *AgentStore) Remove(url string) error {
    _, err := s.db.Exec("DELETE FROM agent WHERE url = ?", url)
    if err != nil {
        return fmt.Errorf("remove agent: %w", err)
    }
    return nil
}

// UpdateName changes an agent's display name.
func (s *AgentStore) UpdateName(url, name string) error {
    res, err := s.db.Exec("UPDATE agent SET name = ? WHERE url = ?", name, url)
    if err != nil {
        return fmt.Errorf("update agent name: %w", err)
    }
    n, err := res.RowsAffected()
    if err != nil {
        return fmt.Errorf("update agent name: %w", err)
    }
    if n == 0 {
        return fmt.Errorf("agent %q not found", url)
    }
    return nil
}

// ReencryptLegacy re-encrypts any agent password rows that still hold
// plaintext from before encryption was introduced. It is idempotent: rows
// already carrying the encryption tag are left untouched.
func (s *AgentStore) ReencryptLegacy(key []byte) error {
    rows, err := s.db.Query("SELECT url, password FROM agent")
    if err != nil {
        return fmt.Errorf("reencrypt legacy agents: %w", err)
    }

    type pending struct{ url, password string }
    var todo []pending
    for rows.Next() {
        var url, password string
        if err := rows.Scan(&url, &password); err != nil {
            rows.Close()
            return fmt.Errorf("reencrypt legacy agents: %w", err)
        }
        if !secret.IsEncrypted(password) {
            todo = append(todo, pending{url, password})
        }
    }
    if err := rows.Err(); err != nil {
        rows.Close()
        return fmt.Errorf("reencrypt legacy agents: %w", err)
    }
    rows.Close()

    for _, p := range todo {
        ciphertext, err := secret.Encrypt(p.password, key)
        if err != nil {
            return fmt.Errorf("reencrypt agent %q: %w", p.url, err)
        }
        if _, err := s.db.Exec("UPDATE agent SET password = ? WHERE url = ?", ciphertext, p.url); err != nil {
            return fmt.Errorf("reencrypt agent %q: %w", p.url, err)
        }
    }
    return nil
}
