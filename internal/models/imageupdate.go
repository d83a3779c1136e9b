package models

import (
    "database/sql"
    "fmt"
)

// Entry records the last known image-digest comparison for one service of
// one stack, used to surface "update available" badges in the UI.
type Entry struct {
    StackName    string `json:"stackName"`
    Service      string `json:"service"`
    Image        string `json:"image"`
    LocalDigest  string `json:"localDigest"`
    RemoteDigest string `json:"remoteDigest"`
    HasUpdate    bool   `json:"hasUpdate"`
}

type ImageUpdateStore struct {
    db *sql.DB
}

func NewImageUpdateStore(database *sql.DB) *ImageUpdateStore {
    return &ImageUpdateStore{db: database}
}

// Upsert records the latest digest comparison for a stack/service pair.
func (s *ImageUpdateStore) Upsert(stackName, service, image, localDigest, remoteDigest string, hasUpdate bool) error {
    _, err := s.db.Exec(`
        INSERT INTO image_update (stack_name, service, image, local_digest, remote_digest, has_update, checked_at)
        VALUES (?, ?, ?, ?, ?, ?, strftime('%s', 'now'))
        ON CONFLICT(stack_name, service) DO UPDATE SET
            image = excluded.image,
            local_digest = excluded.local_digest,
            remote_digest = excluded.remote_digest,
            has_update = excluded.has_update,
            checked_at = excluded.checked_at
    `, stackName, service, image, localDigest, remoteDigest, boolToInt(hasUpdate))
    if err != nil {
        return fmt.Errorf("upsert image update %s/%s: %w", stackName, service, err)
    }
    return nil
}

// GetAll returns every tracked stack/service entry.
func (s *ImageUpdateStore) GetAll() ([]Entry, error) {
    rows, err := s.db.Query("SELECT stack_name, service, image, local_digest, remote_digest, has_update FROM image_update")
    if err != nil {
        return nil, fmt.Errorf("get image updates: %w", err)
    }
    defer rows.Close()

    var entries []Entry
    for rows.Next() {
        var e Entry
        var hasUpdate int
        if err := rows.Scan(&e.StackName, &e.Service, &e.Image, &e.LocalDigest, &e.RemoteDigest, &hasUpdate); err != nil {
            return nil, fmt.Errorf("get image updates: %w", err)
        }
        e.HasUpdate = hasUpdate != 0
        entries = append(entries, e)
    }
    return entries, rows.Err()
}

// StackHasUpdates returns, per stack, whether any of its services has an
// available image update.
func (s *ImageUpdateStore) StackHasUpdates() (map[string]bool, error) {
    entries, err := s.GetAll()
    if err != nil {
        return nil, err
    }
    result := make(map[string]bool)
    for _, e := range entries {
        if e.HasUpdate {
            result[e.StackName] = true
        } else if _, ok := result[e.StackName]; !ok {
            result[e.StackName] = false
        }
    }
    return result, nil
}

// ServiceUpdatesForStack returns, per service of the given stack, whether
// an image update is available.
func (s *ImageUpdateStore) ServiceUpdatesForStack(stack string) (map[string]bool, error) {
    rows, err := s.db.Query("SELECT service, has_update FROM image_update WHERE stack_name = ?", stack)
    if err != nil {
        return nil, fmt.Errorf("service updates for %s: %w", stack, err)
    }
    defer rows.Close()

    result := make(map[string]bool)
    for rows.Next() {
        var service string
        var hasUpdate int
        if err := rows.Scan(&service, &hasUpdate); err != nil {
            return nil, fmt.Errorf("service updates for %s: %w", stack, err)
        }
        result[service] = hasUpdate != 0
    }
    return result, rows.Err()
}

// DeleteForStack removes all tracked entries for a stack, e.g. after it is
// deleted or renamed.
func (s *ImageUpdateStore) DeleteForStack(stack string) error {
    _, err := s.db.Exec("DELETE FROM image_update WHERE stack_name = ?", stack)
    if err != nil {
        return fmt.Errorf("delete image updates for %s: %w", stack, err)
    }
    return nil
}

// DeleteService removes a single tracked stack/service entry, e.g. after
// the service is removed from the compose file.
func (s *ImageUpdateStore) DeleteService(stack, service string) error {
    _, err := s.db.Exec("DELETE FROM image_update WHERE stack_name = ? AND service = ?", stack, service)
    if err != nil {
        return fmt.Errorf("delete image update %s/%s: %w", stack, service, err)
    }
    return nil
}

func boolToInt(b bool) int {
    if b {
        return 1
    }
    return 0
}
