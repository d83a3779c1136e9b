package stack

import (
    "encoding/json"
    "fmt"
    "os"
    "path/filepath"
    "regexp"
    "strings"

    "gopkg.in/yaml.v3"
)

// Status constants for a stack's derived lifecycle state.
const (
    UNKNOWN       = 0
    CREATED_FILE  = 1
    CREATED_STACK = 2
    RUNNING       = 3
    EXITED        = 4
)

// Accepted compose file names (checked in order)
var acceptedComposeFileNames = []string{
    "compose.yaml",
    "docker-compose.yaml",
    "docker-compose.yml",
    "compose.yml",
}

var acceptedComposeOverrideFileNames = []string{
    "compose.override.yaml",
    "compose.override.yml",
    "docker-compose.override.yaml",
    "docker-compose.override.yml",
}

// Stack represents a docker compose stack.
type Stack struct {
    Name                    string
    Status                  int
    IsManagedByDockru       bool
    ComposeFileName         string
    ComposeOverrideFileName string
    ComposeYAML             string
    ComposeENV              string
    ComposeOverrideYAML     string
    Path                    string // full path to stack directory
}

// IsStarted returns true if the stack has running containers.
func (s *Stack) IsStarted() bool {
    return s.Status == RUNNING
}

var stackNameRe = regexp.MustCompile(`^[a-z0-9_-]+$`)

// ValidateName reports whether name is acceptable as a stack directory name.
func ValidateName(name string) error {
    if name == "" || !stackNameRe.MatchString(name) {
        return fmt.Errorf("stack name must match [a-z0-9_-]+")
    }
    return nil
}

// Validate checks the stack's name, compose YAML, and .env content before
// anything is written to disk. The .env must be empty, span multiple lines,
// or be a single KEY=VALUE line — a single line without "=" is almost
// always a pasted-in mistake.
func (s *Stack) Validate() error {
    if err := ValidateName(s.Name); err != nil {
        return err
    }

    var doc interface{}
    if err := yaml.Unmarshal([]byte(s.ComposeYAML), &doc); err != nil {
        return fmt.Errorf("invalid compose yaml: %w", err)
    }
    if s.ComposeOverrideYAML != "" {
        if err := yaml.Unmarshal([]byte(s.ComposeOverrideYAML), &doc); err != nil {
            return fmt.Errorf("invalid compose override yaml: %w", err)
        }
    }

    env := strings.TrimRight(s.ComposeENV, "\r\n")
    if env != "" && !strings.Contains(env, "\n") && !strings.Contains(env, "=") {
        return fmt.Errorf("invalid .env: single line must contain '='")
    }
    return nil
}

// ToSimpleJSON returns the stack data for the stack list broadcast.
// recreateNecessary indicates whether this stack has containers needing recreation.
func (s *Stack) ToSimpleJSON(endpoint string, recreateNecessary bool) map[string]interface{} {
    return map[string]interface{}{
        "name":                    s.Name,
        "status":                  s.Status,
        "started":                 s.IsStarted(),
        "recreateNecessary":       recreateNecessary,
        "tags":                    []string{},
        "isManagedByDockru":       s.IsManagedByDockru,
        "composeFileName":         s.ComposeFileName,
        "composeOverrideFileName": s.ComposeOverrideFileName,
        "endpoint":                endpoint,
    }
}

// ToJSON returns full stack data including YAML content (for getStack).
func (s *Stack) ToJSON(endpoint, primaryHostname string, recreateNecessary bool) map[string]interface{} {
    obj := s.ToSimpleJSON(endpoint, recreateNecessary)
    obj["composeYAML"] = s.ComposeYAML
    obj["composeENV"] = s.ComposeENV
    obj["composeOverrideYAML"] = s.ComposeOverrideYAML
    obj["primaryHostname"] = primaryHostname
    return obj
}

// LoadFromDisk reads the compose files from the stack directory.
func (s *Stack) LoadFromDisk(stacksDir string) error {
    s.Path = filepath.Join(stacksDir, s.Name)

    // Find compose file
    for _, name := range acceptedComposeFileNames {
        path := filepath.Join(s.Path, name)
        if data, err := os.ReadFile(path); err == nil {
            s.ComposeFileName = name
            s.ComposeYAML = string(data)
            break
        }
    }

    // Find override file
    for _, name := range acceptedComposeOverrideFileNames {
        path := filepath.Join(s.Path, name)
        if data, err := os.ReadFile(path); err == nil {
            s.ComposeOverrideFileName = name
            s.ComposeOverrideYAML = string(data)
            break
        }
    }

    // Read .env file
    envPath := filepath.Join(s.Path, ".env")
    if data, err := os.ReadFile(envPath); err == nil {
        s.ComposeENV = string(data)
    }

    return nil
}

// SaveToDisk validates and writes the compose files to the stack directory.
// With isAdd, the directory must not already exist; without it, it must.
func (s *Stack) SaveToDisk(stacksDir string, isAdd bool) error {
    if err := s.Validate(); err != nil {
        return err
    }

    s.Path = filepath.Join(stacksDir, s.Name)

    _, statErr := os.Stat(s.Path)
    if isAdd {
        if statErr == nil {
            return fmt.Errorf("Stack name already exists")
        }
    } else if statErr != nil {
        return fmt.Errorf("stack %q does not exist", s.Name)
    }

    if err := os.MkdirAll(s.Path, 0755); err != nil {
        return fmt.Errorf("create stack dir: %w", err)
    }

    // Determine compose file name
    composeFile := s.ComposeFileName
    if composeFile == "" {
        composeFile = "compose.yaml"
        s.ComposeFileName = composeFile
    }

    // Write compose file
    if err := os.WriteFile(filepath.Join(s.Path, composeFile), []byte(s.ComposeYAML), 0644); err != nil {
        return fmt.Errorf("write compose file: %w", err)
    }

    // Write .env if non-empty, or if the file already exists (an existing
    // .env emptied in the editor is truncated, not silently dropped)
    envPath := filepath.Join(s.Path, ".env")
    _, envExists := os.Stat(envPath)
    if s.ComposeENV != "" || envExists == nil {
        if err := os.WriteFile(envPath, []byte(s.ComposeENV), 0644); err != nil {
            return fmt.Errorf("write env file: %w", err)
        }
    }

    // Write override file if non-empty
    if s.ComposeOverrideYAML != "" {
        overrideFile := s.ComposeOverrideFileName
        if overrideFile == "" {
            overrideFile = "compose.override.yaml"
            s.ComposeOverrideFileName = overrideFile
        }
        if err := os.WriteFile(filepath.Join(s.Path, overrideFile), []byte(s.ComposeOverrideYAML), 0644); err != nil {
            return fmt.Errorf("write override file: %w", err)
        }
    }

    return nil
}

// ComposeFileExists checks if any accepted compose file exists for a stack.
func ComposeFileExists(stacksDir, stackName string) bool {
    dir := filepath.Join(stacksDir, stackName)
    for _, name := range acceptedComposeFileNames {
        if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
            return true
        }
    }
    return false
}

// StatusConvert converts the status string from `docker compose ls` to a status number.
// Input examples: "running(2)", "exited(2)", "running(2), exited(1)", "created(1)"
//
// Priority: a status starting with "created" is CREATED_STACK; one containing
// "exited" is EXITED even if some services are still running; one starting
// with "running" is RUNNING; anything else is UNKNOWN.
func StatusConvert(statusStr string) int {
    if strings.HasPrefix(statusStr, "created") {
        return CREATED_STACK
    }
    if strings.Contains(statusStr, "exited") {
        return EXITED
    }
    if strings.HasPrefix(statusStr, "running") {
        return RUNNING
    }
    return UNKNOWN
}

// ComposeLsEntry is one entry from `docker compose ls --format json`.
type ComposeLsEntry struct {
    Name        string `json:"Name"`
    Status      string `json:"Status"`
    ConfigFiles string `json:"ConfigFiles"`
}

// ParseComposeLs parses the JSON output of `docker compose ls --format json`.
func ParseComposeLs(data []byte) ([]ComposeLsEntry, error) {
    var entries []ComposeLsEntry
    if err := json.Unmarshal(data, &entries); err != nil {
        return nil, err
    }
    return entries, nil
}
