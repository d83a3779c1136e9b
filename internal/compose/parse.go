package compose

import (
    "fmt"
    "os"

    "gopkg.in/yaml.v3"
)

// ServiceData holds the extracted per-service data from a compose file.
type ServiceData struct {
    Image             string // e.g. "nginx:latest"
    StatusIgnore      bool   // dockru.status.ignore == "true"
    ImageUpdatesCheck bool   // dockru.imageupdates.check != "false" (default true)
}

// composeFile mirrors the subset of the Compose file schema this package
// cares about. Unknown top-level keys (networks, volumes, secrets, ...) are
// ignored by yaml.v3's default unmarshalling.
type composeFile struct {
    Services map[string]composeService `yaml:"services"`
}

type composeService struct {
    Image  string            `yaml:"image"`
    Labels composeLabels     `yaml:"labels"`
}

// composeLabels accepts both the mapping form (labels: {k: v}) and the list
// form (labels: ["k=v"]) that Compose allows.
type composeLabels map[string]string

func (l *composeLabels) UnmarshalYAML(node *yaml.Node) error {
    out := make(map[string]string)
    switch node.Kind {
    case yaml.MappingNode:
        var m map[string]string
        if err := node.Decode(&m); err != nil {
            return err
        }
        out = m
    case yaml.SequenceNode:
        var list []string
        if err := node.Decode(&list); err != nil {
            return err
        }
        for _, kv := range list {
            for i := 0; i < len(kv); i++ {
                if kv[i] == '=' {
                    out[kv[:i]] = kv[i+1:]
                    break
                }
            }
        }
    }
    *l = out
    return nil
}

// ParseFile reads a compose file from disk and extracts per-service data.
// Returns nil (not an error) if the file cannot be opened, matching the
// caller's tolerance for stacks with no readable compose file yet.
func ParseFile(path string) map[string]ServiceData {
    data, err := os.ReadFile(path)
    if err != nil {
        return nil
    }
    services, _ := parseYAML(data)
    return services
}

// ParseYAML parses compose YAML from a string and extracts per-service data.
func ParseYAML(source string) map[string]ServiceData {
    services, _ := parseYAML([]byte(source))
    return services
}

// Validate parses compose YAML and returns an error if it is not
// well-formed YAML or lacks a top-level "services" mapping.
func Validate(source string) error {
    _, err := parseYAML([]byte(source))
    return err
}

func parseYAML(data []byte) (map[string]ServiceData, error) {
    var cf composeFile
    if err := yaml.Unmarshal(data, &cf); err != nil {
        return nil, fmt.Errorf("parse compose yaml: %w", err)
    }

    result := make(map[string]ServiceData, len(cf.Services))
    for name, svc := range cf.Services {
        result[name] = ServiceData{
            Image:             svc.Image,
            StatusIgnore:      svc.Labels["dockru.status.ignore"] == "true",
            ImageUpdatesCheck: svc.Labels["dockru.imageupdates.check"] != "false",
        }
    }
    return result, nil
}
