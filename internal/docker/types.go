package docker

// Container holds the fields needed by handlers from a running or stopped container.
type Container struct {
    ID      string
    Name    string
    Project string // com.docker.compose.project
    Service string // com.docker.compose.service
    Image   string // image reference the container was created from
    State   string // running, exited, created, paused, dead, ...
    Health  string // healthy, unhealthy, starting, or "" (no healthcheck)
    Ports   []string // "public:private" for each port with a host mapping
}

// ContainerStat holds formatted resource-usage strings matching the frontend expectations.
type ContainerStat struct {
    Name     string `json:"Name"`
    CPUPerc  string `json:"CPUPerc"`
    MemPerc  string `json:"MemPerc"`
    MemUsage string `json:"MemUsage"`
    NetIO    string `json:"NetIO"`
    BlockIO  string `json:"BlockIO"`
    PIDs     string `json:"PIDs"`
}

// DockerEvent represents a Docker resource lifecycle event.
// Type indicates the resource kind: "container", "network", "image", "volume".
type DockerEvent struct {
    Type   string // "container", "network", "image", "volume"
    Action string // start, stop, die, create, destroy, connect, disconnect, pull, tag, ...
    // Container-specific fields (empty for non-container events)
    Project     string // from com.docker.compose.project label
    Service     string // from com.docker.compose.service label
    ContainerID string
}

// NetworkSummary holds basic info for network list display.
type NetworkSummary struct {
    Name       string            `json:"name"`
    ID         string            `json:"id"`
    Driver     string            `json:"driver"`
    Scope      string            `json:"scope"`
    Internal   bool              `json:"internal"`
    Attachable bool              `json:"attachable"`
    Ingress    bool              `json:"ingress"`
    Labels     map[string]string `json:"labels"`
}

// ImageSummary holds basic info for image list display.
type ImageSummary struct {
    ID       string   `json:"id"`
    RepoTags []string `json:"repoTags"`
    Size     string   `json:"size"`
    Created  string   `json:"created"`
    Dangling bool     `json:"dangling"`
}

// VolumeSummary holds basic info for volume list display.
type VolumeSummary struct {
    Name       string            `json:"name"`
    Driver     string            `json:"driver"`
    Mountpoint string            `json:"mountpoint"`
    Labels     map[string]string `json:"labels"`
}

