package docker

import (
    "context"
    "io"
    "time"
)

// Client abstracts Docker daemon queries (reads only, plus image pruning).
// Write operations (up, down, stop, restart, pull) remain as CLI shell-outs
// in the compose package — compose is not a daemon-level API.
type Client interface {
    // ContainerList returns containers, optionally filtered by compose project.
    // If all is true, includes stopped containers. If projectFilter is non-empty,
    // only returns containers belonging to that compose project.
    ContainerList(ctx context.Context, all bool, projectFilter string) ([]Container, error)

    // ContainerInspect returns the raw JSON inspect output for a container.
    ContainerInspect(ctx context.Context, id string) (string, error)

    // ContainerStats returns resource usage stats for running containers.
    // If projectFilter is non-empty, only returns stats for that compose project.
    ContainerStats(ctx context.Context, projectFilter string) (map[string]ContainerStat, error)

    // ContainerStartedAt returns when the container was last started.
    // Returns zero time if the container has never started or info is unavailable.
    ContainerStartedAt(ctx context.Context, containerID string) (time.Time, error)

    // ContainerLogs opens a log stream for a container.
    // Returns the stream, whether the container uses a TTY, and any error.
    // The caller must close the returned ReadCloser.
    ContainerLogs(ctx context.Context, containerID string, tail string, follow bool) (io.ReadCloser, bool, error)

    // ImageInspect returns the RepoDigests for a local image.
    // Returns nil if the image is not found locally.
    ImageInspect(ctx context.Context, imageRef string) ([]string, error)

    // DistributionInspect returns the remote (registry) digest for an image
    // without pulling it. Returns "" if unavailable.
    DistributionInspect(ctx context.Context, imageRef string) (string, error)

    // ImageList returns summary info for all Docker images.
    ImageList(ctx context.Context) ([]ImageSummary, error)

    // ImagePrune removes unused images. Returns human-readable reclaimed space string.
    ImagePrune(ctx context.Context, all bool) (string, error)

    // NetworkList returns summary info for all Docker networks.
    NetworkList(ctx context.Context) ([]NetworkSummary, error)

    // VolumeList returns summary info for all Docker volumes.
    VolumeList(ctx context.Context) ([]VolumeSummary, error)

    // Events returns a channel of container lifecycle events and an error channel.
    // The channels are closed when the context is cancelled.
    Events(ctx context.Context) (<-chan DockerEvent, <-chan error)

    // Close releases any resources held by the client.
    Close() error
}
