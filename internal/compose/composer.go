package compose

import (
    "context"
    "io"
)

// Composer is the process interface to `docker compose`: every orchestration
// op streams its output to w and runs with the stack directory as CWD. Exec
// is the production implementation, shelling out to the docker CLI.
type Composer interface {
    DownRemoveOrphans(ctx context.Context, stackName string, w io.Writer) error
    DownVolumes(ctx context.Context, stackName string, w io.Writer) error
    ServiceUp(ctx context.Context, stackName, serviceName string, w io.Writer) error
    ServiceStop(ctx context.Context, stackName, serviceName string, w io.Writer) error
    ServiceRestart(ctx context.Context, stackName, serviceName string, w io.Writer) error
    ServicePullAndUp(ctx context.Context, stackName, serviceName string, w io.Writer) error
}
