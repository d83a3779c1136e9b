package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/chiefnetworks/dockru/internal/docker"
	"github.com/chiefnetworks/dockru/internal/ws"
)

func RegisterDockerHandlers(app *App) {
	app.WS.Handle("serviceStatusList", app.handleServiceStatusList)
	app.WS.Handle("dockerStats", app.handleDockerStats)
	app.WS.Handle("containerInspect", app.handleContainerInspect)
	app.WS.Handle("getDockerNetworkList", app.handleGetDockerNetworkList)
	app.WS.Handle("getDockerImageList", app.handleGetDockerImageList)
	app.WS.Handle("getDockerVolumeList", app.handleGetDockerVolumeList)
}

// serviceStatusEntry is one running instance of a service, mirroring a
// single `docker compose ps` row.
type serviceStatusEntry struct {
	Status string   `json:"status"`
	Name   string   `json:"name"`
	Image  string   `json:"image"`
	Ports  []string `json:"ports"`
}

// handleServiceStatusList reports, per service in a stack, its running
// instances plus whether it needs recreating (running image differs from
// the compose file) or has a pending registry update (from ImageUpdates).
func (app *App) handleServiceStatusList(c *ws.Conn, msg *ws.ClientMessage) {
	if checkLogin(c, msg) == 0 {
		return
	}

	args := parseArgs(msg)
	stackName := argString(args, 0)
	if stackName == "" {
		if msg.ID != nil {
			c.SendAck(*msg.ID, ws.ErrorResponse{OK: false, Msg: "Stack name required"})
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	containers, err := app.Docker.ContainerList(ctx, true, stackName)
	if err != nil {
		slog.Warn("serviceStatusList", "err", err, "stack", stackName)
		if msg.ID != nil {
			c.SendAck(*msg.ID, map[string]interface{}{
				"ok":                    true,
				"serviceStatusList":     map[string]interface{}{},
				"serviceUpdateStatus":   map[string]interface{}{},
				"serviceRecreateStatus": map[string]interface{}{},
			})
		}
		return
	}

	_, imagesByStack := parseAllComposeData(app.StacksDir)
	composeImages := imagesByStack[stackName]

	serviceStatusList := make(map[string][]serviceStatusEntry)
	serviceRecreateStatus := make(map[string]bool)
	for _, ctr := range containers {
		if ctr.Service == "" {
			continue
		}
		status := ctr.State
		if ctr.Health != "" {
			status = ctr.Health
		}
		serviceStatusList[ctr.Service] = append(serviceStatusList[ctr.Service], serviceStatusEntry{
			Status: status,
			Name:   ctr.Name,
			Image:  ctr.Image,
			Ports:  ctr.Ports,
		})

		if composeImage, ok := composeImages[ctr.Service]; ok && ctr.Image != "" && composeImage != "" {
			serviceRecreateStatus[ctr.Service] = ctr.Image != composeImage
		}
	}

	serviceUpdateStatus, err := app.ImageUpdates.ServiceUpdatesForStack(stackName)
	if err != nil {
		slog.Warn("service update status", "err", err, "stack", stackName)
		serviceUpdateStatus = map[string]bool{}
	}

	if msg.ID != nil {
		c.SendAck(*msg.ID, map[string]interface{}{
			"ok":                    true,
			"serviceStatusList":     serviceStatusList,
			"serviceUpdateStatus":   serviceUpdateStatus,
			"serviceRecreateStatus": serviceRecreateStatus,
		})
	}
}

// handleDockerStats reports formatted resource usage for every running
// container, in the `docker stats` column layout the frontend renders.
func (app *App) handleDockerStats(c *ws.Conn, msg *ws.ClientMessage) {
	if checkLogin(c, msg) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stats, err := app.Docker.ContainerStats(ctx, "")
	if err != nil {
		slog.Warn("dockerStats", "err", err)
		stats = map[string]docker.ContainerStat{}
	}

	if msg.ID != nil {
		c.SendAck(*msg.ID, map[string]interface{}{
			"ok":          true,
			"dockerStats": stats,
		})
	}
}

// handleContainerInspect returns the full docker inspect JSON blob for one
// container, passed through unparsed so the frontend can render whatever
// fields it wants without this server needing to model them all.
func (app *App) handleContainerInspect(c *ws.Conn, msg *ws.ClientMessage) {
	if checkLogin(c, msg) == 0 {
		return
	}

	args := parseArgs(msg)
	containerName := argString(args, 0)
	if containerName == "" {
		if msg.ID != nil {
			c.SendAck(*msg.ID, ws.ErrorResponse{OK: false, Msg: "Container name required"})
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	raw, err := app.Docker.ContainerInspect(ctx, containerName)
	if err != nil {
		slog.Warn("containerInspect", "err", err, "container", containerName)
		if msg.ID != nil {
			c.SendAck(*msg.ID, ws.ErrorResponse{OK: false, Msg: err.Error()})
		}
		return
	}

	if msg.ID != nil {
		c.SendAck(*msg.ID, map[string]interface{}{
			"ok":          true,
			"inspectData": json.RawMessage(raw),
		})
	}
}

func (app *App) handleGetDockerNetworkList(c *ws.Conn, msg *ws.ClientMessage) {
	if checkLogin(c, msg) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	networks, err := app.Docker.NetworkList(ctx)
	if err != nil {
		slog.Warn("getDockerNetworkList", "err", err)
		networks = nil
	}
	if networks == nil {
		networks = []docker.NetworkSummary{}
	}

	if msg.ID != nil {
		c.SendAck(*msg.ID, map[string]interface{}{
			"ok":          true,
			"networkList": networks,
		})
	}
}

func (app *App) handleGetDockerImageList(c *ws.Conn, msg *ws.ClientMessage) {
	if checkLogin(c, msg) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	images, err := app.Docker.ImageList(ctx)
	if err != nil {
		slog.Warn("getDockerImageList", "err", err)
		images = nil
	}
	if images == nil {
		images = []docker.ImageSummary{}
	}

	if msg.ID != nil {
		c.SendAck(*msg.ID, map[string]interface{}{
			"ok":        true,
			"imageList": images,
		})
	}
}

func (app *App) handleGetDockerVolumeList(c *ws.Conn, msg *ws.ClientMessage) {
	if checkLogin(c, msg) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	volumes, err := app.Docker.VolumeList(ctx)
	if err != nil {
		slog.Warn("getDockerVolumeList", "err", err)
		volumes = nil
	}
	if volumes == nil {
		volumes = []docker.VolumeSummary{}
	}

	if msg.ID != nil {
		c.SendAck(*msg.ID, map[string]interface{}{
			"ok":         true,
			"volumeList": volumes,
		})
	}
}
