// Package handlers implements the HTTP endpoints.
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/maruel/familyhub/internal/dataset"
	"github.com/maruel/familyhub/internal/merge"
	"github.com/maruel/familyhub/internal/server/dto"
	"github.com/maruel/familyhub/internal/storage/records"
	"github.com/maruel/familyhub/internal/syncsvc"
)

// Handler serves the dataset endpoints.
type Handler struct {
	registry *dataset.Registry
	syncer   syncsvc.Syncer
	port     int
	locks    records.Locker
}

// NewHandler creates a handler writing to the datasets of registry and calling
// syncer after each successful write. port is reported by Ping.
func NewHandler(registry *dataset.Registry, syncer syncsvc.Syncer, port int) *Handler {
	return &Handler{registry: registry, syncer: syncer, port: port}
}

// Ping handles health check requests.
func (h *Handler) Ping(ctx context.Context, req *dto.PingRequest) (*dto.PingResponse, error) {
	return &dto.PingResponse{Ok: true, Port: h.port}, nil
}

// Resolve returns the file backing dataset name. kind names the request field
// the name came from, for the error message.
func (h *Handler) Resolve(kind, name string) (string, error) {
	path, err := h.registry.Resolve(name)
	if err != nil {
		if errors.Is(err, dataset.ErrNotAllowed) {
			return "", dto.NotAllowed(kind, name)
		}
		return "", err
	}
	return path, nil
}

// SyncGranular patches, inserts or deletes one record.
func (h *Handler) SyncGranular(ctx context.Context, req *dto.SyncGranularRequest) (*dto.SyncGranularResponse, error) {
	path, err := h.Resolve("Type", req.Type)
	if err != nil {
		return nil, err
	}
	// A null or absent data is an empty patch.
	var patch *records.Record
	if d := bytes.TrimSpace(req.Data); len(d) != 0 && !bytes.Equal(d, []byte("null")) {
		patch = records.NewRecord()
		if err := json.Unmarshal(req.Data, patch); err != nil {
			return nil, dto.InvalidPayload("Field data must be an object").Wrap(err)
		}
	}

	action, err := h.update(path, func(rows []*records.Record) ([]*records.Record, merge.Action) {
		return merge.Apply(rows, req.ID, patch)
	})
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "Record updated", "type", req.Type, "id", string(req.ID), "action", action)
	synced := h.syncer.Run(ctx, "sync-granular "+req.Type+" "+string(req.ID)+" "+string(action))
	return &dto.SyncGranularResponse{Success: true, Synced: synced}, nil
}

// Save replaces a whole dataset with the request body, whatever its shape.
func (h *Handler) Save(ctx context.Context, req *dto.SaveRequest) (*dto.SaveResponse, error) {
	path, err := h.Resolve("Dataset", req.Dataset)
	if err != nil {
		return nil, err
	}
	value, err := merge.Replace(req.Body)
	if err != nil {
		return nil, dto.InvalidPayload("Invalid JSON")
	}

	unlock := h.locks.Lock(path)
	err = records.SaveRaw(path, value)
	unlock()
	if err != nil {
		return nil, dto.StorageError(err)
	}
	slog.InfoContext(ctx, "Dataset saved", "dataset", req.Dataset, "bytes", len(value))
	synced := h.syncer.Run(ctx, "save "+req.Dataset)
	return &dto.SaveResponse{Saved: true, Synced: synced}, nil
}

// update runs a read-modify-write cycle on the dataset at path while holding
// its lock.
func (h *Handler) update(path string, fn func([]*records.Record) ([]*records.Record, merge.Action)) (merge.Action, error) {
	defer h.locks.Lock(path)()
	rows, err := records.Load(path)
	if err != nil {
		if errors.Is(err, records.ErrCorruptData) {
			return "", dto.CorruptData(err)
		}
		return "", dto.StorageError(err)
	}
	rows, action := fn(rows)
	if err := records.Save(path, rows); err != nil {
		return "", dto.StorageError(err)
	}
	return action, nil
}
