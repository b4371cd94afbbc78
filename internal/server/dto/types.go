package dto

import (
	"bytes"
	"encoding/json"
)

// Validatable is implemented by request types that can validate their fields.
// The Wrap function in handler_wrapper.go uses this interface as a type
// constraint to ensure all request types provide validation.
type Validatable interface {
	Validate() error
}

// PingRequest is a request to the health check.
type PingRequest struct{}

// Validate implements Validatable.
func (r *PingRequest) Validate() error {
	return nil
}

// PingResponse is the health check response.
type PingResponse struct {
	Ok   bool `json:"ok"`
	Port int  `json:"port"`
}

// SyncGranularRequest patches or deletes a single record.
type SyncGranularRequest struct {
	// Type is the dataset name.
	Type string `json:"type"`
	// ID identifies the record. Any JSON scalar except null.
	ID json.RawMessage `json:"id"`
	// Data is the patch. A truthy _deleted field deletes the record.
	Data json.RawMessage `json:"data"`
}

// Validate implements Validatable.
func (r *SyncGranularRequest) Validate() error {
	if r.Type == "" {
		return InvalidPayload("Missing required field: type")
	}
	if isNull(r.ID) {
		return InvalidPayload("Missing required field: id")
	}
	switch bytes.TrimSpace(r.ID)[0] {
	case '{', '[':
		return InvalidPayload("Field id must be a string, number or boolean")
	}
	if !isNull(r.Data) && bytes.TrimSpace(r.Data)[0] != '{' {
		return InvalidPayload("Field data must be an object")
	}
	return nil
}

// SyncGranularResponse is the response to a granular sync.
type SyncGranularResponse struct {
	Success bool `json:"success"`
	Synced  bool `json:"synced"`
}

// SaveRequest replaces a whole dataset.
type SaveRequest struct {
	Dataset string
	Body    json.RawMessage
}

// SaveResponse is the response to a bulk save.
type SaveResponse struct {
	Saved  bool `json:"saved"`
	Synced bool `json:"synced"`
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}
