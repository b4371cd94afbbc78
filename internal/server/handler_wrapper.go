// Provides middleware for standardizing HTTP handlers.

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/maruel/familyhub/internal/server/dto"
	"github.com/maruel/familyhub/internal/server/handlers"
	"github.com/maruel/familyhub/internal/server/reqctx"
)

// readBody reads the request body with size limit.
// Returns false if an error occurred and was written to the response.
func readBody(ctx context.Context, w http.ResponseWriter, r *http.Request, maxBytes int64) ([]byte, bool) {
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
	body, err := io.ReadAll(r.Body)
	if err2 := r.Body.Close(); err == nil {
		err = err2
	}
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(ctx, w, dto.PayloadTooLarge(maxBytesErr.Limit))
			return nil, false
		}
		slog.ErrorContext(ctx, "Failed to read request body", "err", err)
		writeError(ctx, w, dto.InvalidPayload("Failed to read request body"))
		return nil, false
	}
	return body, true
}

// Wrap wraps a handler function to work as an http.Handler.
// The function must have signature: func(context.Context, *In) (*Out, error)
// where In can be unmarshalled from JSON and Out is a struct.
// *In must implement dto.Validatable.
//
// Example:
//
//	func (h *Handler) SyncGranular(ctx context.Context, req *dto.SyncGranularRequest) (*dto.SyncGranularResponse, error)
func Wrap[In any, PtrIn interface {
	*In
	dto.Validatable
}, Out any](fn func(context.Context, PtrIn) (*Out, error), cfg *Config) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		body, ok := readBody(ctx, w, r, cfg.MaxBodyBytes)
		if !ok {
			return
		}
		input := new(In)
		if len(bytes.TrimSpace(body)) > 0 {
			if err := json.Unmarshal(body, input); err != nil {
				writeError(ctx, w, dto.InvalidPayload("Invalid JSON: "+err.Error()))
				return
			}
		}
		if err := PtrIn(input).Validate(); err != nil {
			writeError(ctx, w, err)
			return
		}
		output, err := fn(ctx, PtrIn(input))
		writeJSONResponse(ctx, w, output, err)
	})
}

// wrapSave serves POST /save/<dataset>.
//
// The dataset is the raw rest of the path with every slash removed, so
// "/save//compras" and "/save/com/pras" both name "compras". It is checked
// before the body is read.
func wrapSave(h *handlers.Handler, cfg *Config) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		name := strings.ReplaceAll(strings.TrimPrefix(r.URL.Path, savePrefix), "/", "")
		if _, err := h.Resolve("Dataset", name); err != nil {
			writeError(ctx, w, err)
			return
		}
		body, ok := readBody(ctx, w, r, cfg.MaxBodyBytes)
		if !ok {
			return
		}
		output, err := h.Save(ctx, &dto.SaveRequest{Dataset: name, Body: body})
		writeJSONResponse(ctx, w, output, err)
	})
}

// writeJSONResponse writes a JSON response or error response.
func writeJSONResponse[Out any](ctx context.Context, w http.ResponseWriter, output *Out, err error) {
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(output); err != nil {
		slog.ErrorContext(ctx, "Failed to encode response", "err", err)
	}
}

// writeError writes err as a JSON error response. Errors not implementing
// dto.ErrorWithStatus become 500s.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	statusCode := http.StatusInternalServerError
	resp := dto.ErrorResponse{Error: "Internal error", Code: dto.ErrorCodeInternal}

	var ewsErr dto.ErrorWithStatus
	if errors.As(err, &ewsErr) {
		statusCode = ewsErr.StatusCode()
		resp.Error = ewsErr.Error()
		resp.Code = ewsErr.Code()
		resp.Details = ewsErr.Details()
	}
	reqID := reqctx.RequestID(ctx).String()
	if statusCode >= http.StatusInternalServerError {
		slog.ErrorContext(ctx, "Handler error", "req", reqID, "err", err, "statusCode", statusCode, "code", resp.Code)
	} else {
		slog.WarnContext(ctx, "Request rejected", "req", reqID, "err", err, "statusCode", statusCode, "code", resp.Code)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(ctx, "Failed to encode error response", "err", err)
	}
}
