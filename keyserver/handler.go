package keyserver

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/ruteri/seal-session/interfaces"
)

const (
	// RequestIDHeader carries the caller's request id; one is generated when absent.
	RequestIDHeader = "X-Request-Id"

	// maxBodySize is the maximum allowed request body size (1MB).
	maxBodySize = 1024 * 1024
)

// PublicKeyResponse is the body of GET /v1/public_key.
type PublicKeyResponse struct {
	PublicKey []byte `json:"public_key"`
}

// errorResponse is the JSON body of every non-200 reply.
type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id"`
}

// Handler exposes a Service over HTTP.
type Handler struct {
	service *Service
	log     *slog.Logger
}

// NewHandler creates a Handler for service.
func NewHandler(service *Service, log *slog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log,
	}
}

// RegisterRoutes mounts the key-server API on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/v1/fetch_key", h.HandleFetchKey)
	r.Get("/v1/public_key", h.HandlePublicKey)
}

// HandleFetchKey processes a fetch-key request.
//
// URL format: POST /v1/fetch_key
// Request body: interfaces.FetchKeyRequest as JSON
// Response: interfaces.FetchKeyResponse as JSON
//
// Status codes: 400 malformed request, 401 bad signature or certificate,
// 403 expired certificate or policy refusal, 429 rate limited.
func (h *Handler) HandleFetchKey(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get(RequestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	w.Header().Set(RequestIDHeader, requestID)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		h.writeError(w, requestID, &RequestError{StatusCode: http.StatusBadRequest, Err: fmt.Errorf("could not read body: %w", err)})
		return
	}
	if len(body) > maxBodySize {
		h.writeError(w, requestID, &RequestError{StatusCode: http.StatusRequestEntityTooLarge, Err: fmt.Errorf("request body exceeds %d bytes", maxBodySize)})
		return
	}

	var req interfaces.FetchKeyRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.writeError(w, requestID, &RequestError{StatusCode: http.StatusBadRequest, Err: fmt.Errorf("invalid request body: %w", err)})
		return
	}

	resp, err := h.service.FetchKeys(r.Context(), &req, requestID)
	if err != nil {
		h.writeError(w, requestID, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.log.Error("could not encode response", "requestID", requestID, "err", err)
	}
}

// HandlePublicKey returns the master public key.
//
// URL format: GET /v1/public_key
func (h *Handler) HandlePublicKey(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(PublicKeyResponse{PublicKey: h.service.PublicKey()}); err != nil {
		h.log.Error("could not encode response", "err", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, requestID string, err error) {
	status := StatusCode(err)
	if status == http.StatusInternalServerError {
		h.log.Error("fetch key failed", "requestID", requestID, "err", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: err.Error(), RequestID: requestID})
}
