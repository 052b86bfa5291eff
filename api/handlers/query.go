package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// QueryService answers one natural-language question.
type QueryService interface {
	Handle(ctx context.Context, question string) (string, error)
}

// QueryRequest is the incoming request body.
type QueryRequest struct {
	Message string `json:"message"`
}

// QueryResponse is the response body. Error is set only for internal
// failures; data-level failures come back as prose in Response.
type QueryResponse struct {
	Response string `json:"response,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Query handles POST /query.
type Query struct {
	log     *slog.Logger
	svc     QueryService
	timeout time.Duration
}

// NewQuery creates the query handler. The timeout bounds one full pipeline
// run, including every oracle and database call it makes.
func NewQuery(log *slog.Logger, svc QueryService, timeout time.Duration) *Query {
	return &Query{
		log:     log,
		svc:     svc,
		timeout: timeout,
	}
}

func (h *Query) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		http.Error(w, "Message is required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	answer, err := h.svc.Handle(ctx, req.Message)
	if err != nil {
		h.log.Error("query failed", "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(QueryResponse{Error: "Failed to answer the question"})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(QueryResponse{Response: answer})
}
