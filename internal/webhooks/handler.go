package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"tally-attio-relay/internal/apperr"
	"tally-attio-relay/internal/config"
	"tally-attio-relay/internal/contextkeys"
	"tally-attio-relay/internal/models"
	"tally-attio-relay/internal/pipeline"
)

// Runner processes one submission.
type Runner interface {
	Run(ctx context.Context, sub *models.Submission) (*pipeline.Result, error)
}

// Handler contains dependencies for the webhook HTTP handlers.
type Handler struct {
	Logger   *slog.Logger
	Pipeline Runner
	Config   *config.Config
}

// NewHandler creates a new instance of the webhook Handler.
func NewHandler(logger *slog.Logger, runner Runner, cfg *config.Config) *Handler {
	return &Handler{
		Logger:   logger,
		Pipeline: runner,
		Config:   cfg,
	}
}

// HandleWebhook relays one form submission into the CRM and reports the outcome.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	logger := h.Logger.With("request_id", middleware.GetReqID(r.Context()))

	if r.Method != http.MethodPost {
		h.MethodNotAllowed(w, r)
		return
	}

	if h.Config.APIToken == "" {
		h.reportFailure(w, logger, apperr.Config("CRM API token is not configured"), nil)
		return
	}

	bodyBytes, ok := contextkeys.RequestBody(r.Context())
	if !ok {
		var err error
		if bodyBytes, err = io.ReadAll(r.Body); err != nil {
			h.reportFailure(w, logger, apperr.Input("cannot read request body", err), nil)
			return
		}
	}

	var payload models.WebhookPayload
	if err := json.Unmarshal(bodyBytes, &payload); err != nil {
		h.reportFailure(w, logger, apperr.Input("invalid request body", err), nil)
		return
	}
	if payload.Data == nil || payload.Data.Fields == nil {
		h.reportFailure(w, logger, apperr.Input("data.fields is required", errors.New("missing data.fields")), nil)
		return
	}

	sub := payload.Data
	logger = logger.With("response_id", sub.ExternalID(), "form_id", sub.FormID)
	logger.Info("Received form submission", "event_id", payload.EventID, "fields", len(sub.Fields))

	res, err := h.Pipeline.Run(r.Context(), sub)
	if err != nil {
		h.reportFailure(w, logger, err, res)
		return
	}
	h.reportSuccess(w, logger, sub.ExternalID(), res)
}

// MethodNotAllowed answers any method other than POST.
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Allow", http.MethodPost)
	apperr.HandleError(w, h.Logger, &apperr.Error{Kind: apperr.KindMethod, Message: r.Method + " is not allowed"}, false)
}

// HealthCheck handler for monitoring.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	apperr.WriteJSON(w, h.Logger, http.StatusOK, map[string]string{"status": "ok"})
}
