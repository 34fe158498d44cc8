package setup

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"tally-attio-relay/internal/apperr"
	"tally-attio-relay/internal/crm"
)

// Identifier reports which workspace a token belongs to.
type Identifier interface {
	Self(ctx context.Context) (*crm.Workspace, error)
}

// Handler contains dependencies for the setup handler.
type Handler struct {
	Logger   *slog.Logger
	CRM      Identifier
	APIToken string
}

// Status is the body returned by a successful check.
type Status struct {
	OK                bool   `json:"ok"`
	WorkspaceID       string `json:"workspaceId"`
	WorkspaceName     string `json:"workspaceName"`
	Scope             string `json:"scope"`
	ExternalIDAttr    string `json:"externalIdAttribute,omitempty"`
	SignatureRequired bool   `json:"signatureRequired"`
}

// HandleCRMCheck verifies the configured token against the CRM so an
// operator can confirm the relay is wired up before pointing a form at it.
func (h *Handler) HandleCRMCheck(externalIDAttr string, signatureRequired bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := h.Logger.With("request_id", middleware.GetReqID(r.Context()))

		if h.APIToken == "" {
			apperr.HandleError(w, logger, apperr.Config("CRM API token is not configured"), false)
			return
		}

		logger.Info("Checking CRM credentials...")
		ws, err := h.CRM.Self(r.Context())
		if err != nil {
			apperr.HandleError(w, logger, apperr.Upstream("CRM rejected the configured token", err), false)
			return
		}
		if !ws.Active {
			apperr.HandleError(w, logger, apperr.Upstream("CRM token is not active", errors.New("inactive token")), false)
			return
		}

		logger.Info("✅ CRM token verified", "workspace_id", ws.WorkspaceID, "workspace", ws.WorkspaceName)
		apperr.WriteJSON(w, logger, http.StatusOK, Status{
			OK:                true,
			WorkspaceID:       ws.WorkspaceID,
			WorkspaceName:     ws.WorkspaceName,
			Scope:             ws.Scope,
			ExternalIDAttr:    externalIDAttr,
			SignatureRequired: signatureRequired,
		})
	}
}
