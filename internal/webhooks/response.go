package webhooks

import (
	"log/slog"
	"net/http"
	"slices"

	"tally-attio-relay/internal/apperr"
	"tally-attio-relay/internal/crm"
	"tally-attio-relay/internal/pipeline"
)

// Response is the body written when a submission was relayed.
type Response struct {
	OK           bool              `json:"ok"`
	ResponseID   string            `json:"responseId,omitempty"`
	PersonID     crm.Ref           `json:"personId"`
	CompanyID    crm.Ref           `json:"companyId"`
	DealID       crm.Ref           `json:"dealId"`
	DealExisting bool              `json:"dealExisting"`
	Email        string            `json:"email"`
	Domain       string            `json:"domain"`
	PersonLink   pipeline.LinkKind `json:"personLink"`
	CompanyLink  pipeline.LinkKind `json:"companyLink"`
	Trace        []pipeline.Stage  `json:"trace"`
}

// responded appends the final stage without touching res, which may be
// shared between coalesced deliveries.
func responded(res *pipeline.Result) []pipeline.Stage {
	if res == nil {
		return []pipeline.Stage{pipeline.StageResponded}
	}
	return append(slices.Clone(res.Trace), pipeline.StageResponded)
}

func (h *Handler) reportSuccess(w http.ResponseWriter, logger *slog.Logger, responseID string, res *pipeline.Result) {
	trace := responded(res)
	logger.Info("pipeline transition", "stage", string(pipeline.StageResponded), "status", http.StatusOK)

	apperr.WriteJSON(w, logger, http.StatusOK, Response{
		OK:           true,
		ResponseID:   responseID,
		PersonID:     res.Person,
		CompanyID:    res.Company,
		DealID:       res.Deal,
		DealExisting: res.DealExisting,
		Email:        res.Identity.Email,
		Domain:       res.Identity.Domain,
		PersonLink:   res.PersonLink,
		CompanyLink:  res.CompanyLink,
		Trace:        trace,
	})
}

func (h *Handler) reportFailure(w http.ResponseWriter, logger *slog.Logger, err error, res *pipeline.Result) {
	status, body := apperr.Describe(err, h.Config.DebugErrors)
	if res != nil {
		body.Trace = responded(res)
	}

	if status >= http.StatusInternalServerError {
		logger.Error("Webhook failed", "status", status, "code", body.Code, "error", err)
	} else {
		logger.Warn("Webhook rejected", "status", status, "code", body.Code, "error", err)
	}
	logger.Info("pipeline transition", "stage", string(pipeline.StageResponded), "status", status)

	apperr.WriteJSON(w, logger, status, body)
}
