package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"tally-attio-relay/internal/crm"
	"tally-attio-relay/internal/intake"
)

// LinkKind records how a deal association was expressed.
type LinkKind string

const (
	LinkID     LinkKind = "id"
	LinkEmail  LinkKind = "email"
	LinkDomain LinkKind = "domain"
	LinkNone   LinkKind = "none"
)

// DealRequest is everything needed to create one deal.
type DealRequest struct {
	Name       string
	Stage      string
	Owner      string
	Person     crm.Ref
	Email      string
	Company    crm.Ref
	Domain     string
	ExternalID string
}

// LinkedDeal is the outcome of CreateDeal.
type LinkedDeal struct {
	Ref         crm.Ref
	Existing    bool
	PersonLink  LinkKind
	CompanyLink LinkKind
}

// Linker creates deals associated with resolved people and companies.
type Linker struct {
	crm            CRM
	externalIDAttr string
	logger         *slog.Logger
}

// NewLinker creates a Linker. An empty externalIDAttr disables replay protection.
func NewLinker(client CRM, externalIDAttr string, logger *slog.Logger) *Linker {
	return &Linker{crm: client, externalIDAttr: externalIDAttr, logger: logger}
}

// CreateDeal returns the deal already carrying req.ExternalID, or creates a new one.
// Associations use record ids when resolved and fall back to email and domain.
func (l *Linker) CreateDeal(ctx context.Context, req DealRequest) (LinkedDeal, error) {
	if l.externalIDAttr != "" && req.ExternalID != "" {
		ref, found, err := l.crm.FindDealByExternalID(ctx, l.externalIDAttr, req.ExternalID)
		if err != nil {
			return LinkedDeal{}, err
		}
		if found {
			l.logger.InfoContext(ctx, "Deal already exists for this submission", "deal_id", ref.ID, "external_id", req.ExternalID)
			return LinkedDeal{Ref: ref, Existing: true, PersonLink: LinkNone, CompanyLink: LinkNone}, nil
		}
	}

	out := LinkedDeal{PersonLink: LinkEmail, CompanyLink: LinkNone}
	in := crm.DealInput{
		Name:        req.Name,
		Stage:       req.Stage,
		Owner:       req.Owner,
		PersonEmail: req.Email,
	}
	if req.Person.Valid() {
		in.PersonID, out.PersonLink = req.Person.ID, LinkID
	}
	switch {
	case req.Company.Valid():
		in.CompanyID, out.CompanyLink = req.Company.ID, LinkID
	case req.Domain != "":
		in.CompanyDomain, out.CompanyLink = req.Domain, LinkDomain
	}
	if l.externalIDAttr != "" {
		in.ExternalIDAttr, in.ExternalID = l.externalIDAttr, req.ExternalID
	}

	ref, err := l.crm.CreateDeal(ctx, in)
	if err != nil {
		if existing, ok := l.recoverConflict(ctx, req, err); ok {
			return existing, nil
		}
		return LinkedDeal{}, err
	}
	out.Ref = ref
	return out, nil
}

// recoverConflict handles another instance creating the deal between our
// lookup and our create: the CRM rejects the duplicate external id, and the
// deal it already holds is returned instead.
func (l *Linker) recoverConflict(ctx context.Context, req DealRequest, err error) (LinkedDeal, bool) {
	var apiErr *crm.APIError
	if l.externalIDAttr == "" || req.ExternalID == "" || !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusConflict {
		return LinkedDeal{}, false
	}

	l.logger.WarnContext(ctx, "Deal create conflicted, searching for the existing deal", "external_id", req.ExternalID)
	ref, found, findErr := l.crm.FindDealByExternalID(ctx, l.externalIDAttr, req.ExternalID)
	if findErr != nil || !found {
		l.logger.ErrorContext(ctx, "Conflicting deal could not be found", "external_id", req.ExternalID, "error", findErr)
		return LinkedDeal{}, false
	}
	return LinkedDeal{Ref: ref, Existing: true, PersonLink: LinkNone, CompanyLink: LinkNone}, true
}

// DealName builds "Inbound — {person} @ {company}", dropping the company part when there is none.
func DealName(id intake.Identity) string {
	name := "Inbound — " + id.DisplayName()
	if company := id.CompanyDisplayName(); company != "" {
		name += " @ " + company
	}
	return name
}
