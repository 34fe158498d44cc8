package pipeline

import (
	"context"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"tally-attio-relay/internal/apperr"
	"tally-attio-relay/internal/config"
	"tally-attio-relay/internal/crm"
	"tally-attio-relay/internal/intake"
	"tally-attio-relay/internal/models"
)

// Stage is a step of the per-request state machine.
type Stage string

const (
	StageValidated       Stage = "validated"
	StageCompanyResolved Stage = "company_resolved"
	StagePersonResolved  Stage = "person_resolved"
	StageDealLinked      Stage = "deal_linked"
	StageResponded       Stage = "responded"

	StageRejectedInput         Stage = "rejected_input"
	StageUpstreamPersonFailure Stage = "upstream_person_failure"
	StageUpstreamDealFailure   Stage = "upstream_deal_failure"
)

// CRM is the subset of the CRM client the pipeline drives.
type CRM interface {
	UpsertCompany(ctx context.Context, name, domain string) (crm.Ref, error)
	UpsertPerson(ctx context.Context, email, firstName, lastName string) (crm.Ref, error)
	FindDealByExternalID(ctx context.Context, attribute, externalID string) (crm.Ref, bool, error)
	CreateDeal(ctx context.Context, in crm.DealInput) (crm.Ref, error)
}

// Options configures the deal written for each submission.
type Options struct {
	DealStage      string
	DealOwner      string
	ExternalIDAttr string
}

// Result is what one run produced. It is returned on failure too,
// carrying the stages reached so far.
type Result struct {
	Identity     intake.Identity
	Person       crm.Ref
	Company      crm.Ref
	Deal         crm.Ref
	DealExisting bool
	PersonLink   LinkKind
	CompanyLink  LinkKind
	Trace        []Stage
}

// Pipeline turns a form submission into a person, an optional company and a deal.
type Pipeline struct {
	crm        CRM
	extractor  *intake.Extractor
	normalizer *intake.Normalizer
	linker     *Linker
	opts       Options
	logger     *slog.Logger
	inflight   singleflight.Group
}

// New creates a Pipeline.
func New(client CRM, extractor *intake.Extractor, normalizer *intake.Normalizer, opts Options, logger *slog.Logger) *Pipeline {
	if opts.DealStage == "" {
		opts.DealStage = config.DefaultDealStage
	}
	return &Pipeline{
		crm:        client,
		extractor:  extractor,
		normalizer: normalizer,
		linker:     NewLinker(client, opts.ExternalIDAttr, logger),
		opts:       opts,
		logger:     logger,
	}
}

// Run processes one submission. Deliveries of the same response that are in
// flight at the same time share a single run.
//
// Once started, a run is not cancelled by its caller going away: a half-done
// run would leave a person without a deal, and a shared run must not fail the
// other deliveries waiting on it. Context values are kept.
func (p *Pipeline) Run(ctx context.Context, sub *models.Submission) (*Result, error) {
	ctx = context.WithoutCancel(ctx)
	key := sub.ExternalID()
	if key == "" {
		return p.run(ctx, sub)
	}

	v, err, shared := p.inflight.Do(key, func() (any, error) {
		return p.run(ctx, sub)
	})
	if shared {
		p.logger.InfoContext(ctx, "Concurrent delivery coalesced", "external_id", key)
	}
	return v.(*Result), err
}

type run struct {
	ctx    context.Context
	logger *slog.Logger
	result *Result
}

func (r *run) transition(stage Stage, attrs ...any) {
	r.result.Trace = append(r.result.Trace, stage)
	level := slog.LevelInfo
	switch stage {
	case StageRejectedInput:
		level = slog.LevelWarn
	case StageUpstreamPersonFailure, StageUpstreamDealFailure:
		level = slog.LevelError
	}
	r.logger.Log(r.ctx, level, "pipeline transition", append([]any{"stage", string(stage)}, attrs...)...)
}

func (p *Pipeline) run(ctx context.Context, sub *models.Submission) (*Result, error) {
	r := &run{
		ctx:    ctx,
		logger: p.logger.With("external_id", sub.ExternalID()),
		result: &Result{PersonLink: LinkNone, CompanyLink: LinkNone},
	}

	id, err := p.normalizer.Normalize(p.extractor.Extract(sub.Fields))
	if err != nil {
		r.transition(StageRejectedInput, "error", err)
		return r.result, apperr.Input(err.Error(), err)
	}
	r.result.Identity = id
	r.transition(StageValidated, "email", id.Email, "domain", id.Domain)

	if id.Domain != "" {
		ref, err := p.crm.UpsertCompany(ctx, id.CompanyDisplayName(), id.Domain)
		if err != nil {
			r.logger.WarnContext(ctx, "Company upsert failed, continuing without company reference", "domain", id.Domain, "error", err)
		} else {
			r.result.Company = ref
		}
	}
	r.transition(StageCompanyResolved, "company_skipped", id.Domain == "", "company_id", r.result.Company.ID)

	person, err := p.crm.UpsertPerson(ctx, id.Email, id.FirstName, id.LastName)
	if err != nil {
		r.transition(StageUpstreamPersonFailure, "error", err)
		return r.result, apperr.Upstream("person upsert failed", err)
	}
	r.result.Person = person
	r.transition(StagePersonResolved, "person_id", person.ID)

	deal, err := p.linker.CreateDeal(ctx, DealRequest{
		Name:       DealName(id),
		Stage:      p.opts.DealStage,
		Owner:      p.opts.DealOwner,
		Person:     person,
		Email:      id.Email,
		Company:    r.result.Company,
		Domain:     id.Domain,
		ExternalID: sub.ExternalID(),
	})
	if err != nil {
		r.transition(StageUpstreamDealFailure, "error", err)
		return r.result, apperr.Upstream("deal creation failed", err)
	}
	r.result.Deal = deal.Ref
	r.result.DealExisting = deal.Existing
	r.result.PersonLink = deal.PersonLink
	r.result.CompanyLink = deal.CompanyLink
	r.transition(StageDealLinked, "deal_id", deal.Ref.ID, "existing", deal.Existing,
		"person_link", string(deal.PersonLink), "company_link", string(deal.CompanyLink))

	return r.result, nil
}
