package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// Ref points at a CRM record. The zero value means "not resolved".
type Ref struct {
	ID string
}

// Valid reports whether the ref carries a record id.
func (r Ref) Valid() bool { return r.ID != "" }

// MarshalJSON writes the id, or null for an unresolved ref.
func (r Ref) MarshalJSON() ([]byte, error) {
	if !r.Valid() {
		return []byte("null"), nil
	}
	return json.Marshal(r.ID)
}

// DealInput describes a deal to create. Person and company are linked by id
// when the id is set, otherwise by email and domain.
type DealInput struct {
	Name           string
	Stage          string
	Owner          string
	PersonID       string
	PersonEmail    string
	CompanyID      string
	CompanyDomain  string
	ExternalIDAttr string
	ExternalID     string
}

// weakLinked reports whether any association goes by natural key, the only
// part of a deal body that differs between encodings.
func (in DealInput) weakLinked() bool {
	return in.PersonID == "" || (in.CompanyID == "" && in.CompanyDomain != "")
}

// Workspace is the token introspection result.
type Workspace struct {
	Active        bool   `json:"active"`
	WorkspaceID   string `json:"workspace_id"`
	WorkspaceName string `json:"workspace_name"`
	WorkspaceSlug string `json:"workspace_slug"`
	Scope         string `json:"scope"`
}

// Client talks to the CRM's v2 REST API with a static bearer token.
type Client struct {
	HTTPClient *http.Client
	baseURL    string
	token      string
	logger     *slog.Logger
}

// NewClient creates a new CRM client.
func NewClient(baseURL, token string, logger *slog.Logger) *Client {
	return &Client{
		HTTPClient: &http.Client{},
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		logger:     logger,
	}
}

type record struct {
	ID struct {
		WorkspaceID string `json:"workspace_id"`
		ObjectID    string `json:"object_id"`
		RecordID    string `json:"record_id"`
	} `json:"id"`
	WebURL string `json:"web_url"`
}

type recordEnvelope struct {
	Data record `json:"data"`
}

type recordsEnvelope struct {
	Data []record `json:"data"`
}

// UpsertCompany creates or updates the company matched by domain.
func (c *Client) UpsertCompany(ctx context.Context, name, domain string) (Ref, error) {
	return c.assert(ctx, "upsert company", ObjectCompanies, AttrDomains, func(enc Encoding) map[string]any {
		values := map[string]any{AttrDomains: domainValues(enc, domain)}
		if name != "" {
			values[AttrName] = name
		}
		return values
	})
}

// UpsertPerson creates or updates the person matched by email.
func (c *Client) UpsertPerson(ctx context.Context, email, firstName, lastName string) (Ref, error) {
	return c.assert(ctx, "upsert person", ObjectPeople, AttrEmailAddresses, func(enc Encoding) map[string]any {
		return map[string]any{
			AttrEmailAddresses: emailValues(enc, email),
			AttrName:           personName(firstName, lastName),
		}
	})
}

// FindDealByExternalID looks up a deal whose attribute equals externalID.
func (c *Client) FindDealByExternalID(ctx context.Context, attribute, externalID string) (Ref, bool, error) {
	body := map[string]any{
		"filter": map[string]any{attribute: externalID},
		"limit":  1,
	}
	var out recordsEnvelope
	path := fmt.Sprintf("/v2/objects/%s/records/query", ObjectDeals)
	if err := c.do(ctx, http.MethodPost, path, nil, body, &out); err != nil {
		return Ref{}, false, &UpstreamError{Op: "find deal", Err: err}
	}
	if len(out.Data) == 0 {
		return Ref{}, false, nil
	}
	return Ref{ID: out.Data[0].ID.RecordID}, true, nil
}

// CreateDeal creates a new deal record.
func (c *Client) CreateDeal(ctx context.Context, in DealInput) (Ref, error) {
	path := fmt.Sprintf("/v2/objects/%s/records", ObjectDeals)
	var ref Ref
	err := c.withFallback(ctx, "create deal", in.weakLinked(), func(enc Encoding) error {
		values := map[string]any{
			AttrName:             in.Name,
			AttrStage:            in.Stage,
			AttrAssociatedPeople: personLink(enc, in.PersonID, in.PersonEmail),
		}
		if link := companyLink(enc, in.CompanyID, in.CompanyDomain); link != nil {
			values[AttrAssociatedCompany] = link
		}
		if in.Owner != "" {
			values[AttrOwner] = in.Owner
		}
		if in.ExternalIDAttr != "" && in.ExternalID != "" {
			values[in.ExternalIDAttr] = in.ExternalID
		}

		var out recordEnvelope
		if err := c.do(ctx, http.MethodPost, path, nil, map[string]any{"data": map[string]any{"values": values}}, &out); err != nil {
			return err
		}
		ref = Ref{ID: out.Data.ID.RecordID}
		return nil
	})
	return ref, err
}

// Self returns the workspace the token belongs to.
func (c *Client) Self(ctx context.Context) (*Workspace, error) {
	var ws Workspace
	if err := c.do(ctx, http.MethodGet, "/v2/self", nil, nil, &ws); err != nil {
		return nil, &UpstreamError{Op: "identify token", Err: err}
	}
	return &ws, nil
}

// assert is the CRM's upsert: create the record, or update the one whose
// matching attribute already holds the value.
func (c *Client) assert(ctx context.Context, op, object, matching string, build func(Encoding) map[string]any) (Ref, error) {
	path := fmt.Sprintf("/v2/objects/%s/records", object)
	query := url.Values{"matching_attribute": {matching}}

	var ref Ref
	err := c.withFallback(ctx, op, true, func(enc Encoding) error {
		var out recordEnvelope
		body := map[string]any{"data": map[string]any{"values": build(enc)}}
		if err := c.do(ctx, http.MethodPut, path, query, body, &out); err != nil {
			return err
		}
		ref = Ref{ID: out.Data.ID.RecordID}
		return nil
	})
	return ref, err
}

// withFallback runs attempt with the structured encoding and, only when the
// CRM rejects the payload shape, once more with the plain encoding.
// varies is false when both encodings would produce the same body.
func (c *Client) withFallback(ctx context.Context, op string, varies bool, attempt func(Encoding) error) error {
	err := attempt(EncodingStructured)

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Schema() {
		if varies {
			c.logger.WarnContext(ctx, "CRM rejected payload shape, retrying with alternate encoding",
				"op", op,
				"encoding", EncodingPlain.String(),
				"error", err,
			)
			err = attempt(EncodingPlain)
		}
		if errors.As(err, &apiErr) && apiErr.Schema() {
			err = &SchemaError{Err: err}
		}
	}

	if err != nil {
		return &UpstreamError{Op: op, Err: err}
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("error creating payload: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("error calling %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{}
		if jsonErr := json.Unmarshal(respBody, apiErr); jsonErr != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(respBody))
		}
		apiErr.StatusCode = resp.StatusCode
		return apiErr
	}

	c.logger.DebugContext(ctx, "CRM call succeeded", "method", method, "path", path, "status", resp.StatusCode)

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("error parsing response: %w", err)
	}
	return nil
}
