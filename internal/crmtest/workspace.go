// Package crmtest serves an in-memory CRM workspace over HTTP for tests.
package crmtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Shape is how a multi-valued attribute was written in a request.
type Shape int

const (
	ShapeAny Shape = iota
	ShapeObjects
	ShapeStrings
)

// Link is one association stored on a deal.
type Link struct {
	RecordID string
	Email    string
	Domain   string
}

// Record is a stored CRM record.
type Record struct {
	ID     string
	Values map[string]any
}

// Deal is a stored deal with its parsed associations.
type Deal struct {
	Record
	People  []Link
	Company *Link
}

// Workspace is a fake CRM. Configure its exported fields before serving requests.
type Workspace struct {
	Token string
	// Accept restricts the accepted shape of email/domain lists; anything else gets a 400.
	Accept Shape
	// Fail forces an HTTP status for every call touching an object slug.
	Fail map[string]int

	mu        sync.Mutex
	people    map[string]*Record
	companies map[string]*Record
	deals     []*Deal
	calls     map[string]int
}

// NewWorkspace creates an empty workspace that accepts token.
func NewWorkspace(token string) *Workspace {
	return &Workspace{
		Token:     token,
		Fail:      map[string]int{},
		people:    map[string]*Record{},
		companies: map[string]*Record{},
		calls:     map[string]int{},
	}
}

// Serve starts an httptest server for the workspace. Callers close it.
func (ws *Workspace) Serve() *httptest.Server {
	return httptest.NewServer(ws.Router())
}

// Router exposes the fake API routes.
func (ws *Workspace) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(ws.authorize)
	r.Get("/v2/self", ws.handleSelf)
	r.Put("/v2/objects/{object}/records", ws.handleAssert)
	r.Post("/v2/objects/{object}/records", ws.handleCreate)
	r.Post("/v2/objects/{object}/records/query", ws.handleQuery)
	return r
}

// Calls returns how many requests hit "METHOD object", e.g. "PUT companies".
func (ws *Workspace) Calls(key string) int {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.calls[key]
}

// TotalCalls returns the number of requests received.
func (ws *Workspace) TotalCalls() int {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	total := 0
	for _, n := range ws.calls {
		total += n
	}
	return total
}

// Person returns the person stored under email.
func (ws *Workspace) Person(email string) (*Record, bool) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	rec, ok := ws.people[strings.ToLower(email)]
	return rec, ok
}

// Company returns the company stored under domain.
func (ws *Workspace) Company(domain string) (*Record, bool) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	rec, ok := ws.companies[strings.ToLower(domain)]
	return rec, ok
}

// Deals returns a copy of the stored deals.
func (ws *Workspace) Deals() []Deal {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	out := make([]Deal, 0, len(ws.deals))
	for _, d := range ws.deals {
		out = append(out, *d)
	}
	return out
}

// AddDeal seeds a deal carrying attribute=value and returns its id.
func (ws *Workspace) AddDeal(attribute, value string) string {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	d := &Deal{Record: Record{ID: uuid.NewString(), Values: map[string]any{attribute: value}}}
	ws.deals = append(ws.deals, d)
	return d.ID
}

func (ws *Workspace) authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+ws.Token {
			writeError(w, http.StatusUnauthorized, "auth_error", "not_authorized", "invalid bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (ws *Workspace) count(r *http.Request, object string) (forced int) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	key := r.Method + " " + object
	if strings.HasSuffix(r.URL.Path, "/query") {
		key += " query"
	}
	ws.calls[key]++
	return ws.Fail[object]
}

func (ws *Workspace) handleSelf(w http.ResponseWriter, r *http.Request) {
	ws.count(r, "self")
	writeJSON(w, http.StatusOK, map[string]any{
		"active":         true,
		"workspace_id":   "ws-test",
		"workspace_name": "Test Workspace",
		"workspace_slug": "test",
		"scope":          "record_permission:read-write",
	})
}

type valuesBody struct {
	Data struct {
		Values map[string]any `json:"values"`
	} `json:"data"`
}

func (ws *Workspace) handleAssert(w http.ResponseWriter, r *http.Request) {
	object := chi.URLParam(r, "object")
	if status := ws.count(r, object); status != 0 {
		writeError(w, status, "api_error", "forced_failure", "forced failure")
		return
	}

	var body valuesBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_error", "invalid_json", err.Error())
		return
	}

	matching := r.URL.Query().Get("matching_attribute")
	var store map[string]*Record
	var nested string
	switch {
	case object == "people" && matching == "email_addresses":
		store, nested = ws.people, "email_address"
	case object == "companies" && matching == "domains":
		store, nested = ws.companies, "domain"
	default:
		writeError(w, http.StatusBadRequest, "invalid_request_error", "unsupported_matching_attribute", "unsupported matching attribute")
		return
	}

	keys, err := ws.multi(body.Data.Values[matching], nested)
	if err != nil || len(keys) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request_error", "validation_type", fmt.Sprintf("invalid value for %q", matching))
		return
	}

	ws.mu.Lock()
	key := strings.ToLower(keys[0])
	rec, ok := store[key]
	if !ok {
		rec = &Record{ID: uuid.NewString(), Values: map[string]any{}}
		store[key] = rec
	}
	for k, v := range body.Data.Values {
		rec.Values[k] = v
	}
	ws.mu.Unlock()

	writeRecord(w, http.StatusOK, object, rec.ID)
}

func (ws *Workspace) handleCreate(w http.ResponseWriter, r *http.Request) {
	object := chi.URLParam(r, "object")
	if status := ws.count(r, object); status != 0 {
		writeError(w, status, "api_error", "forced_failure", "forced failure")
		return
	}
	if object != "deals" {
		writeError(w, http.StatusNotFound, "invalid_request_error", "not_found", "unknown object")
		return
	}

	var body valuesBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_error", "invalid_json", err.Error())
		return
	}
	values := body.Data.Values

	deal := &Deal{Record: Record{ID: uuid.NewString(), Values: values}}
	people, err := ws.links(values["associated_people"], "email_addresses", "email_address")
	if err != nil || len(people) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request_error", "validation_type", "invalid associated_people")
		return
	}
	deal.People = people
	if raw, ok := values["associated_company"]; ok {
		companies, err := ws.links(raw, "domains", "domain")
		if err != nil || len(companies) != 1 {
			writeError(w, http.StatusBadRequest, "invalid_request_error", "validation_type", "invalid associated_company")
			return
		}
		deal.Company = &companies[0]
	}

	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ext, ok := values["external_id"].(string); ok && ext != "" {
		for _, d := range ws.deals {
			if d.Values["external_id"] == ext {
				writeError(w, http.StatusConflict, "invalid_request_error", "uniqueness_conflict", "external_id already exists")
				return
			}
		}
	}
	ws.deals = append(ws.deals, deal)
	writeRecord(w, http.StatusOK, object, deal.ID)
}

func (ws *Workspace) handleQuery(w http.ResponseWriter, r *http.Request) {
	object := chi.URLParam(r, "object")
	if status := ws.count(r, object); status != 0 {
		writeError(w, status, "api_error", "forced_failure", "forced failure")
		return
	}

	var body struct {
		Filter map[string]any `json:"filter"`
		Limit  int            `json:"limit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_error", "invalid_json", err.Error())
		return
	}

	ws.mu.Lock()
	var matches []map[string]any
	for _, d := range ws.deals {
		if matchesFilter(d.Values, body.Filter) {
			matches = append(matches, recordJSON(object, d.ID))
		}
		if body.Limit > 0 && len(matches) == body.Limit {
			break
		}
	}
	ws.mu.Unlock()

	if matches == nil {
		matches = []map[string]any{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": matches})
}

// multi reads a multi-valued attribute written as strings or as objects
// carrying nested, enforcing the configured shape.
func (ws *Workspace) multi(raw any, nested string) ([]string, error) {
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("expected a list")
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case string:
			if ws.Accept == ShapeObjects {
				return nil, fmt.Errorf("bare strings are not accepted")
			}
			out = append(out, v)
		case map[string]any:
			if ws.Accept == ShapeStrings {
				return nil, fmt.Errorf("objects are not accepted")
			}
			s, ok := v[nested].(string)
			if !ok {
				return nil, fmt.Errorf("missing %q", nested)
			}
			out = append(out, s)
		default:
			return nil, fmt.Errorf("unsupported item %T", item)
		}
	}
	return out, nil
}

func (ws *Workspace) links(raw any, attr, nested string) ([]Link, error) {
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("expected a list")
	}
	out := make([]Link, 0, len(items))
	for _, item := range items {
		ref, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("expected an object")
		}
		if id, ok := ref["target_record_id"].(string); ok && id != "" {
			out = append(out, Link{RecordID: id})
			continue
		}
		keys, err := ws.multi(ref[attr], nested)
		if err != nil || len(keys) == 0 {
			return nil, fmt.Errorf("reference without id or %s", attr)
		}
		if attr == "domains" {
			out = append(out, Link{Domain: keys[0]})
		} else {
			out = append(out, Link{Email: keys[0]})
		}
	}
	return out, nil
}

func matchesFilter(values, filter map[string]any) bool {
	for k, want := range filter {
		if values[k] != want {
			return false
		}
	}
	return true
}

func recordJSON(object, id string) map[string]any {
	return map[string]any{
		"id": map[string]any{
			"workspace_id": "ws-test",
			"object_id":    object,
			"record_id":    id,
		},
		"web_url": "https://crm.test/" + object + "/" + id,
	}
}

func writeRecord(w http.ResponseWriter, status int, object, id string) {
	writeJSON(w, status, map[string]any{"data": recordJSON(object, id)})
}

func writeError(w http.ResponseWriter, status int, typ, code, message string) {
	writeJSON(w, status, map[string]any{
		"status_code": status,
		"type":        typ,
		"code":        code,
		"message":     message,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
