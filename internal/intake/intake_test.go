package intake

import (
	"errors"
	"reflect"
	"testing"

	"tally-attio-relay/internal/config"
	"tally-attio-relay/internal/models"
)

func TestValueLookup(t *testing.T) {
	fields := []models.Field{
		{Label: "Email", Value: models.Text(" first@acme.io ")},
		{Label: "EMAIL", Value: models.Text("second@acme.io")},
		{Label: "Interests", Value: models.Choices("CRM", "Billing")},
		{Label: "Team size", Value: models.Text("11-50")},
	}

	testCases := []struct {
		name       string
		label      string
		wantValue  string
		wantValues []string
	}{
		{name: "first match wins", label: "email", wantValue: "first@acme.io", wantValues: []string{" first@acme.io "}},
		{name: "checkbox group", label: "interests", wantValue: "CRM, Billing", wantValues: []string{"CRM", "Billing"}},
		{name: "scalar as list", label: "Team Size", wantValue: "11-50", wantValues: []string{"11-50"}},
		{name: "missing field", label: "Phone", wantValue: "", wantValues: []string{}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Value(fields, tc.label); got != tc.wantValue {
				t.Errorf("Value(%q) = %q, want %q", tc.label, got, tc.wantValue)
			}
			if got := Values(fields, tc.label); !reflect.DeepEqual(got, tc.wantValues) {
				t.Errorf("Values(%q) = %v, want %v", tc.label, got, tc.wantValues)
			}
		})
	}

	if got := Value(nil, "Email"); got != "" {
		t.Errorf("Value on nil fields = %q, want empty", got)
	}
}

func TestExtractorAliases(t *testing.T) {
	fields := []models.Field{
		{Label: "Work email", Value: models.Text("ada@acme.io")},
		{Label: "Full name", Value: models.Text("Ada Lovelace")},
		{Label: "Company name", Value: models.Text("Acme")},
		{Label: "Email", Value: models.Text("later@acme.io")},
		{Label: "Topics", Value: models.Choices("a", "b")},
	}

	got := NewExtractor(nil).Extract(fields)
	if got.Email != "ada@acme.io" {
		t.Errorf("Email = %q, want the first aliased field in submission order", got.Email)
	}
	if got.FullName != "Ada Lovelace" || got.Company != "Acme" {
		t.Errorf("unexpected extraction: %+v", got)
	}
	if got.Website != "" {
		t.Errorf("Website = %q, want empty", got.Website)
	}

	custom := NewExtractor(config.FieldMap{"topics": {"Topics"}})
	if vals := custom.NamedValues(fields, "topics"); !reflect.DeepEqual(vals, []string{"a", "b"}) {
		t.Errorf("NamedValues = %v", vals)
	}
	if vals := custom.NamedValues(fields, config.FieldEmail); len(vals) != 0 {
		t.Errorf("unmapped field should be empty, got %v", vals)
	}
}

func TestSplitName(t *testing.T) {
	testCases := []struct {
		full, first, last string
	}{
		{"Ada Lovelace", "Ada", "Lovelace"},
		{"Ada", "Ada", NamePlaceholder},
		{"  Ada   King  Lovelace ", "Ada", "King Lovelace"},
		{"", NamePlaceholder, NamePlaceholder},
	}
	for _, tc := range testCases {
		first, last := SplitName(tc.full)
		if first != tc.first || last != tc.last {
			t.Errorf("SplitName(%q) = (%q, %q), want (%q, %q)", tc.full, first, last, tc.first, tc.last)
		}
	}
}

func TestNormalizeDomain(t *testing.T) {
	testCases := []struct {
		in, want string
	}{
		{"https://www.Example.com/pricing", "example.com"},
		{"example.com", "example.com"},
		{"www.acme.co.uk/about?x=1", "acme.co.uk"},
		{"http://app.acme.io:8443", "app.acme.io"},
		{"EXAMPLE.COM.", "example.com"},
		{"", ""},
		{"n/a", ""},
		{"localhost", ""},
		{"co.uk", ""},
		{"not a website", ""},
	}
	for _, tc := range testCases {
		if got := NormalizeDomain(tc.in); got != tc.want {
			t.Errorf("NormalizeDomain(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	n := NewNormalizer("isp.example")

	testCases := []struct {
		name    string
		in      Extracted
		want    Identity
		wantErr error
	}{
		{
			name: "Website wins over email domain",
			in:   Extracted{Email: "Ada@Acme.io", FullName: "Ada Lovelace", Website: "https://www.Example.com/pricing", Company: "Example"},
			want: Identity{FullName: "Ada Lovelace", FirstName: "Ada", LastName: "Lovelace", Email: "ada@acme.io", Domain: "example.com", CompanyName: "Example"},
		},
		{
			name: "Email domain fallback",
			in:   Extracted{Email: "ada@acme.io", FullName: "Ada"},
			want: Identity{FullName: "Ada", FirstName: "Ada", LastName: NamePlaceholder, Email: "ada@acme.io", Domain: "acme.io"},
		},
		{
			name: "Personal email domain is dropped",
			in:   Extracted{Email: "jane@gmail.com", FullName: "Jane Doe"},
			want: Identity{FullName: "Jane Doe", FirstName: "Jane", LastName: "Doe", Email: "jane@gmail.com"},
		},
		{
			name: "Personal website is dropped",
			in:   Extracted{Email: "jane@acme.io", Website: "outlook.com"},
			want: Identity{FirstName: NamePlaceholder, LastName: NamePlaceholder, Email: "jane@acme.io"},
		},
		{
			name: "Extra personal domain",
			in:   Extracted{Email: "bob@isp.example"},
			want: Identity{FirstName: NamePlaceholder, LastName: NamePlaceholder, Email: "bob@isp.example"},
		},
		{
			name: "Unparseable website falls back to email",
			in:   Extracted{Email: "bob@acme.io", Website: "n/a"},
			want: Identity{FirstName: NamePlaceholder, LastName: NamePlaceholder, Email: "bob@acme.io", Domain: "acme.io"},
		},
		{
			name: "Separate first and last name fields",
			in:   Extracted{Email: "grace@navy.mil", FirstName: "Grace", LastName: "Hopper"},
			want: Identity{FullName: "Grace Hopper", FirstName: "Grace", LastName: "Hopper", Email: "grace@navy.mil", Domain: "navy.mil"},
		},
		{
			name:    "Missing email",
			in:      Extracted{FullName: "Ada Lovelace"},
			wantErr: ErrMissingEmail,
		},
		{
			name: "Unparseable email is passed through",
			in:   Extracted{Email: " Not-An-Email "},
			want: Identity{FirstName: NamePlaceholder, LastName: NamePlaceholder, Email: "not-an-email"},
		},
		{
			name: "Display name form",
			in:   Extracted{Email: "Ada <ADA@acme.io>"},
			want: Identity{FirstName: NamePlaceholder, LastName: NamePlaceholder, Email: "ada@acme.io", Domain: "acme.io"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := n.Normalize(tc.in)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("Normalize() error = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize() unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("Normalize() = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestIdentityDisplayNames(t *testing.T) {
	id := Identity{Email: "ada@acme.io", Domain: "acme.io"}
	if id.DisplayName() != "ada@acme.io" || id.CompanyDisplayName() != "acme.io" {
		t.Errorf("unexpected fallbacks: %q %q", id.DisplayName(), id.CompanyDisplayName())
	}
	id.FullName, id.CompanyName = "Ada Lovelace", "Acme"
	if id.DisplayName() != "Ada Lovelace" || id.CompanyDisplayName() != "Acme" {
		t.Errorf("unexpected names: %q %q", id.DisplayName(), id.CompanyDisplayName())
	}
}
