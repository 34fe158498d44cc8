package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestLoad(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		t.Setenv("ATTIO_API_KEY", "")
		t.Setenv("ATTIO_BASE_URL", "")
		t.Setenv("DEAL_STAGE", "")
		t.Setenv("SERVER_PORT", "")
		t.Setenv("FIELD_MAP_FILE", "")
		t.Setenv("DEBUG_ERRORS", "")
		t.Setenv("RELAY_WORKERS", "")
		t.Setenv("RELAY_QUEUE_SIZE", "")
		t.Setenv("DEAL_EXTERNAL_ID_ATTRIBUTE", "")
		os.Unsetenv("DEAL_EXTERNAL_ID_ATTRIBUTE")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() returned error: %v", err)
		}
		if cfg.APIToken != "" {
			t.Errorf("expected empty token, got %q", cfg.APIToken)
		}
		if cfg.BaseURL != DefaultBaseURL || cfg.DealStage != DefaultDealStage || cfg.Port != DefaultPort {
			t.Errorf("unexpected defaults: %+v", cfg)
		}
		if cfg.ExternalIDAttr != DefaultExternalIDAttr {
			t.Errorf("ExternalIDAttr = %q, want %q", cfg.ExternalIDAttr, DefaultExternalIDAttr)
		}
		if !reflect.DeepEqual(cfg.Fields, DefaultFieldMap()) {
			t.Errorf("expected default field map")
		}
		if cfg.Workers != DefaultWorkers || cfg.QueueSize != DefaultQueueSize {
			t.Errorf("pool defaults = %d/%d", cfg.Workers, cfg.QueueSize)
		}
	})

	t.Run("Overrides", func(t *testing.T) {
		t.Setenv("ATTIO_API_KEY", " token-123 ")
		t.Setenv("DEAL_STAGE", "Qualified")
		t.Setenv("DEAL_OWNER", "owner@acme.io")
		t.Setenv("DEAL_EXTERNAL_ID_ATTRIBUTE", "none")
		t.Setenv("DEBUG_ERRORS", "true")
		t.Setenv("FIELD_MAP_FILE", "")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() returned error: %v", err)
		}
		if cfg.APIToken != "token-123" {
			t.Errorf("APIToken = %q", cfg.APIToken)
		}
		if cfg.DealStage != "Qualified" || cfg.DealOwner != "owner@acme.io" {
			t.Errorf("unexpected deal settings: %+v", cfg)
		}
		if cfg.ExternalIDAttr != "" {
			t.Errorf("expected dedup to be disabled, got %q", cfg.ExternalIDAttr)
		}
		if !cfg.DebugErrors {
			t.Errorf("expected DebugErrors to be true")
		}
	})

	t.Run("Invalid debug flag", func(t *testing.T) {
		t.Setenv("DEBUG_ERRORS", "sometimes")
		t.Setenv("FIELD_MAP_FILE", "")
		if _, err := Load(); err == nil {
			t.Errorf("expected error for invalid DEBUG_ERRORS")
		}
	})

	t.Run("Invalid pool size", func(t *testing.T) {
		t.Setenv("DEBUG_ERRORS", "")
		t.Setenv("FIELD_MAP_FILE", "")
		for _, v := range []string{"0", "-2", "many"} {
			t.Setenv("RELAY_WORKERS", v)
			if _, err := Load(); err == nil {
				t.Errorf("expected error for RELAY_WORKERS=%q", v)
			}
		}
	})

	t.Run("Field map file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "fields.yaml")
		doc := "fields:\n  email: [\"Work email\"]\npersonal_domains: [\"isp.example\"]\n"
		if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
			t.Fatal(err)
		}
		t.Setenv("FIELD_MAP_FILE", path)
		t.Setenv("DEBUG_ERRORS", "")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() returned error: %v", err)
		}
		if got := cfg.Fields[FieldEmail]; !reflect.DeepEqual(got, []string{"Work email"}) {
			t.Errorf("email aliases = %v", got)
		}
		if got := cfg.Fields[FieldCompany]; !reflect.DeepEqual(got, DefaultFieldMap()[FieldCompany]) {
			t.Errorf("company aliases should keep defaults, got %v", got)
		}
		if !reflect.DeepEqual(cfg.PersonalDomains, []string{"isp.example"}) {
			t.Errorf("PersonalDomains = %v", cfg.PersonalDomains)
		}
	})
}

func TestParseFieldMap(t *testing.T) {
	testCases := []struct {
		name    string
		doc     string
		wantErr bool
	}{
		{name: "valid", doc: "fields:\n  website: [Site]\n"},
		{name: "empty aliases", doc: "fields:\n  website: []\n", wantErr: true},
		{name: "unknown key", doc: "labels:\n  website: [Site]\n", wantErr: true},
		{name: "not yaml", doc: "fields: [", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseFieldMap([]byte(tc.doc))
			if (err != nil) != tc.wantErr {
				t.Errorf("ParseFieldMap() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}
