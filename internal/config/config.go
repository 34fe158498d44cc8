package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"
)

const (
	DefaultBaseURL           = "https://api.attio.com"
	DefaultDealStage         = "Prospect"
	DefaultExternalIDAttr    = "external_id"
	DefaultPort              = "8080"
	DefaultWorkers           = 4
	DefaultQueueSize         = 100
	disabledExternalIDMarker = "none"
)

// Config holds everything the relay reads from its environment.
// It is loaded once at startup and passed to constructors.
type Config struct {
	APIToken        string
	BaseURL         string
	DealStage       string
	DealOwner       string
	ExternalIDAttr  string
	SigningSecret   string
	DebugErrors     bool
	Port            string
	FieldMapFile    string
	Fields          FieldMap
	PersonalDomains []string
	Workers         int
	QueueSize       int
}

// FieldMap maps a logical field name to the form labels that may carry it, in preference order.
type FieldMap map[string][]string

// Logical field names understood by the extractor.
const (
	FieldEmail     = "email"
	FieldName      = "name"
	FieldFirstName = "first_name"
	FieldLastName  = "last_name"
	FieldCompany   = "company"
	FieldWebsite   = "website"
	FieldPhone     = "phone"
	FieldMessage   = "message"
)

// DefaultFieldMap returns the built-in label aliases.
func DefaultFieldMap() FieldMap {
	return FieldMap{
		FieldEmail:     {"Email", "Email address", "Work email", "E-mail", "Business email"},
		FieldName:      {"Name", "Full name", "Your name"},
		FieldFirstName: {"First name", "First"},
		FieldLastName:  {"Last name", "Last", "Surname"},
		FieldCompany:   {"Company", "Company name", "Organization", "Organisation"},
		FieldWebsite:   {"Website", "Company website", "Website URL", "Domain"},
		FieldPhone:     {"Phone", "Phone number"},
		FieldMessage:   {"Message", "How can we help?", "Notes"},
	}
}

// Load reads configuration from environment variables.
// A missing API token is not an error here; the webhook handler reports it per request.
func Load() (*Config, error) {
	cfg := &Config{
		APIToken:       strings.TrimSpace(os.Getenv("ATTIO_API_KEY")),
		BaseURL:        envOr("ATTIO_BASE_URL", DefaultBaseURL),
		DealStage:      envOr("DEAL_STAGE", DefaultDealStage),
		DealOwner:      strings.TrimSpace(os.Getenv("DEAL_OWNER")),
		ExternalIDAttr: DefaultExternalIDAttr,
		SigningSecret:  os.Getenv("TALLY_SIGNING_SECRET"),
		Port:           envOr("SERVER_PORT", DefaultPort),
		FieldMapFile:   strings.TrimSpace(os.Getenv("FIELD_MAP_FILE")),
		Fields:         DefaultFieldMap(),
		Workers:        DefaultWorkers,
		QueueSize:      DefaultQueueSize,
	}

	if v, ok := os.LookupEnv("DEAL_EXTERNAL_ID_ATTRIBUTE"); ok {
		v = strings.TrimSpace(v)
		if strings.EqualFold(v, disabledExternalIDMarker) {
			v = ""
		}
		cfg.ExternalIDAttr = v
	}

	if v := os.Getenv("DEBUG_ERRORS"); v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid DEBUG_ERRORS value %q: %w", v, err)
		}
		cfg.DebugErrors = debug
	}

	var err error
	if cfg.Workers, err = envInt("RELAY_WORKERS", DefaultWorkers); err != nil {
		return nil, err
	}
	if cfg.QueueSize, err = envInt("RELAY_QUEUE_SIZE", DefaultQueueSize); err != nil {
		return nil, err
	}

	if cfg.FieldMapFile != "" {
		file, err := LoadFieldMap(cfg.FieldMapFile)
		if err != nil {
			return nil, err
		}
		cfg.Fields = file.Merge(cfg.Fields)
		cfg.PersonalDomains = file.PersonalDomains
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid %s value %q: must be a positive integer", key, v)
	}
	return n, nil
}

// FieldMapFile is the on-disk YAML shape of FIELD_MAP_FILE.
type FieldMapFile struct {
	Fields          FieldMap `yaml:"fields"`
	PersonalDomains []string `yaml:"personal_domains"`
}

// LoadFieldMap loads label aliases and extra personal domains from a YAML file.
func LoadFieldMap(path string) (*FieldMapFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read field map %s: %w", path, err)
	}
	return ParseFieldMap(data)
}

// ParseFieldMap decodes a field map document.
func ParseFieldMap(data []byte) (*FieldMapFile, error) {
	var file FieldMapFile
	if err := yaml.UnmarshalStrict(data, &file); err != nil {
		return nil, fmt.Errorf("parse field map: %w", err)
	}
	for name, labels := range file.Fields {
		if len(labels) == 0 {
			return nil, fmt.Errorf("field map: %q has no labels", name)
		}
	}
	return &file, nil
}

// Merge overlays the file's aliases on base. A field named in the file replaces
// the base aliases for that field entirely.
func (f *FieldMapFile) Merge(base FieldMap) FieldMap {
	merged := make(FieldMap, len(base)+len(f.Fields))
	for name, labels := range base {
		merged[name] = labels
	}
	for name, labels := range f.Fields {
		merged[name] = labels
	}
	return merged
}
