package intake

import (
	"errors"
	"net/mail"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// NamePlaceholder fills name parts the form did not supply.
const NamePlaceholder = "Unknown"

var ErrMissingEmail = errors.New("email address is required")

// Identity is the normalised view of who submitted the form.
type Identity struct {
	FullName    string
	FirstName   string
	LastName    string
	Email       string
	Domain      string
	CompanyName string
}

// DisplayName is the person's name as written on the form, or the email when none was given.
func (id Identity) DisplayName() string {
	if id.FullName != "" {
		return id.FullName
	}
	return id.Email
}

// CompanyDisplayName is the company name from the form, else the domain.
func (id Identity) CompanyDisplayName() string {
	if id.CompanyName != "" {
		return id.CompanyName
	}
	return id.Domain
}

// Normalizer turns extracted fields into an Identity.
type Normalizer struct {
	personal map[string]struct{}
}

// NewNormalizer creates a Normalizer whose denylist is the built-in
// consumer providers plus extra.
func NewNormalizer(extra ...string) *Normalizer {
	personal := make(map[string]struct{}, len(personalDomains)+len(extra))
	for _, d := range personalDomains {
		personal[d] = struct{}{}
	}
	for _, d := range extra {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			personal[d] = struct{}{}
		}
	}
	return &Normalizer{personal: personal}
}

// Normalize validates the email and derives the name split and company domain.
func (n *Normalizer) Normalize(in Extracted) (Identity, error) {
	email, err := NormalizeEmail(in.Email)
	if err != nil {
		return Identity{}, err
	}

	id := Identity{
		Email:       email,
		CompanyName: strings.TrimSpace(in.Company),
	}

	fullName := collapse(in.FullName)
	first, last := collapse(in.FirstName), collapse(in.LastName)
	if fullName == "" {
		fullName = collapse(first + " " + last)
	}
	if first == "" && last == "" {
		first, last = SplitName(fullName)
	}
	if first == "" {
		first = NamePlaceholder
	}
	if last == "" {
		last = NamePlaceholder
	}
	id.FullName, id.FirstName, id.LastName = fullName, first, last

	domain := NormalizeDomain(in.Website)
	if domain == "" {
		domain = EmailDomain(email)
	}
	if n.IsPersonal(domain) {
		domain = ""
	}
	id.Domain = domain

	return id, nil
}

// IsPersonal reports whether domain belongs to a consumer email provider.
func (n *Normalizer) IsPersonal(domain string) bool {
	_, ok := n.personal[strings.ToLower(domain)]
	return ok
}

// NormalizeEmail trims and lowercases an address, unwrapping "Name <addr>" forms.
// Only an empty address is rejected; the CRM is the judge of anything else.
func NormalizeEmail(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrMissingEmail
	}
	if addr, err := mail.ParseAddress(raw); err == nil {
		raw = addr.Address
	}
	return strings.ToLower(raw), nil
}

// SplitName splits a full name on whitespace: the first token is the first name,
// the rest is the last name. Missing parts become NamePlaceholder.
func SplitName(full string) (first, last string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return NamePlaceholder, NamePlaceholder
	case 1:
		return parts[0], NamePlaceholder
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}

// NormalizeDomain reduces a website to a bare lowercase hostname without "www.".
// It returns "" when the input has no registrable domain.
func NormalizeDomain(website string) string {
	website = strings.TrimSpace(website)
	if website == "" {
		return ""
	}
	if !strings.Contains(website, "://") {
		website = "http://" + strings.TrimPrefix(website, "//")
	}

	u, err := url.Parse(website)
	if err != nil {
		return ""
	}
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	host = strings.TrimPrefix(host, "www.")
	if !registrable(host) {
		return ""
	}
	return host
}

// EmailDomain returns the lowercased part after the last "@", or "" when it is not a domain.
func EmailDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return ""
	}
	domain := strings.TrimSuffix(strings.ToLower(email[at+1:]), ".")
	if !registrable(domain) {
		return ""
	}
	return domain
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func registrable(host string) bool {
	if host == "" || !strings.Contains(host, ".") || strings.ContainsAny(host, " /@") {
		return false
	}
	_, err := publicsuffix.EffectiveTLDPlusOne(host)
	return err == nil
}

var personalDomains = []string{
	"gmail.com", "googlemail.com",
	"yahoo.com", "yahoo.co.uk", "yahoo.fr", "yahoo.de", "ymail.com", "rocketmail.com",
	"outlook.com", "hotmail.com", "hotmail.co.uk", "hotmail.fr", "live.com", "msn.com",
	"icloud.com", "me.com", "mac.com",
	"aol.com",
	"proton.me", "protonmail.com", "pm.me",
	"gmx.com", "gmx.de", "gmx.net", "web.de", "mail.com",
	"yandex.com", "yandex.ru", "mail.ru",
	"zoho.com", "fastmail.com", "hey.com", "tutanota.com",
	"qq.com", "163.com", "126.com",
	"comcast.net", "att.net", "verizon.net",
}
