package crm

// Encoding selects how multi-valued attributes are written.
// Structured is the documented shape; Plain is the single fallback.
type Encoding int

const (
	EncodingStructured Encoding = iota
	EncodingPlain
)

func (e Encoding) String() string {
	if e == EncodingPlain {
		return "plain"
	}
	return "structured"
}

// Object slugs in the CRM workspace.
const (
	ObjectPeople    = "people"
	ObjectCompanies = "companies"
	ObjectDeals     = "deals"
)

// Attribute slugs used by the relay.
const (
	AttrEmailAddresses    = "email_addresses"
	AttrDomains           = "domains"
	AttrName              = "name"
	AttrStage             = "stage"
	AttrOwner             = "owner"
	AttrAssociatedPeople  = "associated_people"
	AttrAssociatedCompany = "associated_company"
)

func emailValues(enc Encoding, email string) any {
	if enc == EncodingPlain {
		return []string{email}
	}
	return []map[string]string{{"email_address": email}}
}

func domainValues(enc Encoding, domain string) any {
	if enc == EncodingPlain {
		return []string{domain}
	}
	return []map[string]string{{"domain": domain}}
}

func personName(first, last string) any {
	return []map[string]string{{
		"first_name": first,
		"last_name":  last,
		"full_name":  first + " " + last,
	}}
}

// personLink references a person by record id when known, else by email.
func personLink(enc Encoding, id, email string) any {
	if id != "" {
		return []map[string]any{{"target_object": ObjectPeople, "target_record_id": id}}
	}
	return []map[string]any{{"target_object": ObjectPeople, AttrEmailAddresses: emailValues(enc, email)}}
}

// companyLink references a company by record id when known, else by domain.
// It returns nil when there is nothing to link.
func companyLink(enc Encoding, id, domain string) any {
	switch {
	case id != "":
		return []map[string]any{{"target_object": ObjectCompanies, "target_record_id": id}}
	case domain != "":
		return []map[string]any{{"target_object": ObjectCompanies, AttrDomains: domainValues(enc, domain)}}
	default:
		return nil
	}
}
