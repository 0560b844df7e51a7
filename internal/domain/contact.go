package domain

import (
	"strings"
	"time"
)

// Contact represents a single recipient in the contact store.
// Identity is the lowercase-trimmed email address; re-importing an existing
// email updates the record in place rather than creating a duplicate.
type Contact struct {
	Email      string            `json:"email" dynamodbav:"Email"`
	FirstName  string            `json:"first_name,omitempty" dynamodbav:"FirstName,omitempty"`
	LastName   string            `json:"last_name,omitempty" dynamodbav:"LastName,omitempty"`
	Title      string            `json:"title,omitempty" dynamodbav:"Title,omitempty"`
	Company    string            `json:"company,omitempty" dynamodbav:"Company,omitempty"`
	EntityType string            `json:"entity_type,omitempty" dynamodbav:"EntityType,omitempty"`
	State      string            `json:"state,omitempty" dynamodbav:"State,omitempty"`
	AgencyName string            `json:"agency_name,omitempty" dynamodbav:"AgencyName,omitempty"`
	Sector     string            `json:"sector,omitempty" dynamodbav:"Sector,omitempty"`
	Subsection string            `json:"subsection,omitempty" dynamodbav:"Subsection,omitempty"`
	Phone      string            `json:"phone,omitempty" dynamodbav:"Phone,omitempty"`
	Group      string            `json:"group,omitempty" dynamodbav:"Group,omitempty"`
	Custom     map[string]string `json:"custom,omitempty" dynamodbav:"Custom,omitempty"`

	CreatedAt time.Time `json:"created_at" dynamodbav:"CreatedAt"`
	UpdatedAt time.Time `json:"updated_at" dynamodbav:"UpdatedAt"`
}

// NormalizeEmail canonicalizes an address for identity and set membership:
// lowercase, surrounding whitespace trimmed.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidEmail reports whether an address is plausibly deliverable. The check
// is intentionally syntactic; SES performs the authoritative validation.
func ValidEmail(email string) bool {
	email = NormalizeEmail(email)
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 {
		return false
	}
	return !strings.ContainsAny(email, " \t")
}

// Key returns the contact's identity key (normalized email).
func (c Contact) Key() string {
	return NormalizeEmail(c.Email)
}

// Merge overlays non-empty fields from other onto c, preserving existing
// values where the import row left a column blank. CreatedAt is kept from
// the stored record.
func (c Contact) Merge(other Contact) Contact {
	merged := c
	set := func(dst *string, src string) {
		if src != "" {
			*dst = src
		}
	}
	set(&merged.FirstName, other.FirstName)
	set(&merged.LastName, other.LastName)
	set(&merged.Title, other.Title)
	set(&merged.Company, other.Company)
	set(&merged.EntityType, other.EntityType)
	set(&merged.State, other.State)
	set(&merged.AgencyName, other.AgencyName)
	set(&merged.Sector, other.Sector)
	set(&merged.Subsection, other.Subsection)
	set(&merged.Phone, other.Phone)
	set(&merged.Group, other.Group)
	for k, v := range other.Custom {
		if merged.Custom == nil {
			merged.Custom = make(map[string]string)
		}
		merged.Custom[k] = v
	}
	merged.UpdatedAt = other.UpdatedAt
	return merged
}
