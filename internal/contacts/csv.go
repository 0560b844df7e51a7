package contacts

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ignite/campaign-sender/internal/domain"
)

var (
	ErrEmptyFile          = errors.New("file is empty")
	ErrMissingEmailColumn = errors.New("email column is required")
)

// csvColumns is the canonical export column order.
var csvColumns = []string{
	"email", "first_name", "last_name", "title", "company",
	"entity_type", "state", "agency_name", "sector", "subsection",
	"phone", "group",
}

// headerAliases maps spreadsheet header variants onto canonical fields so
// that exports from common CRMs import without manual re-mapping.
var headerAliases = map[string][]string{
	"email":       {"email", "email_address", "e_mail", "emailaddress", "mail"},
	"first_name":  {"first_name", "firstname", "first", "fname", "given_name"},
	"last_name":   {"last_name", "lastname", "last", "lname", "surname", "family_name"},
	"title":       {"title", "job_title", "jobtitle", "position", "role"},
	"company":     {"company", "company_name", "organization", "org", "business"},
	"entity_type": {"entity_type", "entitytype", "entity"},
	"state":       {"state", "state_province", "province", "region"},
	"agency_name": {"agency_name", "agencyname", "agency"},
	"sector":      {"sector", "industry", "vertical"},
	"subsection":  {"subsection", "sub_section", "subsector"},
	"phone":       {"phone", "phone_number", "phonenumber", "mobile", "telephone", "tel"},
	"group":       {"group", "list", "segment", "tags"},
}

// RowError records why a CSV row was skipped.
type RowError struct {
	Row    int    `json:"row"` // 1-based data row number (header excluded)
	Reason string `json:"reason"`
}

// ParseResult holds the contacts parsed from a CSV stream plus per-row
// skip reasons. Duplicate emails within the file keep the first occurrence.
type ParseResult struct {
	Contacts []domain.Contact `json:"contacts"`
	Skipped  []RowError       `json:"skipped,omitempty"`
}

// ParseCSV reads a contact list. The first row must be a header containing
// an email column (aliases accepted); unrecognized columns become custom
// attributes keyed by their normalized header.
func ParseCSV(r io.Reader) (*ParseResult, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, ErrEmptyFile
		}
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}

	fieldIdx, customIdx := mapHeader(header)
	emailIdx, ok := fieldIdx["email"]
	if !ok {
		return nil, ErrMissingEmailColumn
	}

	result := &ParseResult{}
	seen := make(map[string]bool)
	row := 0

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		row++
		if err != nil {
			result.Skipped = append(result.Skipped, RowError{Row: row, Reason: fmt.Sprintf("parse error: %v", err)})
			continue
		}
		if emailIdx >= len(record) {
			result.Skipped = append(result.Skipped, RowError{Row: row, Reason: "missing email column"})
			continue
		}

		email := domain.NormalizeEmail(record[emailIdx])
		if !domain.ValidEmail(email) {
			result.Skipped = append(result.Skipped, RowError{Row: row, Reason: fmt.Sprintf("invalid email %q", record[emailIdx])})
			continue
		}
		if seen[email] {
			result.Skipped = append(result.Skipped, RowError{Row: row, Reason: "duplicate email in file"})
			continue
		}
		seen[email] = true

		contact := domain.Contact{Email: email}
		field := func(name string) string {
			if idx, ok := fieldIdx[name]; ok && idx < len(record) {
				return strings.TrimSpace(record[idx])
			}
			return ""
		}
		contact.FirstName = field("first_name")
		contact.LastName = field("last_name")
		contact.Title = field("title")
		contact.Company = field("company")
		contact.EntityType = field("entity_type")
		contact.State = field("state")
		contact.AgencyName = field("agency_name")
		contact.Sector = field("sector")
		contact.Subsection = field("subsection")
		contact.Phone = field("phone")
		contact.Group = field("group")

		for name, idx := range customIdx {
			if idx < len(record) {
				if v := strings.TrimSpace(record[idx]); v != "" {
					if contact.Custom == nil {
						contact.Custom = make(map[string]string)
					}
					contact.Custom[name] = v
				}
			}
		}

		result.Contacts = append(result.Contacts, contact)
	}

	return result, nil
}

// WriteCSV exports contacts in the canonical column order. Custom attributes
// are not exported; they have no stable column set.
func WriteCSV(w io.Writer, contacts []domain.Contact) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(csvColumns); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}

	for _, c := range contacts {
		record := []string{
			c.Key(), c.FirstName, c.LastName, c.Title, c.Company,
			c.EntityType, c.State, c.AgencyName, c.Sector, c.Subsection,
			c.Phone, c.Group,
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("writing CSV row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// mapHeader resolves header cells to canonical fields; unmatched non-empty
// headers are returned as custom attribute columns.
func mapHeader(header []string) (fields map[string]int, custom map[string]int) {
	fields = make(map[string]int)
	custom = make(map[string]int)

	for idx, cell := range header {
		normalized := normalizeHeader(cell)
		if normalized == "" {
			continue
		}
		matched := false
		for field, aliases := range headerAliases {
			for _, alias := range aliases {
				if normalized == alias {
					if _, taken := fields[field]; !taken {
						fields[field] = idx
					}
					matched = true
					break
				}
			}
			if matched {
				break
			}
		}
		if !matched {
			custom[normalized] = idx
		}
	}
	return fields, custom
}

func normalizeHeader(header string) string {
	normalized := strings.ToLower(strings.TrimSpace(header))
	normalized = strings.ReplaceAll(normalized, " ", "_")
	normalized = strings.ReplaceAll(normalized, "-", "_")
	return normalized
}
