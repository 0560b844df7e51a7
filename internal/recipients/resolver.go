// Package recipients computes the final recipient set for a campaign send.
//
// Campaign configuration may carry explicit To/CC/BCC override lists on top
// of the target group. An address on an override list must not also receive
// a regular, individually-addressed send; that would deliver it two copies.
// Every address across the target list and the three override lists
// resolves to exactly one outgoing message.
package recipients

import (
	"sort"

	"github.com/ignite/campaign-sender/internal/domain"
	"github.com/ignite/campaign-sender/internal/pkg/logger"
)

// Header identifies which recipient header an address is delivered under.
type Header string

const (
	HeaderTo  Header = "to"
	HeaderCC  Header = "cc"
	HeaderBCC Header = "bcc"
)

// HeaderRecipient is a synthetic send for an address that appears only on an
// override list (or was excluded from regular sends): one message with the
// address placed in the named header.
type HeaderRecipient struct {
	Email  string `json:"email"`
	Header Header `json:"header"`
}

// Resolution is the complete plan for one campaign send.
type Resolution struct {
	// Regular contacts each receive an individually-addressed message
	// carrying the full CC and BCC header lists below.
	Regular []domain.Contact

	// HeaderOnly sends cover every address in the exclusion union, exactly
	// once each.
	HeaderOnly []HeaderRecipient

	// CC and BCC are the normalized, deduplicated header lists attached to
	// every regular send.
	CC  []string
	BCC []string

	ExcludedCount int
	Trace         Trace
}

// Trace records why each address did or did not get a regular send, for
// post-hoc auditing of duplicate-delivery questions.
type Trace struct {
	CCList                 []string `json:"cc_list"`
	BCCList                []string `json:"bcc_list"`
	ToList                 []string `json:"to_list"`
	CombinedExclusionSet   []string `json:"combined_exclusion_set"`
	TotalTargetEmails      int      `json:"total_target_emails"`
	RegularContactsCreated int      `json:"regular_contacts_created"`
	ExcludedCount          int      `json:"excluded_count"`
}

// TotalSends returns the number of distinct outgoing messages.
func (r *Resolution) TotalSends() int {
	return len(r.Regular) + len(r.HeaderOnly)
}

// Resolve computes the send plan for targetContacts with the raw override
// lists from campaign configuration.
//
// When an address appears on more than one override list, the most
// restrictive header wins: BCC over CC over To. BCC hides the address from
// other recipients; demoting it to CC or To would leak it.
func Resolve(targetContacts []domain.Contact, ccList, bccList, toList []string) *Resolution {
	ccSet := normalizeList(ccList)
	bccSet := normalizeList(bccList)
	toSet := normalizeList(toList)

	// Union of all overrides: no address in it may also get a regular send.
	excluded := make(map[string]bool, len(ccSet)+len(bccSet)+len(toSet))
	for email := range ccSet {
		excluded[email] = true
	}
	for email := range bccSet {
		excluded[email] = true
	}
	for email := range toSet {
		excluded[email] = true
	}

	res := &Resolution{
		CC:  setToSorted(ccSet),
		BCC: setToSorted(bccSet),
	}

	for _, contact := range targetContacts {
		email := contact.Key()
		if excluded[email] {
			res.ExcludedCount++
			continue
		}
		contact.Email = email
		res.Regular = append(res.Regular, contact)
	}

	// One header-only send per excluded address, under its winning header.
	for _, email := range setToSorted(excluded) {
		header := HeaderTo
		if ccSet[email] {
			header = HeaderCC
		}
		if bccSet[email] {
			header = HeaderBCC
		}
		res.HeaderOnly = append(res.HeaderOnly, HeaderRecipient{Email: email, Header: header})
	}

	res.Trace = Trace{
		CCList:                 res.CC,
		BCCList:                res.BCC,
		ToList:                 setToSorted(toSet),
		CombinedExclusionSet:   setToSorted(excluded),
		TotalTargetEmails:      len(targetContacts),
		RegularContactsCreated: len(res.Regular),
		ExcludedCount:          res.ExcludedCount,
	}

	logger.Info("recipients resolved",
		"targets", len(targetContacts),
		"regular", len(res.Regular),
		"excluded", res.ExcludedCount,
		"header_only", len(res.HeaderOnly),
		"cc", len(res.CC),
		"bcc", len(res.BCC))

	return res
}

// normalizeList lowercases, trims, and drops malformed entries; the result
// is a set, so repeated entries collapse.
func normalizeList(raw []string) map[string]bool {
	set := make(map[string]bool, len(raw))
	for _, entry := range raw {
		email := domain.NormalizeEmail(entry)
		if domain.ValidEmail(email) {
			set[email] = true
		}
	}
	return set
}

// setToSorted flattens a set into a sorted slice; deterministic order keeps
// traces and headers stable across runs.
func setToSorted(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for email := range set {
		out = append(out, email)
	}
	sort.Strings(out)
	return out
}
