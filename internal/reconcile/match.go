package reconcile

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/sells-group/mentor-sync/internal/model"
	"github.com/sells-group/mentor-sync/internal/normalize"
)

// DefaultWithdrawnTag marks a contact whose person left the program.
const DefaultWithdrawnTag = "Dropped"

// MatchMethod records how a contact was resolved.
type MatchMethod string

const (
	MatchNone  MatchMethod = "none"
	MatchPhone MatchMethod = "phone"
	MatchEmail MatchMethod = "email"
)

// Tie-break rules for multiple email candidates, in priority order.
const (
	RuleExternalID = "external_id"
	RuleHasPhone   = "has_phone"
	RuleRealName   = "real_name"
	RuleNewestID   = "newest_contact_id"
)

// autoNameRe matches the generated placeholder names the contact platform
// assigns to imported junk contacts, e.g. "AB1234".
var autoNameRe = regexp.MustCompile(`^[A-Z]{2}[0-9]+$`)

// IsAutoGeneratedName reports whether both first and last name follow the
// generated two-letter-plus-number pattern.
func IsAutoGeneratedName(first, last string) bool {
	return autoNameRe.MatchString(normalize.Name(first)) && autoNameRe.MatchString(normalize.Name(last))
}

// MatchResult is the outcome of resolving one person against the contacts.
type MatchResult struct {
	Contact    *model.RawContact
	Method     MatchMethod
	Candidates []int64 // every candidate id, set when more than one existed
	DecidedBy  string  // tie-break rule that chose Contact among candidates
	Withdrawn  bool
	Conflicts  []model.Conflict
}

// Matcher resolves people to contacts. It only reads its index and is safe
// for concurrent use.
type Matcher struct {
	index        *ContactIndex
	withdrawnTag string
}

// NewMatcher returns a Matcher over index. An empty withdrawnTag uses
// DefaultWithdrawnTag.
func NewMatcher(index *ContactIndex, withdrawnTag string) *Matcher {
	if strings.TrimSpace(withdrawnTag) == "" {
		withdrawnTag = DefaultWithdrawnTag
	}
	return &Matcher{index: index, withdrawnTag: withdrawnTag}
}

// Match resolves p:
//  1. a phone hit is final;
//  2. otherwise personal-email candidates, or institutional-email
//     candidates when the personal email has none;
//  3. zero candidates is no match, one is the match, several are ranked
//     by rankCandidates and reported in a warning.
//
// The withdrawal check applies to the resolved contact regardless of how it
// was found.
func (m *Matcher) Match(p Person) MatchResult {
	if c, ok := m.index.ByPhone(p.Phone); ok {
		return m.finish(p, MatchResult{Contact: c, Method: MatchPhone})
	}

	candidates := m.index.ByEmail(normalize.EmailOrEmpty(p.Signup.PersonalEmail))
	if len(candidates) == 0 {
		candidates = m.index.ByEmail(normalize.EmailOrEmpty(p.Signup.UWEmail))
	}

	switch len(candidates) {
	case 0:
		return MatchResult{Method: MatchNone}
	case 1:
		return m.finish(p, MatchResult{Contact: candidates[0], Method: MatchEmail})
	}

	ranked, rule := rankCandidates(p, candidates)
	res := MatchResult{
		Contact:    ranked[0],
		Method:     MatchEmail,
		Candidates: contactIDs(candidates),
		DecidedBy:  rule,
	}
	res.Conflicts = append(res.Conflicts, model.Conflict{
		Severity: model.SeverityWarning,
		Type:     model.ConflictMultipleCandidates,
		MnID:     p.Signup.MnID,
		Message: fmt.Sprintf("%d contacts share the email of %s; selected %d by %s",
			len(candidates), p.Signup.MnID, res.Contact.ContactID, rule),
		Payload: map[string]any{
			"submission_id":  p.Signup.SubmissionID,
			"candidate_ids":  res.Candidates,
			"selected_id":    res.Contact.ContactID,
			"decided_by":     rule,
			"personal_email": p.Signup.PersonalEmail,
			"uw_email":       p.Signup.UWEmail,
		},
	})
	return m.finish(p, res)
}

func (m *Matcher) finish(p Person, res MatchResult) MatchResult {
	if !res.Contact.HasTag(m.withdrawnTag) {
		return res
	}
	res.Withdrawn = true

	// A phone hit is strong evidence. An email fall-through may have landed
	// on someone else's withdrawn contact, so it is raised for review.
	sev := model.SeverityInfo
	msg := fmt.Sprintf("%s excluded: contact %d is tagged %q", p.Signup.MnID, res.Contact.ContactID, m.withdrawnTag)
	if res.Method == MatchEmail {
		sev = model.SeverityWarning
		msg += " (matched by email only; verify no other contact belongs to this person)"
	}
	res.Conflicts = append(res.Conflicts, model.Conflict{
		Severity: sev,
		Type:     model.ConflictWithdrawn,
		MnID:     p.Signup.MnID,
		Message:  msg,
		Payload: map[string]any{
			"submission_id": p.Signup.SubmissionID,
			"contact_id":    res.Contact.ContactID,
			"matched_by":    string(res.Method),
			"tags":          res.Contact.Tags,
		},
	})
	return res
}

// rankCandidates orders candidates best-first by:
//
//	(a) external id equals the person's mentor id,
//	(b) has a non-empty phone,
//	(c) name is not auto-generated,
//	(d) larger contact id.
//
// It returns the ordering and the first rule that separated the top two.
func rankCandidates(p Person, candidates []*model.RawContact) ([]*model.RawContact, string) {
	keys := make(map[int64]rankKey, len(candidates))
	for _, c := range candidates {
		keys[c.ContactID] = newRankKey(p, c)
	}
	ranked := append([]*model.RawContact(nil), candidates...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return keys[ranked[i].ContactID].less(keys[ranked[j].ContactID])
	})
	return ranked, keys[ranked[0].ContactID].decidingRule(keys[ranked[1].ContactID])
}

type rankKey struct {
	externalID bool
	hasPhone   bool
	realName   bool
	id         int64
}

func newRankKey(p Person, c *model.RawContact) rankKey {
	return rankKey{
		externalID: !p.Placeholder && strings.EqualFold(strings.TrimSpace(c.ExternalID), p.Signup.MnID),
		hasPhone:   strings.TrimSpace(c.Phone) != "",
		realName:   !IsAutoGeneratedName(c.FirstName, c.LastName),
		id:         c.ContactID,
	}
}

func (a rankKey) less(b rankKey) bool {
	switch {
	case a.externalID != b.externalID:
		return a.externalID
	case a.hasPhone != b.hasPhone:
		return a.hasPhone
	case a.realName != b.realName:
		return a.realName
	default:
		return a.id > b.id
	}
}

func (a rankKey) decidingRule(b rankKey) string {
	switch {
	case a.externalID != b.externalID:
		return RuleExternalID
	case a.hasPhone != b.hasPhone:
		return RuleHasPhone
	case a.realName != b.realName:
		return RuleRealName
	default:
		return RuleNewestID
	}
}

func contactIDs(cs []*model.RawContact) []int64 {
	ids := make([]int64, len(cs))
	for i, c := range cs {
		ids[i] = c.ContactID
	}
	return ids
}
