package reconcile

import (
	"fmt"

	"github.com/sells-group/mentor-sync/internal/model"
)

// claim is one person's bid for an external record. Lower rank is a
// stronger match.
type claim struct {
	person int
	rank   int
}

// claims assigns each external record to at most one person per run. The
// strongest bid wins; among equal bids the person offered first keeps it,
// so offers must be made in signup order.
type claims[K comparable] map[K]claim

func (c claims[K]) offer(key K, person, rank int) {
	if cur, ok := c[key]; ok && cur.rank <= rank {
		return
	}
	c[key] = claim{person: person, rank: rank}
}

// holder returns the winning person for key and whether anyone bid.
func (c claims[K]) holder(key K) (int, bool) {
	cl, ok := c[key]
	return cl.person, ok
}

// Match strength of a resolved contact. A phone hit is final and always
// beats an email hit on the same contact.
func contactRank(method MatchMethod) int {
	if method == MatchPhone {
		return 0
	}
	return 1
}

// Owners maps an external id to the mentor id holding it in this run.
type Owners map[int64]string

// take records id for mnID unless another mentor already holds it, in which
// case it returns that mentor.
func (o Owners) take(id int64, mnID string) (string, bool) {
	if held, ok := o[id]; ok && held != mnID {
		return held, false
	}
	if o != nil {
		o[id] = mnID
	}
	return "", true
}

func sharedContactConflict(p Person, owner string, c *model.RawContact, ownerMethod MatchMethod) model.Conflict {
	return model.Conflict{
		Severity: model.SeverityWarning,
		Type:     model.ConflictSharedContact,
		MnID:     p.Signup.MnID,
		Message: fmt.Sprintf("contact %d matched to %s by %s; left unset for %s",
			c.ContactID, owner, ownerMethod, p.Signup.MnID),
		Payload: map[string]any{
			"submission_id": p.Signup.SubmissionID,
			"contact_id":    c.ContactID,
			"owner_mn_id":   owner,
			"owner_method":  string(ownerMethod),
		},
	}
}

func priorContactConflict(m *model.Mentor, id int64, owner string) model.Conflict {
	return model.Conflict{
		Severity: model.SeverityWarning,
		Type:     model.ConflictSharedContact,
		MnID:     m.MnID,
		Message: fmt.Sprintf("prior contact %d of %s is matched to %s in this run; not carried forward",
			id, m.MnID, owner),
		Payload: map[string]any{
			"submission_id": m.SignupSubmissionID,
			"contact_id":    id,
			"owner_mn_id":   owner,
			"prior":         true,
		},
	}
}

func sharedMemberConflict(p Person, owner string, mem *model.RawFundraisingMember) model.Conflict {
	return model.Conflict{
		Severity: model.SeverityWarning,
		Type:     model.ConflictSharedMember,
		MnID:     p.Signup.MnID,
		Message: fmt.Sprintf("fundraising member %d attached to %s; left unset for %s",
			mem.MemberID, owner, p.Signup.MnID),
		Payload: map[string]any{
			"submission_id": p.Signup.SubmissionID,
			"member_id":     mem.MemberID,
			"owner_mn_id":   owner,
		},
	}
}

func priorMemberConflict(m *model.Mentor, id int64, owner string) model.Conflict {
	return model.Conflict{
		Severity: model.SeverityWarning,
		Type:     model.ConflictSharedMember,
		MnID:     m.MnID,
		Message: fmt.Sprintf("prior fundraising member %d of %s is attached to %s in this run; not carried forward",
			id, m.MnID, owner),
		Payload: map[string]any{
			"submission_id": m.SignupSubmissionID,
			"member_id":     id,
			"owner_mn_id":   owner,
			"prior":         true,
		},
	}
}

func sharedSetupConflict(p Person, owner string, setup *model.RawSetupRecord) model.Conflict {
	return model.Conflict{
		Severity: model.SeverityWarning,
		Type:     model.ConflictSharedSetup,
		MnID:     p.Signup.MnID,
		Message: fmt.Sprintf("setup submission %s attached to %s; left unset for %s",
			setup.SubmissionID, owner, p.Signup.MnID),
		Payload: map[string]any{
			"submission_id":       p.Signup.SubmissionID,
			"setup_submission_id": setup.SubmissionID,
			"owner_mn_id":         owner,
		},
	}
}
