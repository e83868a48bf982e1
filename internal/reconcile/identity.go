package reconcile

import "github.com/sells-group/mentor-sync/internal/model"

// Preserved reports which identifiers were carried forward from a prior run.
// ContactHeldBy and MemberHeldBy name the mentor that already holds a prior
// id in this run, when that id was refused.
type Preserved struct {
	Contact       bool
	Member        bool
	ContactHeldBy string
	MemberHeldBy  string
}

// PreserveIdentity fills m's contact and member ids from prior where the
// current run resolved none. Each id is considered independently. A fresh
// match always wins over a prior one. Placeholder mentors never inherit,
// since their ids are reissued per run and carry no identity.
//
// contacts and members hold the ids already taken in this run. A prior id
// held by another mentor is not carried forward; an inherited id is added
// to the map. Either map may be nil.
func PreserveIdentity(m *model.Mentor, prior map[string]model.Identity, contacts, members Owners) Preserved {
	var out Preserved
	if m.IsPlaceholderID {
		return out
	}
	old, ok := prior[m.MnID]
	if !ok {
		return out
	}
	if m.GBContactID == nil && old.GBContactID != nil {
		if held, free := contacts.take(*old.GBContactID, m.MnID); free {
			m.GBContactID = model.Int64Ptr(*old.GBContactID)
			out.Contact = true
		} else {
			out.ContactHeldBy = held
		}
	}
	if m.GBMemberID == nil && old.GBMemberID != nil {
		if held, free := members.take(*old.GBMemberID, m.MnID); free {
			m.GBMemberID = model.Int64Ptr(*old.GBMemberID)
			out.Member = true
		} else {
			out.MemberHeldBy = held
		}
	}
	return out
}
