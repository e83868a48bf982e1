package reconcile

import (
	"github.com/sells-group/mentor-sync/internal/model"
	"github.com/sells-group/mentor-sync/internal/normalize"
)

// ContactIndex provides O(1) phone and email lookups over the full contact
// snapshot. It is immutable once built and safe for concurrent readers.
type ContactIndex struct {
	byPhone map[string]*model.RawContact
	byEmail map[string][]*model.RawContact
	size    int
}

// NewContactIndex indexes contacts. The phone map keeps the first contact
// seen for each phone; later contacts with the same phone are duplicates
// and are reported by DetectDuplicateContacts instead. The email map keeps
// every contact in discovery order. The returned index points into contacts,
// which must not be modified afterwards.
func NewContactIndex(contacts []model.RawContact) *ContactIndex {
	ix := &ContactIndex{
		byPhone: make(map[string]*model.RawContact, len(contacts)),
		byEmail: make(map[string][]*model.RawContact, len(contacts)),
		size:    len(contacts),
	}
	for i := range contacts {
		c := &contacts[i]
		if phone, ok := normalize.Phone(c.Phone); ok {
			if _, exists := ix.byPhone[phone]; !exists {
				ix.byPhone[phone] = c
			}
		}
		if email, ok := normalize.Email(c.Email); ok {
			ix.byEmail[email] = append(ix.byEmail[email], c)
		}
	}
	return ix
}

// ByPhone returns the first contact indexed under a normalized phone.
func (ix *ContactIndex) ByPhone(phone string) (*model.RawContact, bool) {
	if phone == "" {
		return nil, false
	}
	c, ok := ix.byPhone[phone]
	return c, ok
}

// ByEmail returns every contact indexed under a normalized email.
func (ix *ContactIndex) ByEmail(email string) []*model.RawContact {
	if email == "" {
		return nil
	}
	return ix.byEmail[email]
}

// Len returns the number of contacts indexed.
func (ix *ContactIndex) Len() int { return ix.size }

// keyIndex maps normalized keys to the first record carrying them.
type keyIndex[T any] struct {
	byKey map[string]*T
}

func newKeyIndex[T any](rows []T, keys func(*T) []string) keyIndex[T] {
	ix := keyIndex[T]{byKey: make(map[string]*T, len(rows)*2)}
	for i := range rows {
		r := &rows[i]
		for _, k := range keys(r) {
			if k == "" {
				continue
			}
			if _, exists := ix.byKey[k]; !exists {
				ix.byKey[k] = r
			}
		}
	}
	return ix
}

// first returns the record for the earliest key that hits and that key's
// position, or nil and -1.
func (ix keyIndex[T]) first(keys ...string) (*T, int) {
	for i, k := range keys {
		if k == "" {
			continue
		}
		if r, ok := ix.byKey[k]; ok {
			return r, i
		}
	}
	return nil, -1
}

// Key prefixes keep phone, email and identifier keys apart in one map.
const (
	keyPhone = "p:"
	keyEmail = "e:"
	keyMnID  = "id:"
)

func phoneKey(raw string) string {
	if p, ok := normalize.Phone(raw); ok {
		return keyPhone + p
	}
	return ""
}

func emailKey(raw string) string {
	if e, ok := normalize.Email(raw); ok {
		return keyEmail + e
	}
	return ""
}

// RosterIndex attaches fundraising-roster members and setup-form records to
// a person. Each record is reachable by its normalized phone and email (and
// setup records by mentor id); the first record seen for a key wins. The
// index does not stop two people reaching the same record; Reconcile
// settles that.
type RosterIndex struct {
	members keyIndex[model.RawFundraisingMember]
	setups  keyIndex[model.RawSetupRecord]
}

// NewRosterIndex indexes members and setups. The index points into both
// slices, which must not be modified afterwards.
func NewRosterIndex(members []model.RawFundraisingMember, setups []model.RawSetupRecord) *RosterIndex {
	return &RosterIndex{
		members: newKeyIndex(members, func(m *model.RawFundraisingMember) []string {
			return []string{phoneKey(m.Phone), emailKey(m.Email)}
		}),
		setups: newKeyIndex(setups, func(s *model.RawSetupRecord) []string {
			var id string
			if s.MnID != "" {
				id = keyMnID + s.MnID
			}
			return []string{id, phoneKey(s.Phone), emailKey(s.Email)}
		}),
	}
}

// personKeys lists lookup keys in priority order: phone, personal email,
// institutional email, then the matched contact's email.
func personKeys(p Person, contact *model.RawContact) []string {
	var phone string
	if p.Phone != "" {
		phone = keyPhone + p.Phone
	}
	keys := []string{
		phone,
		emailKey(p.Signup.PersonalEmail),
		emailKey(p.Signup.UWEmail),
	}
	if contact != nil {
		keys = append(keys, emailKey(contact.Email))
	}
	return keys
}

// Member returns the roster member for p, if any, and the position of the
// key that found it. Lower positions are stronger matches.
func (ix *RosterIndex) Member(p Person, contact *model.RawContact) (*model.RawFundraisingMember, int) {
	return ix.members.first(personKeys(p, contact)...)
}

// Setup returns the setup-form record for p, if any, and the position of
// the key that found it. A setup record carrying the person's mentor id wins
// over phone or email matches.
func (ix *RosterIndex) Setup(p Person, contact *model.RawContact) (*model.RawSetupRecord, int) {
	keys := personKeys(p, contact)
	if !p.Placeholder {
		keys = append([]string{keyMnID + p.Signup.MnID}, keys...)
	} else {
		keys = append([]string{""}, keys...)
	}
	return ix.setups.first(keys...)
}
