package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/mentor-sync/internal/model"
)

func person(mnID, phone, personal, uw string) Person {
	return Person{
		Signup: model.RawSignup{SubmissionID: "sub-" + mnID, MnID: mnID, Phone: phone, PersonalEmail: personal, UWEmail: uw},
		Phone:  phone,
	}
}

func TestContactIndex_FirstPhoneWins(t *testing.T) {
	ix := NewContactIndex([]model.RawContact{
		{ContactID: 1, Phone: "404-555-1234", Email: "A@B.com"},
		{ContactID: 2, Phone: "+1 (404) 555 1234", Email: "a@b.com "},
		{ContactID: 3, Phone: "12", Email: ""},
	})

	c, ok := ix.ByPhone("+14045551234")
	require.True(t, ok)
	assert.Equal(t, int64(1), c.ContactID)

	byEmail := ix.ByEmail("a@b.com")
	require.Len(t, byEmail, 2)
	assert.Equal(t, int64(1), byEmail[0].ContactID)
	assert.Equal(t, int64(2), byEmail[1].ContactID)

	_, ok = ix.ByPhone("")
	assert.False(t, ok)
	assert.Nil(t, ix.ByEmail(""))
	assert.Equal(t, 3, ix.Len())
}

func TestMatch_PhoneIsFinal(t *testing.T) {
	m := NewMatcher(NewContactIndex([]model.RawContact{
		{ContactID: 10, Email: "me@x.com"},
		{ContactID: 11, Phone: "4045551234"},
	}), "")

	res := m.Match(person("MN001", "+14045551234", "me@x.com", ""))
	require.NotNil(t, res.Contact)
	assert.Equal(t, int64(11), res.Contact.ContactID)
	assert.Equal(t, MatchPhone, res.Method)
	assert.Empty(t, res.Conflicts)
}

func TestMatch_NoCandidates(t *testing.T) {
	m := NewMatcher(NewContactIndex(nil), "")
	res := m.Match(person("MN001", "+14045551234", "me@x.com", "me@uw.edu"))
	assert.Nil(t, res.Contact)
	assert.Equal(t, MatchNone, res.Method)
	assert.Empty(t, res.Conflicts)
}

func TestMatch_PersonalEmailBeforeUW(t *testing.T) {
	m := NewMatcher(NewContactIndex([]model.RawContact{
		{ContactID: 20, Email: "me@uw.edu", Phone: "2065550000"},
		{ContactID: 21, Email: "me@x.com"},
	}), "")

	res := m.Match(person("MN001", "+14045551234", " ME@x.com", "me@uw.edu"))
	require.NotNil(t, res.Contact)
	assert.Equal(t, int64(21), res.Contact.ContactID)
	assert.Equal(t, MatchEmail, res.Method)
	assert.Empty(t, res.Conflicts)
}

func TestMatch_FallsBackToUWEmail(t *testing.T) {
	m := NewMatcher(NewContactIndex([]model.RawContact{
		{ContactID: 20, Email: "me@uw.edu"},
	}), "")

	res := m.Match(person("MN001", "+14045551234", "other@x.com", "me@uw.edu"))
	require.NotNil(t, res.Contact)
	assert.Equal(t, int64(20), res.Contact.ContactID)
}

func TestMatch_OnlyPhoneBearingCandidateWins(t *testing.T) {
	// Regardless of id order, the single contact with a phone is chosen.
	orders := [][]int64{{1, 2, 3}, {3, 2, 1}, {2, 3, 1}}
	for _, order := range orders {
		var contacts []model.RawContact
		for _, id := range order {
			c := model.RawContact{ContactID: id, Email: "a@b.com", FirstName: "Ada", LastName: "Lovelace"}
			if id == 1 {
				c.Phone = "2065551111"
			}
			contacts = append(contacts, c)
		}
		m := NewMatcher(NewContactIndex(contacts), "")
		res := m.Match(person("MN001", "+14045551234", "a@b.com", ""))
		require.NotNil(t, res.Contact)
		assert.Equal(t, int64(1), res.Contact.ContactID, "order %v", order)
		assert.Equal(t, RuleHasPhone, res.DecidedBy)
		assert.ElementsMatch(t, []int64{1, 2, 3}, res.Candidates)

		require.Len(t, res.Conflicts, 1)
		c := res.Conflicts[0]
		assert.Equal(t, model.SeverityWarning, c.Severity)
		assert.Equal(t, model.ConflictMultipleCandidates, c.Type)
		assert.Equal(t, int64(1), c.Payload["selected_id"])
	}
}

func TestMatch_PhoneOutranksRealName(t *testing.T) {
	// Phone presence is evaluated before name quality, so the auto-named
	// contact with a phone beats the real-named contact without one.
	m := NewMatcher(NewContactIndex([]model.RawContact{
		{ContactID: 100, Email: "a@b.com", FirstName: "Ada", LastName: "Lovelace"},
		{ContactID: 50, Email: "a@b.com", FirstName: "AB1234", LastName: "CD5678", Phone: "2065551111"},
	}), "")

	res := m.Match(person("MN001", "+14045551234", "a@b.com", ""))
	require.NotNil(t, res.Contact)
	assert.Equal(t, int64(50), res.Contact.ContactID)
	assert.Equal(t, RuleHasPhone, res.DecidedBy)
}

func TestMatch_TieBreakRules(t *testing.T) {
	tests := []struct {
		name     string
		mnID     string
		contacts []model.RawContact
		want     int64
		rule     string
	}{
		{
			name: "external id first",
			mnID: "MN001",
			contacts: []model.RawContact{
				{ContactID: 9, Email: "a@b.com", Phone: "2065551111", FirstName: "Ada", LastName: "L"},
				{ContactID: 3, Email: "a@b.com", ExternalID: " mn001 ", FirstName: "XY1", LastName: "ZZ2"},
			},
			want: 3,
			rule: RuleExternalID,
		},
		{
			name: "real name over generated",
			mnID: "MN001",
			contacts: []model.RawContact{
				{ContactID: 9, Email: "a@b.com", FirstName: "XY12", LastName: "zz34"},
				{ContactID: 3, Email: "a@b.com", FirstName: "Ada", LastName: "Lovelace"},
			},
			want: 3,
			rule: RuleRealName,
		},
		{
			name: "larger id last",
			mnID: "MN001",
			contacts: []model.RawContact{
				{ContactID: 3, Email: "a@b.com", FirstName: "Ada", LastName: "Lovelace"},
				{ContactID: 9, Email: "a@b.com", FirstName: "Ada", LastName: "Lovelace"},
			},
			want: 9,
			rule: RuleNewestID,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMatcher(NewContactIndex(tt.contacts), "")
			res := m.Match(person(tt.mnID, "+14045551234", "a@b.com", ""))
			require.NotNil(t, res.Contact)
			assert.Equal(t, tt.want, res.Contact.ContactID)
			assert.Equal(t, tt.rule, res.DecidedBy)
		})
	}
}

func TestMatch_PlaceholderIgnoresExternalID(t *testing.T) {
	m := NewMatcher(NewContactIndex([]model.RawContact{
		{ContactID: 3, Email: "a@b.com", ExternalID: "TEMP-0001"},
		{ContactID: 9, Email: "a@b.com"},
	}), "")
	p := person("TEMP-0001", "+14045551234", "a@b.com", "")
	p.Placeholder = true

	res := m.Match(p)
	require.NotNil(t, res.Contact)
	assert.Equal(t, int64(9), res.Contact.ContactID)
	assert.Equal(t, RuleNewestID, res.DecidedBy)
}

func TestMatch_Withdrawn(t *testing.T) {
	contacts := []model.RawContact{
		{ContactID: 1, Phone: "4045551234", Tags: []string{"Mentor", " dropped "}},
		{ContactID: 2, Email: "w@x.com", Tags: []string{"Dropped"}},
	}
	m := NewMatcher(NewContactIndex(contacts), "Dropped")

	byPhone := m.Match(person("MN001", "+14045551234", "", ""))
	assert.True(t, byPhone.Withdrawn)
	require.Len(t, byPhone.Conflicts, 1)
	assert.Equal(t, model.SeverityInfo, byPhone.Conflicts[0].Severity)
	assert.Equal(t, model.ConflictWithdrawn, byPhone.Conflicts[0].Type)
	assert.Equal(t, int64(1), byPhone.Conflicts[0].Payload["contact_id"])

	byEmail := m.Match(person("MN002", "+12065550000", "w@x.com", ""))
	assert.True(t, byEmail.Withdrawn)
	require.Len(t, byEmail.Conflicts, 1)
	assert.Equal(t, model.SeverityWarning, byEmail.Conflicts[0].Severity)
	assert.Equal(t, "email", byEmail.Conflicts[0].Payload["matched_by"])
}

func TestIsAutoGeneratedName(t *testing.T) {
	assert.True(t, IsAutoGeneratedName("AB1234", "CD99"))
	assert.True(t, IsAutoGeneratedName(" ab12 ", "cd3"))
	assert.False(t, IsAutoGeneratedName("AB1234", "Lovelace"))
	assert.False(t, IsAutoGeneratedName("ABC123", "CD99"))
	assert.False(t, IsAutoGeneratedName("", ""))
}
