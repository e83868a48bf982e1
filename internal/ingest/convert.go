package ingest

import (
	"strings"

	"github.com/sells-group/mentor-sync/internal/model"
	"github.com/sells-group/mentor-sync/pkg/givebutter"
	"github.com/sells-group/mentor-sync/pkg/jotform"
)

// deletedStatus marks submissions removed in the form builder.
const deletedStatus = "DELETED"

func names(s jotform.Submission, f jotform.FormFields) (first, middle, last string) {
	first, middle, last = s.Name(f.Name)
	if v := s.Text(f.FirstName); v != "" {
		first = v
	}
	if v := s.Text(f.MiddleName); v != "" {
		middle = v
	}
	if v := s.Text(f.LastName); v != "" {
		last = v
	}
	return first, middle, last
}

// SignupFromSubmission maps a signup form submission onto a raw signup.
// Values are stored as submitted; normalization happens at reconcile time.
func SignupFromSubmission(s jotform.Submission, f jotform.FormFields) model.RawSignup {
	first, middle, last := names(s, f)
	personal := s.Text(f.PersonalEmail)
	if personal == "" {
		personal = s.Text(f.Email)
	}
	return model.RawSignup{
		SubmissionID:  s.ID,
		MnID:          s.Text(f.MnID),
		FirstName:     first,
		MiddleName:    middle,
		LastName:      last,
		PreferredName: s.Text(f.PreferredName),
		Phone:         s.Text(f.Phone),
		PersonalEmail: personal,
		UWEmail:       s.Text(f.UWEmail),
		SubmittedAt:   s.CreatedAt,
	}
}

// SetupFromSubmission maps a setup form submission onto a raw setup record.
func SetupFromSubmission(s jotform.Submission, f jotform.FormFields) model.RawSetupRecord {
	first, _, last := names(s, f)
	email := s.Text(f.Email)
	if email == "" {
		email = s.Text(f.PersonalEmail)
	}
	return model.RawSetupRecord{
		SubmissionID: s.ID,
		MnID:         s.Text(f.MnID),
		FirstName:    first,
		LastName:     last,
		Phone:        s.Text(f.Phone),
		Email:        email,
		SubmittedAt:  s.CreatedAt,
	}
}

// MemberFromAPI maps a campaign member onto a roster row.
func MemberFromAPI(m givebutter.Member) model.RawFundraisingMember {
	return model.RawFundraisingMember{
		MemberID:  m.ID,
		FirstName: strings.TrimSpace(m.FirstName),
		LastName:  strings.TrimSpace(m.LastName),
		Phone:     strings.TrimSpace(m.Phone),
		Email:     strings.TrimSpace(m.Email),
		Amount:    m.Raised,
		Goal:      m.Goal,
		Donors:    m.Donors,
	}
}

// ContactFromAPI maps a platform contact onto a contact export row.
func ContactFromAPI(c givebutter.Contact) model.RawContact {
	tags := c.Tags
	if tags == nil {
		tags = []string{}
	}
	return model.RawContact{
		ContactID:  c.ID,
		ExternalID: strings.TrimSpace(c.ExternalID),
		FirstName:  strings.TrimSpace(c.FirstName),
		LastName:   strings.TrimSpace(c.LastName),
		Phone:      strings.TrimSpace(c.Phone()),
		Email:      strings.TrimSpace(c.Email()),
		Tags:       tags,
	}
}

func convertAll[S, T any](in []S, fn func(S) T) []T {
	out := make([]T, 0, len(in))
	for _, v := range in {
		out = append(out, fn(v))
	}
	return out
}

func activeSubmissions(subs []jotform.Submission) []jotform.Submission {
	out := subs[:0:0]
	for _, s := range subs {
		if strings.EqualFold(s.Status, deletedStatus) {
			continue
		}
		out = append(out, s)
	}
	return out
}
