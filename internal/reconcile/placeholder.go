package reconcile

import (
	"fmt"
	"strings"
	"time"

	"github.com/sells-group/mentor-sync/internal/model"
	"github.com/sells-group/mentor-sync/internal/normalize"
)

// PlaceholderPrefix starts every generated identifier.
const PlaceholderPrefix = "TEMP-"

// Placeholders hands out identifiers for signups that arrived without one.
// A Placeholders value belongs to exactly one run; there is no shared
// counter, so concurrent runs cannot interfere with each other.
type Placeholders struct {
	next int
}

// NewPlaceholders returns a generator whose first identifier uses start.
func NewPlaceholders(start int) *Placeholders {
	if start < 1 {
		start = 1
	}
	return &Placeholders{next: start}
}

// Next returns the next identifier and advances the counter.
func (p *Placeholders) Next() string {
	id := fmt.Sprintf("%s%04d", PlaceholderPrefix, p.next)
	p.next++
	return id
}

// IsPlaceholder reports whether id was generated by a Placeholders.
func IsPlaceholder(id string) bool {
	return strings.HasPrefix(id, PlaceholderPrefix)
}

// Person is a signup that passed identifier validation.
type Person struct {
	Signup      model.RawSignup
	Phone       string // normalized; set by Dedupe
	Placeholder bool
}

// AssignIdentifiers trims every MnID and gives blank ones a placeholder,
// recording one critical conflict per placeholder issued. That conflict is
// the only one a placeholder signup gets if Dedupe later drops it for an
// invalid phone. Input order is
// preserved, which keeps placeholder assignment deterministic.
func AssignIdentifiers(signups []model.RawSignup, gen *Placeholders, sink *Sink) []Person {
	people := make([]Person, 0, len(signups))
	for _, s := range signups {
		s.MnID = strings.TrimSpace(s.MnID)
		p := Person{Signup: s}
		if s.MnID == "" {
			p.Signup.MnID = gen.Next()
			p.Placeholder = true
			msg := fmt.Sprintf("signup %s has no mentor id; assigned placeholder %s",
				s.SubmissionID, p.Signup.MnID)
			if _, ok := normalize.Phone(s.Phone); !ok {
				msg = fmt.Sprintf("signup %s has no mentor id and phone %q has fewer than 10 digits; dropped",
					s.SubmissionID, s.Phone)
			}
			sink.Add(model.Conflict{
				Severity: model.SeverityCritical,
				Type:     model.ConflictMissingIdentifier,
				MnID:     p.Signup.MnID,
				Message:  msg,
				Payload:  signupPayload(s),
			})
		}
		people = append(people, p)
	}
	return people
}

func signupPayload(s model.RawSignup) map[string]any {
	payload := map[string]any{
		"submission_id":  s.SubmissionID,
		"mn_id":          s.MnID,
		"first_name":     s.FirstName,
		"last_name":      s.LastName,
		"phone":          s.Phone,
		"personal_email": s.PersonalEmail,
		"uw_email":       s.UWEmail,
	}
	if !s.SubmittedAt.IsZero() {
		payload["submitted_at"] = s.SubmittedAt.UTC().Format(time.RFC3339)
	}
	return payload
}
