package reconcile

import (
	"fmt"

	"github.com/sells-group/mentor-sync/internal/model"
	"github.com/sells-group/mentor-sync/internal/normalize"
)

// Dedupe collapses people sharing a normalized phone into the most recently
// submitted one. People whose phone cannot be normalized are dropped with an
// error conflict, except placeholder people, whose missing_identifier
// conflict already covers the record. Every discarded signup produces exactly one warning that
// names both the kept and the discarded submission.
//
// Survivors are then collapsed by MnID under the same rule, so that one
// identifier never maps to two canonical rows.
//
// Ties (equal or missing timestamps) keep the signup encountered first, and
// the output keeps the position of each group's first member.
func Dedupe(people []Person, sink *Sink) []Person {
	valid := make([]Person, 0, len(people))
	for _, p := range people {
		phone, ok := normalize.Phone(p.Signup.Phone)
		if !ok {
			if p.Placeholder {
				// already reported as missing_identifier
				continue
			}
			sink.Add(model.Conflict{
				Severity: model.SeverityError,
				Type:     model.ConflictInvalidPhone,
				MnID:     p.Signup.MnID,
				Message: fmt.Sprintf("signup %s dropped: phone %q has fewer than 10 digits",
					p.Signup.SubmissionID, p.Signup.Phone),
				Payload: signupPayload(p.Signup),
			})
			continue
		}
		p.Phone = phone
		valid = append(valid, p)
	}

	byPhone := collapse(valid, func(p Person) string { return p.Phone }, func(kept, dropped Person) model.Conflict {
		return model.Conflict{
			Severity: model.SeverityWarning,
			Type:     model.ConflictDuplicateSignup,
			MnID:     dropped.Signup.MnID,
			Message: fmt.Sprintf("signup %s superseded by %s (same phone %s)",
				dropped.Signup.SubmissionID, kept.Signup.SubmissionID, kept.Phone),
			Payload: duplicatePayload(kept, dropped, "phone", kept.Phone),
		}
	}, sink)

	return collapse(byPhone, func(p Person) string { return p.Signup.MnID }, func(kept, dropped Person) model.Conflict {
		return model.Conflict{
			Severity: model.SeverityWarning,
			Type:     model.ConflictDuplicateIdentifier,
			MnID:     kept.Signup.MnID,
			Message: fmt.Sprintf("signup %s superseded by %s (same mentor id, phones %s / %s)",
				dropped.Signup.SubmissionID, kept.Signup.SubmissionID, dropped.Phone, kept.Phone),
			Payload: duplicatePayload(kept, dropped, "mn_id", kept.Signup.MnID),
		}
	}, sink)
}

// collapse keeps one person per key, preferring the later submission.
func collapse(people []Person, key func(Person) string, conflict func(kept, dropped Person) model.Conflict, sink *Sink) []Person {
	slot := make(map[string]int, len(people))
	out := make([]Person, 0, len(people))
	for _, p := range people {
		k := key(p)
		i, seen := slot[k]
		if !seen {
			slot[k] = len(out)
			out = append(out, p)
			continue
		}
		cur := out[i]
		if supersedes(p, cur) {
			out[i] = p
			sink.Add(conflict(p, cur))
		} else {
			sink.Add(conflict(cur, p))
		}
	}
	return out
}

// supersedes reports whether candidate was submitted strictly after current.
// A present timestamp beats a missing one; equal or missing timestamps keep
// the current (first seen) signup.
func supersedes(candidate, current Person) bool {
	return candidate.Signup.SubmittedAt.After(current.Signup.SubmittedAt)
}

func duplicatePayload(kept, dropped Person, key, value string) map[string]any {
	return map[string]any{
		"key":                     key,
		"value":                   value,
		"kept_submission_id":      kept.Signup.SubmissionID,
		"discarded_submission_id": dropped.Signup.SubmissionID,
		"discarded":               signupPayload(dropped.Signup),
	}
}
