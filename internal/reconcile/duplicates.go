package reconcile

import (
	"fmt"
	"time"

	"github.com/sells-group/mentor-sync/internal/model"
	"github.com/sells-group/mentor-sync/internal/normalize"
)

// DetectDuplicateContacts reports clusters of contacts that look like the
// same person. Phone clusters are always reported. Email clusters are
// reported unless every member already appears in a reported phone cluster.
// Clusters are emitted in order of first appearance, phones before emails.
// Nothing is merged.
func DetectDuplicateContacts(contacts []model.RawContact, at time.Time) []model.Conflict {
	phoneOrder, byPhone := groupContacts(contacts, func(c model.RawContact) string {
		return normalize.PhoneOrEmpty(c.Phone)
	})
	emailOrder, byEmail := groupContacts(contacts, func(c model.RawContact) string {
		return normalize.EmailOrEmpty(c.Email)
	})

	var out []model.Conflict
	covered := make(map[int64]struct{})
	for _, phone := range phoneOrder {
		ids := byPhone[phone]
		if len(ids) < 2 {
			continue
		}
		for _, id := range ids {
			covered[id] = struct{}{}
		}
		out = append(out, duplicateConflict("phone", phone, ids, at))
	}
	for _, email := range emailOrder {
		ids := byEmail[email]
		if len(ids) < 2 || allCovered(ids, covered) {
			continue
		}
		out = append(out, duplicateConflict("email", email, ids, at))
	}
	return out
}

func groupContacts(contacts []model.RawContact, key func(model.RawContact) string) ([]string, map[string][]int64) {
	var order []string
	groups := make(map[string][]int64)
	for _, c := range contacts {
		k := key(c)
		if k == "" {
			continue
		}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], c.ContactID)
	}
	return order, groups
}

func allCovered(ids []int64, covered map[int64]struct{}) bool {
	for _, id := range ids {
		if _, ok := covered[id]; !ok {
			return false
		}
	}
	return true
}

func duplicateConflict(key, value string, ids []int64, at time.Time) model.Conflict {
	return model.Conflict{
		Severity: model.SeverityWarning,
		Type:     model.ConflictDuplicateContact,
		Message:  fmt.Sprintf("%d contacts share %s %s: %v", len(ids), key, value, ids),
		Payload: map[string]any{
			"key":         key,
			"value":       value,
			"contact_ids": ids,
		},
		CreatedAt: at,
	}
}
