package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/mentor-sync/internal/model"
)

func TestDetectDuplicateContacts(t *testing.T) {
	contacts := []model.RawContact{
		{ContactID: 1, Phone: "4045551234", Email: "a@b.com"},
		{ContactID: 2, Phone: "(404) 555-1234", Email: "A@B.com"},
		{ContactID: 3, Phone: "2065550000", Email: "c@d.com"},
		{ContactID: 4, Email: "c@d.com"},
		{ContactID: 5, Phone: "123", Email: "solo@x.com"},
	}

	got := DetectDuplicateContacts(contacts, t0)
	require.Len(t, got, 2)

	assert.Equal(t, model.ConflictDuplicateContact, got[0].Type)
	assert.Equal(t, model.SeverityWarning, got[0].Severity)
	assert.Equal(t, "phone", got[0].Payload["key"])
	assert.Equal(t, []int64{1, 2}, got[0].Payload["contact_ids"])

	// a@b.com is fully covered by the phone cluster; c@d.com is not.
	assert.Equal(t, "email", got[1].Payload["key"])
	assert.Equal(t, "c@d.com", got[1].Payload["value"])
	assert.Equal(t, []int64{3, 4}, got[1].Payload["contact_ids"])
	assert.Equal(t, t0, got[1].CreatedAt)
}

func TestDetectDuplicateContacts_PartialCoverage(t *testing.T) {
	contacts := []model.RawContact{
		{ContactID: 1, Phone: "4045551234", Email: "a@b.com"},
		{ContactID: 2, Phone: "4045551234", Email: "a@b.com"},
		{ContactID: 3, Email: "a@b.com"},
	}
	got := DetectDuplicateContacts(contacts, t0)
	require.Len(t, got, 2)
	assert.Equal(t, []int64{1, 2, 3}, got[1].Payload["contact_ids"])
}

func TestDetectDuplicateContacts_None(t *testing.T) {
	got := DetectDuplicateContacts([]model.RawContact{
		{ContactID: 1, Phone: "4045551234", Email: "a@b.com"},
		{ContactID: 2, Phone: "4045551235", Email: "b@b.com"},
	}, t0)
	assert.Empty(t, got)
}
