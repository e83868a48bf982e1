package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/mentor-sync/internal/model"
)

func TestComputeStatus_Exhaustive(t *testing.T) {
	want := map[StatusInput]model.Status{
		{FullyFunded: true, IsMember: true, HasSetup: true}:    model.StatusComplete,
		{FullyFunded: true, IsMember: true, HasSetup: false}:   model.StatusComplete,
		{FullyFunded: true, IsMember: false, HasSetup: true}:   model.StatusComplete,
		{FullyFunded: true, IsMember: false, HasSetup: false}:  model.StatusComplete,
		{FullyFunded: false, IsMember: true, HasSetup: true}:   model.StatusNeedsFundraising,
		{FullyFunded: false, IsMember: true, HasSetup: false}:  model.StatusNeedsFundraising,
		{FullyFunded: false, IsMember: false, HasSetup: true}:  model.StatusNeedsPage,
		{FullyFunded: false, IsMember: false, HasSetup: false}: model.StatusNeedsSetup,
	}

	seen := make(map[model.Status]bool)
	for _, funded := range []bool{true, false} {
		for _, member := range []bool{true, false} {
			for _, setup := range []bool{true, false} {
				in := StatusInput{FullyFunded: funded, IsMember: member, HasSetup: setup}
				got := ComputeStatus(in)
				assert.Equal(t, want[in], got, "%+v", in)
				assert.Contains(t, model.AllStatuses, got)
				seen[got] = true
			}
		}
	}
	assert.Len(t, seen, len(model.AllStatuses))
}

func TestFullyFunded(t *testing.T) {
	assert.True(t, FullyFunded(75, 75))
	assert.True(t, FullyFunded(80, 75))
	assert.False(t, FullyFunded(74.99, 75))
	assert.False(t, FullyFunded(0, 75))
}
