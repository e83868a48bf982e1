package ingest

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/mentor-sync/pkg/givebutter"
	"github.com/sells-group/mentor-sync/pkg/jotform"
)

// --- Jotform Mock ---

type mockJotform struct {
	mock.Mock
}

func (m *mockJotform) User(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *mockJotform) SubmissionsPage(ctx context.Context, formID string, offset, limit int) ([]jotform.Submission, error) {
	args := m.Called(ctx, formID, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]jotform.Submission), args.Error(1)
}

// --- Givebutter Mock ---

type mockGivebutter struct {
	mock.Mock
}

func (m *mockGivebutter) Ping(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *mockGivebutter) ContactsPage(ctx context.Context, page int) (*givebutter.Page[givebutter.Contact], error) {
	args := m.Called(ctx, page)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*givebutter.Page[givebutter.Contact]), args.Error(1)
}

func (m *mockGivebutter) MembersPage(ctx context.Context, campaignID string, page int) (*givebutter.Page[givebutter.Member], error) {
	args := m.Called(ctx, campaignID, page)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*givebutter.Page[givebutter.Member]), args.Error(1)
}

func (m *mockGivebutter) AllContacts(ctx context.Context) ([]givebutter.Contact, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]givebutter.Contact), args.Error(1)
}

func (m *mockGivebutter) AllMembers(ctx context.Context, campaignID string) ([]givebutter.Member, error) {
	args := m.Called(ctx, campaignID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]givebutter.Member), args.Error(1)
}
