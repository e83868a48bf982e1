package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLite_Ping(t *testing.T) {
	s := newTestSQLite(t)
	assert.NoError(t, s.Ping(context.Background()))
}

func TestSQLite_MigrateIdempotent(t *testing.T) {
	s := newTestSQLite(t)
	require.NoError(t, s.Migrate(context.Background()))
}

func TestSQLite_EmptyUpsert(t *testing.T) {
	s := newTestSQLite(t)
	n, err := s.UpsertSignups(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestUpsertStatement(t *testing.T) {
	got := upsertStatement(identityTable, "gb_contact_id", "gb_member_id")
	assert.Equal(t,
		"INSERT INTO mentor_identities (mn_id, gb_contact_id, gb_member_id, updated_at) VALUES (?, ?, ?, ?) "+
			"ON CONFLICT (mn_id) DO UPDATE SET "+
			"gb_contact_id = COALESCE(excluded.gb_contact_id, mentor_identities.gb_contact_id), "+
			"gb_member_id = COALESCE(excluded.gb_member_id, mentor_identities.gb_member_id), "+
			"updated_at = excluded.updated_at",
		got)
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "?", placeholders(1))
	assert.Equal(t, "?, ?, ?", placeholders(3))
}
