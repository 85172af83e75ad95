package instance

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/widgetd/internal/shared/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(filepath.Join(t.TempDir(), "db", ".widget.db"))
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	inst := newInstance("u1:w1", "w1", time.Now())
	inst.content = types.Content{"city": "Seoul"}
	require.NoError(t, s.Upsert(ctx, "viewer", inst))
	assert.True(t, inst.stored)

	records, err := s.Load(ctx, "viewer")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "w1", records[0].WidgetID)
	assert.Equal(t, "u1:w1", records[0].InstanceID)
	assert.Equal(t, types.Content{"city": "Seoul"}, records[0].Content)

	// Second upsert updates content in place
	inst.content = types.Content{"city": "Busan"}
	require.NoError(t, s.Upsert(ctx, "viewer", inst))
	records, err = s.Load(ctx, "viewer")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Busan", records[0].Content["city"])
}

func TestStoreScopedByViewer(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Upsert(ctx, "viewer-a", newInstance("a:w", "w", time.Now())))
	require.NoError(t, s.Upsert(ctx, "viewer-b", newInstance("b:w", "w", time.Now())))

	records, err := s.Load(ctx, "viewer-a")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "a:w", records[0].InstanceID)
}

func TestStoreNullContent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Upsert(ctx, "viewer", newInstance("u1:w1", "w1", time.Now())))
	records, err := s.Load(ctx, "viewer")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Nil(t, records[0].Content)
}

func TestStoreLoadKeepsRowsWithCorruptContent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	good := newInstance("u1:w1", "w1", time.Now())
	good.content = types.Content{"city": "Seoul"}
	require.NoError(t, s.Upsert(ctx, "viewer", good))
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO widget_instance (widget_id, viewer_id, content_info, instance_id) VALUES (?, ?, ?, ?)`,
		"w2", "viewer", "not-json", "x:w2")
	require.NoError(t, err)

	records, err := s.Load(ctx, "viewer")
	require.NoError(t, err)
	require.Len(t, records, 2)

	byID := map[string]Record{}
	for _, rec := range records {
		byID[rec.InstanceID] = rec
	}
	assert.NoError(t, byID["u1:w1"].DecodeErr)
	assert.Equal(t, "Seoul", byID["u1:w1"].Content["city"])
	assert.Error(t, byID["x:w2"].DecodeErr)
	assert.Nil(t, byID["x:w2"].Content)
	assert.Equal(t, "w2", byID["x:w2"].WidgetID)
}

func TestStoreDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	inst := newInstance("u1:w1", "w1", time.Now())
	require.NoError(t, s.Upsert(ctx, "viewer", inst))
	require.NoError(t, s.Delete(ctx, inst))
	assert.False(t, inst.stored)

	records, err := s.Load(ctx, "viewer")
	require.NoError(t, err)
	assert.Empty(t, records)

	// Missing rows are a no-op
	require.NoError(t, s.Delete(ctx, inst))
}

func TestStoreUpsertAfterExternalDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	inst := newInstance("u1:w1", "w1", time.Now())
	require.NoError(t, s.Upsert(ctx, "viewer", inst))
	require.NoError(t, s.Delete(ctx, inst))
	inst.stored = true

	require.NoError(t, s.Upsert(ctx, "viewer", inst))
	records, err := s.Load(ctx, "viewer")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestStoreOpenFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	s := NewStore(filepath.Join(blocker, "sub", ".widget.db"))
	_, err := s.Load(context.Background(), "viewer")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIO)

	_, err = NewStore("").Load(context.Background(), "viewer")
	assert.ErrorIs(t, err, ErrIO)
}
