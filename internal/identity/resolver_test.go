package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quiz-session-engine/internal/domain"
	"quiz-session-engine/internal/infra/memory"
	"quiz-session-engine/internal/session"
)

func newStoreWithBlob(t *testing.T, blob string) (*session.Store, *memory.KV) {
	t.Helper()
	volatile := memory.NewKV()
	durable := memory.NewKV()
	store := session.NewStore(volatile, durable, nil)
	if blob != "" {
		require.NoError(t, volatile.Set(context.Background(), session.KeyIdentity, []byte(blob)))
	}
	return store, volatile
}

func TestResolveMissingIdentity(t *testing.T) {
	store, _ := newStoreWithBlob(t, "")
	_, err := NewResolver(store, nil).Resolve(context.Background())
	assert.ErrorIs(t, err, domain.ErrIdentityMissing)
}

func TestResolveCoercesStringIDs(t *testing.T) {
	store, _ := newStoreWithBlob(t, `{"playerId":"42","quizId":"7","name":"Alice","team":"Red"}`)
	id, err := NewResolver(store, nil).Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), id.PlayerID)
	assert.Equal(t, int64(7), id.QuizID)
	assert.Equal(t, "Alice", id.Name)
	assert.Equal(t, "Red", id.Team)
}

func TestResolveAcceptsNumericIDs(t *testing.T) {
	store, _ := newStoreWithBlob(t, `{"playerId":42,"quizId":7}`)
	id, err := NewResolver(store, nil).Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), id.PlayerID)
}

func TestResolveReplacesPlaceholderWithServerID(t *testing.T) {
	// A Date.now()-shaped placeholder with the real id alongside.
	store, _ := newStoreWithBlob(t, `{"playerId":1719242400123,"serverPlayerId":42,"quizId":7}`)
	id, err := NewResolver(store, nil).Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), id.PlayerID, "placeholder must never be submitted")
}

func TestResolvePlaceholderWithoutServerIDFails(t *testing.T) {
	store, _ := newStoreWithBlob(t, `{"playerId":1719242400123,"quizId":7}`)
	_, err := NewResolver(store, nil).Resolve(context.Background())
	assert.ErrorIs(t, err, domain.ErrIdentityInvalid)
}

func TestResolveRejectsIncompleteIdentity(t *testing.T) {
	for _, blob := range []string{
		`{"quizId":7}`,
		`{"playerId":42}`,
		`{"playerId":0,"quizId":7}`,
		`not json at all`,
	} {
		store, _ := newStoreWithBlob(t, blob)
		_, err := NewResolver(store, nil).Resolve(context.Background())
		assert.ErrorIs(t, err, domain.ErrIdentityInvalid, "blob %s", blob)
	}
}

func TestResolveRewritesNormalizedIdentity(t *testing.T) {
	store, volatile := newStoreWithBlob(t, `{"playerId":"42","quizId":"7","name":"Alice"}`)
	ctx := context.Background()
	_, err := NewResolver(store, nil).Resolve(ctx)
	require.NoError(t, err)

	// The rewritten blob is strictly typed; later reads never re-coerce.
	raw, ok, err := volatile.Get(ctx, session.KeyIdentity)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"playerId":42,"quizId":7,"name":"Alice"}`, string(raw))

	typed, ok, err := store.LoadIdentity(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(42), typed.PlayerID)
}
