package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warnet/backend/internal/cache"
	"warnet/backend/internal/lib/sl"
	"warnet/backend/internal/model"
	"warnet/backend/internal/store"
)

func TestHistoryServedFromRedis(t *testing.T) {
	ctx := context.Background()

	mr := miniredis.RunT(t)
	client, err := cache.Connect(ctx, cache.RedisConnection{Addr: mr.Addr(), Timeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.Close()
	})

	docs := &faultyDocs{DocumentStore: newDocs(t), collection: model.CollectionPayments}
	s := store.New(docs, sl.Discard(), store.WithHistoryCache(cache.NewHistoryCache(client, time.Minute)))

	session, err := s.AddSession(ctx, "Eka", mustPackage(t, "1h"))
	require.NoError(t, err)
	_, err = s.RecordPayment(ctx, session.ID, 5000, "")
	require.NoError(t, err)

	entries, err := s.FetchTransactionHistory(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	// A warm cache answers even while the payments collection is unreadable.
	docs.listErr = errors.New("offline")
	entries, err = s.FetchTransactionHistory(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 5000, entries[0].Amount)

	// A new payment invalidates the cache, so the next read goes to the documents.
	_, err = s.RecordPayment(ctx, session.ID, 2500, "Cash")
	require.NoError(t, err)
	_, err = s.FetchTransactionHistory(ctx)
	require.ErrorIs(t, err, store.ErrFetch)

	docs.listErr = nil
	entries, err = s.FetchTransactionHistory(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
