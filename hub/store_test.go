package hub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	s, err := OpenStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStorePutAccountHashesPasswordAndChecks(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutAccount(ctx, "admin", "hunter2", 2))

	acc, err := s.Account(ctx, "admin")
	require.NoError(t, err)
	require.NotNil(t, acc)
	require.Equal(t, "admin", acc.Name)
	require.Equal(t, 2, acc.Level)
	require.NotEqual(t, "hunter2", acc.PassHash)

	ok, err := s.CheckPassword(ctx, "admin", "hunter2")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.CheckPassword(ctx, "admin", "wrong")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStoreAccountMissingReturnsNil(t *testing.T) {
	s := openTestStore(t)
	acc, err := s.Account(context.Background(), "nobody")
	require.NoError(t, err)
	require.Nil(t, acc)

	ok, err := s.CheckPassword(context.Background(), "nobody", "anything")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStoreBanRoundTripAndExpiry(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutBan(ctx, Ban{Target: "AAAAAAAAAAAAA", Kind: "cid", Reason: "spam", By: "op", ExpiresAt: 0}))

	b, err := s.Ban(ctx, "cid", "AAAAAAAAAAAAA", 1000)
	require.NoError(t, err)
	require.NotNil(t, b)
	require.Equal(t, "spam", b.Reason)

	require.NoError(t, s.PutBan(ctx, Ban{Target: "1.2.3.4", Kind: "ip", Reason: "flood", By: "op", ExpiresAt: 500}))
	expired, err := s.Ban(ctx, "ip", "1.2.3.4", 1000)
	require.NoError(t, err)
	require.Nil(t, expired)

	require.NoError(t, s.RemoveBan(ctx, "cid", "AAAAAAAAAAAAA"))
	gone, err := s.Ban(ctx, "cid", "AAAAAAAAAAAAA", 1000)
	require.NoError(t, err)
	require.Nil(t, gone)
}
