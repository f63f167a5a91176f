package auth

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testCost = 10

func newTestCredential() *Credential {
	return NewCredential(HashConfig{Cost: testCost, Workers: 2})
}

func TestHashPassword(t *testing.T) {
	cred := newTestCredential()
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		hash, err := cred.Hash(ctx, "Abcdefg1")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(hash, "$2a$10$"))
		assert.True(t, cred.Verify(ctx, "Abcdefg1", hash))
	})

	t.Run("same password produces different hashes", func(t *testing.T) {
		h1, err := cred.Hash(ctx, "samepassword")
		require.NoError(t, err)
		h2, err := cred.Hash(ctx, "samepassword")
		require.NoError(t, err)

		assert.NotEqual(t, h1, h2)
		assert.True(t, cred.Verify(ctx, "samepassword", h1))
		assert.True(t, cred.Verify(ctx, "samepassword", h2))
	})

	t.Run("different password does not verify", func(t *testing.T) {
		hash, err := cred.Hash(ctx, "password-one")
		require.NoError(t, err)
		assert.False(t, cred.Verify(ctx, "password-two", hash))
	})

	t.Run("empty password is hashable", func(t *testing.T) {
		hash, err := cred.Hash(ctx, "")
		require.NoError(t, err)
		assert.True(t, cred.Verify(ctx, "", hash))
	})

	t.Run("long password is truncated instead of failing", func(t *testing.T) {
		long := strings.Repeat("x", 100)
		hash, err := cred.Hash(ctx, long)
		require.NoError(t, err)
		assert.True(t, cred.Verify(ctx, long, hash))
		assert.True(t, cred.Verify(ctx, long[:72], hash))
	})
}

func TestHashCostFloor(t *testing.T) {
	ctx := context.Background()

	t.Run("configured cost below floor", func(t *testing.T) {
		cred := NewCredential(HashConfig{Cost: 4})
		assert.Equal(t, 10, cred.Cost())

		hash, err := cred.Hash(ctx, "Abcdefg1")
		require.NoError(t, err)
		cost, err := bcrypt.Cost([]byte(hash))
		require.NoError(t, err)
		assert.Equal(t, 10, cost)
	})

	t.Run("explicit cost below floor", func(t *testing.T) {
		cred := newTestCredential()
		hash, err := cred.HashWithCost(ctx, "Abcdefg1", 5)
		require.NoError(t, err)
		cost, err := bcrypt.Cost([]byte(hash))
		require.NoError(t, err)
		assert.Equal(t, 10, cost)
	})

	t.Run("zero configured cost uses default", func(t *testing.T) {
		assert.Equal(t, 12, NewCredential(HashConfig{}).Cost())
	})
}

func TestVerifyFailsClosed(t *testing.T) {
	cred := newTestCredential()
	ctx := context.Background()

	assert.False(t, cred.Verify(ctx, "anything", ""))
	assert.False(t, cred.Verify(ctx, "", ""))
	assert.False(t, cred.Verify(ctx, "anything", "not-a-bcrypt-hash"))
	assert.False(t, cred.Verify(ctx, "anything", "$2a$xx$invalidinvalidinvalidinvalidinvalidinvalidinvalidinvali"))
	assert.False(t, cred.Verify(ctx, "anything", "$"))
}

func TestVerifyIsIdempotent(t *testing.T) {
	cred := newTestCredential()
	ctx := context.Background()

	hash, err := cred.Hash(ctx, "Abcdefg1")
	require.NoError(t, err)

	first := cred.Verify(ctx, "Abcdefg1", hash)
	second := cred.Verify(ctx, "Abcdefg1", hash)
	assert.Equal(t, first, second)

	first = cred.Verify(ctx, "wrong", hash)
	second = cred.Verify(ctx, "wrong", hash)
	assert.Equal(t, first, second)
}

func TestVerifyRespectsCanceledContext(t *testing.T) {
	cred := NewCredential(HashConfig{Cost: testCost, Workers: 1})
	hash, err := cred.Hash(context.Background(), "Abcdefg1")
	require.NoError(t, err)

	// 唯一のスロットを埋めた状態でキャンセル済みの ctx を渡す
	require.NoError(t, cred.sem.Acquire(context.Background(), 1))
	defer cred.sem.Release(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.False(t, cred.Verify(ctx, "Abcdefg1", hash))
	_, err = cred.Hash(ctx, "Abcdefg1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConcurrentHashing(t *testing.T) {
	cred := NewCredential(HashConfig{Cost: testCost, Workers: 2})
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]bool, 6)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			hash, err := cred.Hash(ctx, "Abcdefg1")
			if err != nil {
				return
			}
			results[i] = cred.Verify(ctx, "Abcdefg1", hash)
		}(i)
	}
	wg.Wait()

	for i, ok := range results {
		assert.True(t, ok, "worker %d", i)
	}
}

func TestNeedsRehash(t *testing.T) {
	ctx := context.Background()
	low := newTestCredential()
	hash, err := low.Hash(ctx, "Abcdefg1")
	require.NoError(t, err)

	assert.False(t, low.NeedsRehash(hash))

	high := NewCredential(HashConfig{Cost: 11})
	assert.True(t, high.NeedsRehash(hash))
	assert.False(t, high.NeedsRehash(""))
	assert.False(t, high.NeedsRehash("garbage"))
}

func TestEqualizeTiming(t *testing.T) {
	cred := newTestCredential()

	// 初回の呼び出しでもハッシュ生成を挟まない
	require.NotEmpty(t, cred.dummyHash)
	cost, err := bcrypt.Cost([]byte(cred.dummyHash))
	require.NoError(t, err)
	assert.Equal(t, cred.Cost(), cost)

	before := cred.dummyHash
	cred.EqualizeTiming(context.Background(), "whatever")
	assert.Equal(t, before, cred.dummyHash)
	assert.False(t, cred.Verify(context.Background(), "whatever", cred.dummyHash))
}

func TestEqualizeTimingHoldsWorkerSlot(t *testing.T) {
	cred := NewCredential(HashConfig{Cost: testCost, Workers: 1})
	require.NoError(t, cred.sem.Acquire(context.Background(), 1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// スロットが空くまで待つので、キャンセル済みなら即座に戻る
	assert.NotPanics(t, func() { cred.EqualizeTiming(ctx, "whatever") })
	cred.sem.Release(1)
}

func TestMeetsRequirements(t *testing.T) {
	cases := []struct {
		password string
		want     bool
	}{
		{"abcdefgh", false},
		{"Abcdefg1", true},
		{"Ab1", false},
		{"ABCDEFGH", false},
		{"12345678", false},
		{"abcdefg1", false},
		{"Abcdefgh", false},
		{"AAAAAAA1", true},
		{"Ünïcödé1A", true},
		{"", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, MeetsRequirements(tc.password), "MeetsRequirements(%q)", tc.password)
	}
}
