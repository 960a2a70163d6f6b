package webrec

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectURLCreateResolve(t *testing.T) {
	store := NewObjectURLStore(time.Hour)
	blob := &Blob{Data: []byte("abc"), Type: "audio/wav"}

	url, err := store.CreateObjectURL(blob)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, ObjectURLPrefix))
	assert.Equal(t, 1, store.Len())

	got, err := store.Resolve(url)
	require.NoError(t, err)
	assert.Same(t, blob, got)

	// The bare token resolves too.
	got, err = store.Resolve(strings.TrimPrefix(url, ObjectURLPrefix))
	require.NoError(t, err)
	assert.Same(t, blob, got)

	ttl := store.TTL(url)
	assert.Greater(t, ttl, 59*time.Minute)
	assert.LessOrEqual(t, ttl, time.Hour)
}

func TestObjectURLsAreDistinct(t *testing.T) {
	store := NewObjectURLStore(0)
	blob := &Blob{Data: []byte("x")}

	a, err := store.CreateObjectURL(blob)
	require.NoError(t, err)
	b, err := store.CreateObjectURL(blob)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Equal(t, 2, store.Len())
	assert.Equal(t, time.Duration(0), store.TTL(a))
}

func TestObjectURLRevoke(t *testing.T) {
	store := NewObjectURLStore(0)
	url, err := store.CreateObjectURL(&Blob{Data: []byte("x")})
	require.NoError(t, err)

	store.RevokeObjectURL(url)
	store.RevokeObjectURL(url)
	store.RevokeObjectURL("/blob/garbage")
	assert.Equal(t, 0, store.Len())

	_, err = store.Resolve(url)
	assert.True(t, IsErrorCode(err, ErrCodeURLInvalid))
	assert.ErrorIs(t, err, ErrURLRevoked)
}

func TestObjectURLRejectsForeignAndTamperedTokens(t *testing.T) {
	store := NewObjectURLStore(0)
	other := NewObjectURLStore(0)

	foreign, err := other.CreateObjectURL(&Blob{Data: []byte("x")})
	require.NoError(t, err)
	_, err = store.Resolve(foreign)
	assert.True(t, IsErrorCode(err, ErrCodeURLInvalid))

	url, err := store.CreateObjectURL(&Blob{Data: []byte("x")})
	require.NoError(t, err)
	parts := strings.Split(strings.TrimPrefix(url, ObjectURLPrefix), ".")
	require.Len(t, parts, 3)
	payload := []byte(parts[1])
	if payload[0] == 'e' {
		payload[0] = 'f'
	} else {
		payload[0] = 'e'
	}
	tampered := parts[0] + "." + string(payload) + "." + parts[2]
	_, err = store.Resolve(tampered)
	assert.True(t, IsErrorCode(err, ErrCodeURLInvalid))

	_, err = store.Resolve("not-a-token")
	assert.True(t, IsErrorCode(err, ErrCodeURLInvalid))
}

func TestObjectURLExpiry(t *testing.T) {
	store := NewObjectURLStore(time.Nanosecond)
	url, err := store.CreateObjectURL(&Blob{Data: []byte("x")})
	require.NoError(t, err)
	time.Sleep(time.Millisecond)

	_, err = store.Resolve(url)
	assert.True(t, IsErrorCode(err, ErrCodeURLInvalid))
	assert.Equal(t, time.Duration(0), store.TTL(url))

	// Creating another URL sweeps the expired one.
	_, err = store.CreateObjectURL(&Blob{Data: []byte("y")})
	require.NoError(t, err)
	assert.Equal(t, 1, store.Len())
}

func TestObjectURLNilBlob(t *testing.T) {
	_, err := NewObjectURLStore(0).CreateObjectURL(nil)
	assert.True(t, IsErrorCode(err, ErrCodeURLInvalid))
}
