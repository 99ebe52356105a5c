package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type loginState struct {
	State    string `json:"state"`
	ReturnTo string `json:"return_to"`
}

func TestNewSealer(t *testing.T) {
	t.Run("generates identity when key is empty", func(t *testing.T) {
		s, err := NewSealer("")
		require.NoError(t, err)
		assert.NotNil(t, s.identity)
		assert.NotNil(t, s.recipient)
	})

	t.Run("accepts a generated key", func(t *testing.T) {
		key, err := GenerateKey()
		require.NoError(t, err)

		_, err = NewSealer(key)
		require.NoError(t, err)
	})

	t.Run("rejects garbage", func(t *testing.T) {
		_, err := NewSealer("invalid-key-format")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parsing identity")
	})
}

func TestSealer_SealOpen(t *testing.T) {
	s, err := NewSealer("")
	require.NoError(t, err)

	in := loginState{State: "abc123", ReturnTo: "/diagrams"}
	sealed, err := s.Seal(in)
	require.NoError(t, err)
	assert.NotContains(t, sealed, "abc123")
	assert.NotContains(t, sealed, "=")

	var out loginState
	require.NoError(t, s.Open(sealed, &out))
	assert.Equal(t, in, out)
}

func TestSealer_SealIsRandomized(t *testing.T) {
	s, err := NewSealer("")
	require.NoError(t, err)

	a, err := s.Seal(loginState{State: "same"})
	require.NoError(t, err)
	b, err := s.Seal(loginState{State: "same"})
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestSealer_OpenFailures(t *testing.T) {
	s, err := NewSealer("")
	require.NoError(t, err)
	other, err := NewSealer("")
	require.NoError(t, err)

	sealed, err := other.Seal(loginState{State: "x"})
	require.NoError(t, err)

	var out loginState
	assert.Error(t, s.Open(sealed, &out), "wrong key")
	assert.Error(t, s.Open("not valid base64!!!", &out))
	assert.Error(t, s.Open("SGVsbG8gV29ybGQ", &out))
}

func TestSealer_KeyReuse(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	s1, err := NewSealer(key)
	require.NoError(t, err)
	s2, err := NewSealer(key)
	require.NoError(t, err)

	sealed, err := s1.Seal(loginState{State: "shared"})
	require.NoError(t, err)

	var out loginState
	require.NoError(t, s2.Open(sealed, &out))
	assert.Equal(t, "shared", out.State)
}

func TestGenerateRandomString(t *testing.T) {
	for _, size := range []int{8, 16, 32, 64} {
		str, err := GenerateRandomString(size)
		require.NoError(t, err)
		assert.Len(t, str, size)
	}

	a, err := GenerateRandomString(32)
	require.NoError(t, err)
	b, err := GenerateRandomString(32)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
