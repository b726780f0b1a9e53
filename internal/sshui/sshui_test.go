package sshui

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gossh "golang.org/x/crypto/ssh"
)

func newKey(t *testing.T) gossh.PublicKey {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	key, err := gossh.NewPublicKey(pub)
	require.NoError(t, err)
	return key
}

func TestIsKeyAllowed(t *testing.T) {
	alice, bob, mallory := newKey(t), newKey(t), newKey(t)
	file := append(gossh.MarshalAuthorizedKey(alice), gossh.MarshalAuthorizedKey(bob)...)

	assert.True(t, isKeyAllowed(file, alice))
	assert.True(t, isKeyAllowed(file, bob))
	assert.False(t, isKeyAllowed(file, mallory))
	assert.False(t, isKeyAllowed(nil, alice))
	assert.False(t, isKeyAllowed([]byte("not a key\n"), alice))
}
