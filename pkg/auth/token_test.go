package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssuerVerifier_RoundTrip(t *testing.T) {
	issuer := NewIssuer("shh", time.Minute)
	verifier := NewVerifier("shh")

	token, err := issuer.Issue("agent-1")
	require.NoError(t, err)

	agentID, err := verifier.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "agent-1", agentID)
}

func TestVerifier_RejectsWrongSecret(t *testing.T) {
	issuer := NewIssuer("shh", time.Minute)
	verifier := NewVerifier("different")

	token, err := issuer.Issue("agent-1")
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifier_RejectsExpiredToken(t *testing.T) {
	issuer := NewIssuer("shh", -time.Minute)
	verifier := NewVerifier("shh")

	token, err := issuer.Issue("agent-1")
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifier_RejectsMalformedToken(t *testing.T) {
	verifier := NewVerifier("shh")

	for _, tok := range []string{"", "no-dot-here", "bm90LWpzb24.deadbeef", "="} {
		_, err := verifier.Verify(tok)
		assert.ErrorIs(t, err, ErrInvalidToken, "token %q should be rejected", tok)
	}
}

func TestVerifier_CanAccess(t *testing.T) {
	verifier := NewVerifier("shh")

	assert.True(t, verifier.CanAccess("agent-1", "agents/agent-1"))
	assert.False(t, verifier.CanAccess("agent-1", "agents/agent-2"))
	assert.True(t, verifier.CanAccess("agent-1", "global"))
	assert.True(t, verifier.CanAccess("agent-1", "sessions/sess-1"))
	assert.True(t, verifier.CanAccess("agent-1", "topics/routing"))
}
