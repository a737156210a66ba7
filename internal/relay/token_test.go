package relay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerify(t *testing.T) {
	iss := NewIssuer("app-1", "cert", time.Hour)

	token, err := iss.Issue("chan-42", TagTarget)
	require.NoError(t, err)

	claims, err := iss.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "chan-42", claims.Channel)
	assert.Equal(t, TagTarget, claims.UID)
	assert.Equal(t, "app-1", claims.AppID)
}

func TestVerifyRejectsExpiredAndForeignTokens(t *testing.T) {
	iss := NewIssuer("app-1", "cert", time.Minute)
	iss.now = func() time.Time { return time.Now().Add(-2 * time.Minute) }
	stale, err := iss.Issue("chan", TagInitiator)
	require.NoError(t, err)

	fresh := NewIssuer("app-1", "cert", time.Minute)
	_, err = fresh.Verify(stale)
	assert.Error(t, err)

	foreign, err := NewIssuer("app-1", "other-cert", time.Minute).Issue("chan", TagInitiator)
	require.NoError(t, err)
	_, err = fresh.Verify(foreign)
	assert.Error(t, err)
}

func TestIssueRequiresChannel(t *testing.T) {
	_, err := NewIssuer("app", "cert", time.Minute).Issue("", TagInitiator)
	assert.Error(t, err)
}
