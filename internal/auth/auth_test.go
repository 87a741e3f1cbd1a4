package auth

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractBearerToken(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	_, err := ExtractBearerToken(r)
	assert.Error(t, err)

	r.Header.Set("Authorization", "Basic abc")
	_, err = ExtractBearerToken(r)
	assert.Error(t, err)

	r.Header.Set("Authorization", "Bearer   ")
	_, err = ExtractBearerToken(r)
	assert.Error(t, err)

	r.Header.Set("Authorization", "Bearer tok ")
	tok, err := ExtractBearerToken(r)
	require.NoError(t, err)
	assert.Equal(t, "tok", tok)
}

func TestAuthenticate(t *testing.T) {
	tokens := []TokenConfig{
		{Token: "consent-ui", Scopes: []string{ScopeConsentRW, ScopeEventsRO}},
		{Token: "player", Scopes: []string{ScopeMediaRW, " ", ScopeIndexRW}},
	}

	p, ok := Authenticate("admin", "admin", tokens)
	require.True(t, ok)
	assert.True(t, HasAnyScope(p, ScopePrinterRW))

	p, ok = Authenticate("consent-ui", "admin", tokens)
	require.True(t, ok)
	assert.True(t, HasAnyScope(p, ScopeConsentRO), "rw implies ro")
	assert.False(t, HasAnyScope(p, ScopeMediaRW))

	p, ok = Authenticate("player", "", tokens)
	require.True(t, ok)
	assert.True(t, HasAnyScope(p, ScopeIndexRO))
	assert.Len(t, p.Scopes, 4)

	_, ok = Authenticate("", "", tokens)
	assert.False(t, ok)
	_, ok = Authenticate("nobody", "admin", tokens)
	assert.False(t, ok)
}
