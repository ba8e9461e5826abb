package auth

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDisabledAllowsEverything(t *testing.T) {
	a := New([]string{"", "  "})
	assert.False(t, a.Enabled())
	assert.True(t, a.Allowed("anything"))
	assert.NoError(t, a.Check(httptest.NewRequest("GET", "/", nil)))
}

func TestCheck(t *testing.T) {
	a := New([]string{"k-1", "k-2", "k-1"})
	assert.True(t, a.Enabled())

	req := httptest.NewRequest("POST", "/extract_entities", nil)
	assert.ErrorIs(t, a.Check(req), ErrMissingKey)

	req.Header.Set("Authorization", "Bearer nope")
	assert.ErrorIs(t, a.Check(req), ErrInvalidKey)

	req.Header.Set("Authorization", "bearer k-2")
	assert.NoError(t, a.Check(req))
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", BearerToken("Bearer abc"))
	assert.Equal(t, "abc", BearerToken("  BEARER   abc "))
	assert.Equal(t, "", BearerToken("Basic abc"))
	assert.Equal(t, "", BearerToken("Bearer"))
}
