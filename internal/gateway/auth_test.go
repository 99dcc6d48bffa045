package gateway

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/soyeahso/baogate/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestResolveAuth(t *testing.T) {
	t.Setenv("BAOGATE_GATEWAY_TOKEN", "from-env")

	auth := ResolveAuth(config.GatewayAuth{})
	assert.Equal(t, AuthModeNone, auth.Mode)
	assert.Equal(t, "from-env", auth.Token)

	auth = ResolveAuth(config.GatewayAuth{Mode: "token", Token: "from-config"})
	assert.Equal(t, AuthModeToken, auth.Mode)
	assert.Equal(t, "from-config", auth.Token)
}

func TestAuthorize(t *testing.T) {
	tests := []struct {
		name   string
		server ResolvedAuth
		token  string
		ok     bool
		reason string
	}{
		{"none", ResolvedAuth{Mode: AuthModeNone}, "", true, ""},
		{"match", ResolvedAuth{Mode: AuthModeToken, Token: "abc"}, "abc", true, ""},
		{"mismatch", ResolvedAuth{Mode: AuthModeToken, Token: "abc"}, "abd", false, "token_mismatch"},
		{"prefix", ResolvedAuth{Mode: AuthModeToken, Token: "abc"}, "ab", false, "token_mismatch"},
		{"missing", ResolvedAuth{Mode: AuthModeToken, Token: "abc"}, "", false, "token required"},
		{"unconfigured", ResolvedAuth{Mode: AuthModeToken}, "abc", false, "server token not configured"},
		{"unknown mode", ResolvedAuth{Mode: "password"}, "abc", false, "unknown auth mode: password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Authorize(tt.server, tt.token)
			assert.Equal(t, tt.ok, res.OK)
			assert.Equal(t, tt.reason, res.Reason)
		})
	}
}

func TestRequestToken(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws?token=q", nil)
	assert.Equal(t, "q", requestToken(r))

	r.Header.Set("Authorization", "Bearer  h ")
	assert.Equal(t, "h", requestToken(r))

	r.Header.Set("Authorization", "Basic xyz")
	assert.Empty(t, requestToken(r))
}

func TestAuthRateLimiter(t *testing.T) {
	l := newAuthRateLimiter()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	addr := "192.0.2.7:5555"
	for range authRateMaxFails {
		assert.True(t, l.allow(addr))
		l.recordFailure(addr)
	}
	assert.False(t, l.allow(addr))
	assert.False(t, l.allow("192.0.2.7:6666"), "limit is per host, not per port")
	assert.True(t, l.allow("198.51.100.1:1"))

	now = now.Add(authRateWindow + time.Second)
	assert.True(t, l.allow(addr), "failures expire after the window")
}
