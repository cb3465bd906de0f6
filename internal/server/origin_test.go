package server

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Tyrowin/linechat/internal/logging"
)

func TestOriginPolicy(t *testing.T) {
	p := newOriginPolicy([]string{"http://localhost:8080", " HTTPS://Chat.Example.com ", "not a url", ""}, logging.Discard())

	tests := []struct {
		origin string
		want   bool
	}{
		{"http://localhost:8080", true},
		{"https://chat.example.com", true},
		{"https://CHAT.example.com", true},
		{"http://chat.example.com", false},
		{"http://localhost:9090", false},
		{"", false},
		{"null", false},
	}
	for _, tc := range tests {
		t.Run(tc.origin, func(t *testing.T) {
			assert.Equal(t, tc.want, p.allows(tc.origin))
		})
	}
}

func TestOriginPolicy_Wildcard(t *testing.T) {
	p := newOriginPolicy([]string{"*"}, logging.Discard())

	assert.True(t, p.allows("https://anywhere.example"))
	assert.False(t, p.allows(""), "a missing Origin header is never allowed")
}

func TestOriginPolicy_Check(t *testing.T) {
	p := newOriginPolicy([]string{"http://localhost:8080"}, logging.Discard())

	r := httptest.NewRequest("GET", "/ws", nil)
	assert.False(t, p.check(r))

	r.Header.Set("Origin", "http://localhost:8080")
	assert.True(t, p.check(r))
}
