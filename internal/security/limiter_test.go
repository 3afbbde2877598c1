package security

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnectionLimiterEnforcesPerIPCap(t *testing.T) {
	cl := NewConnectionLimiter(2)

	assert.True(t, cl.TryConnect("1.2.3.4"))
	assert.True(t, cl.TryConnect("1.2.3.4"))
	assert.False(t, cl.TryConnect("1.2.3.4"))

	// Other IPs have their own budget.
	assert.True(t, cl.TryConnect("5.6.7.8"))

	cl.Disconnect("1.2.3.4")
	assert.True(t, cl.TryConnect("1.2.3.4"))
}

func TestConnectionLimiterDisconnectUnknownIP(t *testing.T) {
	cl := NewConnectionLimiter(1)
	cl.Disconnect("9.9.9.9")
	assert.True(t, cl.TryConnect("9.9.9.9"))
}

func TestGetClientIPTrustsHeadersOnlyFromProxies(t *testing.T) {
	fromProxy := httptest.NewRequest(http.MethodGet, "/", nil)
	fromProxy.RemoteAddr = "127.0.0.1:5555"
	fromProxy.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", GetClientIP(fromProxy))

	direct := httptest.NewRequest(http.MethodGet, "/", nil)
	direct.RemoteAddr = "198.51.100.9:5555"
	direct.Header.Set("X-Forwarded-For", "203.0.113.7")
	assert.Equal(t, "198.51.100.9", GetClientIP(direct))
}

func TestGetClientIPIgnoresGarbageHeader(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "127.0.0.1:5555"
	r.Header.Set("X-Forwarded-For", "not-an-ip")
	assert.Equal(t, "127.0.0.1", GetClientIP(r))
}
