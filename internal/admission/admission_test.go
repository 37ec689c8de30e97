package admission

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLimiterUnlimitedAlwaysAdmits(t *testing.T) {
	l := NewLimiter(0)
	for i := 0; i < 10; i++ {
		assert.True(t, l.TryAcquire())
	}
}

func TestLimiterRejectsBeyondCapacity(t *testing.T) {
	l := NewLimiter(1)
	assert.True(t, l.TryAcquire())
	assert.False(t, l.TryAcquire())
	l.Release()
	assert.True(t, l.TryAcquire())
}

func TestMaxBodyGuardRejectsUnknownAndOversized(t *testing.T) {
	g := NewMaxBodyGuard(10)

	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.ContentLength = -1
	assert.False(t, g.Check(r))

	r.ContentLength = 11
	assert.False(t, g.Check(r))

	r.ContentLength = 10
	assert.True(t, g.Check(r))
}

func TestMaxBodyGuardDisabledWhenZero(t *testing.T) {
	g := NewMaxBodyGuard(0)
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.ContentLength = -1
	assert.True(t, g.Check(r))
}

func TestMaxBodyGuardBypassesChunkedRequests(t *testing.T) {
	g := NewMaxBodyGuard(10)

	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.ContentLength = -1
	r.Header.Set("Transfer-Encoding", "chunked")
	assert.True(t, g.Check(r), "chunked requests must bypass the size check regardless of declared length")

	r2 := httptest.NewRequest(http.MethodPost, "/", nil)
	r2.ContentLength = -1
	r2.TransferEncoding = []string{"chunked"}
	assert.True(t, g.Check(r2))
}
