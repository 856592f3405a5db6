package httpretry

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scripted struct {
	statuses []int
	errs     []error
	calls    int
}

func (s *scripted) Do(req *http.Request) (*http.Response, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	code := http.StatusOK
	if i < len(s.statuses) {
		code = s.statuses[i]
	}
	return &http.Response{StatusCode: code, Body: io.NopCloser(strings.NewReader("{}"))}, nil
}

func fast(doer HTTPDoer, retries int) *RetryClient {
	return NewRetryClient(doer, retries, WithBackoff(time.Millisecond, 2*time.Millisecond))
}

func TestRetriesIdempotentOnServerError(t *testing.T) {
	doer := &scripted{statuses: []int{502, 500, 200}}
	req, _ := http.NewRequest(http.MethodGet, "http://gw/instance/connectionState/a", nil)

	resp, err := fast(doer, 3).Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 3, doer.calls)
}

func TestPostNotRetriedAfterTransportError(t *testing.T) {
	doer := &scripted{errs: []error{errors.New("connection reset")}}
	req, _ := http.NewRequest(http.MethodPost, "http://gw/message/sendText/a", strings.NewReader(`{}`))

	_, err := fast(doer, 3).Do(req)
	require.Error(t, err)
	assert.Equal(t, 1, doer.calls)
}

func TestPostRetriedWhenRefused(t *testing.T) {
	doer := &scripted{statuses: []int{429, 502}}
	req, _ := http.NewRequest(http.MethodPost, "http://gw/message/sendText/a", strings.NewReader(`{}`))

	resp, err := fast(doer, 3).Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode, "502 on POST is returned, not retried")
	assert.Equal(t, 2, doer.calls)
}

func TestFinalAttemptReturnsResponse(t *testing.T) {
	doer := &scripted{statuses: []int{503, 503, 503}}
	req, _ := http.NewRequest(http.MethodGet, "http://gw/x", nil)

	resp, err := fast(doer, 2).Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, 3, doer.calls)
}
