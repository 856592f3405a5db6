package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/prospect-cadence/internal/config"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewHTTPClientWithDoer(config.GatewayConfig{
		BaseURL:       srv.URL,
		APIKey:        "secret",
		DefaultRegion: "BR",
	}, srv.Client())
}

func TestSendTextSuccess(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/message/sendText/acc-1", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("apikey"))

		var req sendTextRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "5511998765432", req.Number)
		assert.Equal(t, "Oi Ana", req.Text)

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"key":{"id":"BAE5F1"},"status":"PENDING"}`))
	})

	res, err := client.SendText(context.Background(), "acc-1", "+55 (11) 99876-5432", "Oi Ana")
	require.NoError(t, err)
	assert.Equal(t, "BAE5F1", res.ExternalID)
}

func TestSendTextInvalidNumberFromGateway(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"status":400,"error":"Bad Request","response":{"message":[{"exists":false,"number":"5511998765432"}]}}`))
	})

	_, err := client.SendText(context.Background(), "acc-1", "5511998765432", "Oi")
	require.Error(t, err)
	assert.True(t, IsInvalidNumber(err))
}

func TestSendTextRejectsMalformedLocally(t *testing.T) {
	called := false
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { called = true })

	_, err := client.SendText(context.Background(), "acc-1", "12", "Oi")
	assert.True(t, IsInvalidNumber(err))
	assert.False(t, called)
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		status int
		body   string
		want   ErrorKind
	}{
		{http.StatusUnauthorized, `{}`, KindUnauthorized},
		{http.StatusBadRequest, `{"response":{"message":["text is required"]}}`, KindTransient},
		{http.StatusInternalServerError, `oops`, KindTransient},
		{http.StatusBadRequest, `{"response":{"message":[{"exists":false}]}}`, KindInvalidNumber},
	}
	for _, tt := range tests {
		err := classify(tt.status, []byte(tt.body))
		assert.Equal(t, tt.want, err.Kind, "status %d body %s", tt.status, tt.body)
	}

	assert.Equal(t, KindTransient, KindOf(errors.New("plain")))
	assert.False(t, IsInvalidNumber(nil))
}

func TestConnectionState(t *testing.T) {
	state := "open"
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/instance/connectionState/acc-1", r.URL.Path)
		w.Write([]byte(`{"instance":{"instanceName":"acc-1","state":"` + state + `"}}`))
	})

	got, err := client.ConnectionState(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.Equal(t, StateOpen, got)

	state = "refused"
	got, err = client.ConnectionState(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.Equal(t, StateClose, got)
}

func TestNormalizePhone(t *testing.T) {
	got, err := NormalizePhone("(11) 99876-5432", "BR")
	require.NoError(t, err)
	assert.Equal(t, "5511998765432", got)

	got, err = NormalizePhone("5511998765432", "BR")
	require.NoError(t, err)
	assert.Equal(t, "5511998765432", got)

	_, err = NormalizePhone("", "BR")
	assert.True(t, IsInvalidNumber(err))
}
