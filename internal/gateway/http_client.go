package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/ignite/prospect-cadence/internal/config"
	"github.com/ignite/prospect-cadence/internal/pkg/httpretry"
)

// HTTPClient is an Evolution-style REST gateway client.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	region     string
	httpClient httpretry.HTTPDoer
}

// NewHTTPClient creates a gateway client from configuration.
func NewHTTPClient(cfg config.GatewayConfig) *HTTPClient {
	return NewHTTPClientWithDoer(cfg, httpretry.NewRetryClient(&http.Client{
		Timeout: cfg.Timeout(),
	}, cfg.MaxRetries))
}

// NewHTTPClientWithDoer creates a client on a caller-supplied transport.
func NewHTTPClientWithDoer(cfg config.GatewayConfig, doer httpretry.HTTPDoer) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		region:     cfg.DefaultRegion,
		httpClient: doer,
	}
}

type sendTextRequest struct {
	Number string `json:"number"`
	Text   string `json:"text"`
}

type sendTextResponse struct {
	Key struct {
		ID string `json:"id"`
	} `json:"key"`
	Status string `json:"status"`
}

// SendText sends a plain text message to phone through instance.
func (c *HTTPClient) SendText(ctx context.Context, instance, phone, text string) (SendResult, error) {
	number, err := NormalizePhone(phone, c.region)
	if err != nil {
		return SendResult{}, err
	}

	body, err := c.doRequest(ctx, http.MethodPost, "/message/sendText/"+url.PathEscape(instance),
		sendTextRequest{Number: number, Text: text})
	if err != nil {
		return SendResult{}, err
	}

	var resp sendTextResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return SendResult{}, &Error{Kind: KindTransient, Message: "parsing send response", Err: err}
	}
	return SendResult{ExternalID: resp.Key.ID, Status: resp.Status}, nil
}

type connectionStateResponse struct {
	Instance struct {
		InstanceName string `json:"instanceName"`
		State        string `json:"state"`
	} `json:"instance"`
}

// ConnectionState reports whether instance is connected to the network.
func (c *HTTPClient) ConnectionState(ctx context.Context, instance string) (State, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/instance/connectionState/"+url.PathEscape(instance), nil)
	if err != nil {
		return StateClose, err
	}
	var resp connectionStateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return StateClose, &Error{Kind: KindTransient, Message: "parsing connection state", Err: err}
	}
	switch State(resp.Instance.State) {
	case StateOpen, StateConnecting:
		return State(resp.Instance.State), nil
	default:
		return StateClose, nil
	}
}

type presenceRequest struct {
	Number   string   `json:"number"`
	Presence Presence `json:"presence"`
	Delay    int      `json:"delay"`
}

// SetPresence shows presence to phone for a short moment.
func (c *HTTPClient) SetPresence(ctx context.Context, instance, phone string, presence Presence) error {
	number, err := NormalizePhone(phone, c.region)
	if err != nil {
		return err
	}
	_, err = c.doRequest(ctx, http.MethodPost, "/chat/sendPresence/"+url.PathEscape(instance),
		presenceRequest{Number: number, Presence: presence, Delay: 3000})
	return err
}

// doRequest makes an authenticated call and classifies failures.
func (c *HTTPClient) doRequest(ctx context.Context, method, path string, payload interface{}) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindTransient, Message: "executing request", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindTransient, StatusCode: resp.StatusCode, Message: "reading response", Err: err}
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}
	return nil, classify(resp.StatusCode, body)
}

// classify maps a non-2xx response to an Error. The gateway answers 400 with
// an "exists": false entry when the number is not on the network.
func classify(status int, body []byte) *Error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 300 {
		msg = msg[:300]
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &Error{Kind: KindUnauthorized, StatusCode: status, Message: msg}
	case status == http.StatusBadRequest && notOnNetwork(body):
		return &Error{Kind: KindInvalidNumber, StatusCode: status, Message: msg}
	default:
		return &Error{Kind: KindTransient, StatusCode: status, Message: msg}
	}
}

type badRequestBody struct {
	Response struct {
		Message []struct {
			Exists *bool  `json:"exists"`
			Number string `json:"number"`
		} `json:"message"`
	} `json:"response"`
}

func notOnNetwork(body []byte) bool {
	var br badRequestBody
	if err := json.Unmarshal(body, &br); err != nil {
		return false
	}
	for _, m := range br.Response.Message {
		if m.Exists != nil && !*m.Exists {
			return true
		}
	}
	return false
}
