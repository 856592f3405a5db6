// Package httputil provides the JSON envelopes shared by the operator API
// and the gateway webhook.
package httputil
