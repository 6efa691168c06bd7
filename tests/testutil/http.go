package testutil

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// APIError is the error object of the service's response envelope.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Details   []struct {
		Field   string `json:"field"`
		Message string `json:"message"`
	} `json:"details"`
}

// Envelope is the response envelope with its data left undecoded.
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
}

// JSONResponse parses the response body as a generic JSON object.
func JSONResponse(t *testing.T, tc *TestContext) map[string]any {
	t.Helper()

	var result map[string]any
	err := json.Unmarshal(tc.ResponseBody(), &result)
	require.NoError(t, err, "Failed to parse JSON response")
	return result
}

// DecodeEnvelope parses the response envelope.
func DecodeEnvelope(t *testing.T, tc *TestContext) Envelope {
	t.Helper()

	var env Envelope
	err := json.Unmarshal(tc.ResponseBody(), &env)
	require.NoError(t, err, "Failed to parse response envelope")
	return env
}

// DataAs asserts a successful envelope and decodes its data into T.
func DataAs[T any](t *testing.T, tc *TestContext) T {
	t.Helper()

	env := DecodeEnvelope(t, tc)
	require.True(t, env.Success, "Expected success response, got %s", string(tc.ResponseBody()))

	var result T
	require.NoError(t, json.Unmarshal(env.Data, &result), "Failed to decode response data")
	return result
}

// AssertErrorResponse asserts the response is an error envelope with expectedCode.
func AssertErrorResponse(t *testing.T, tc *TestContext, expectedStatus int, expectedCode string) *APIError {
	t.Helper()

	assert.Equal(t, expectedStatus, tc.ResponseCode(), "Unexpected status code: %s", string(tc.ResponseBody()))
	env := DecodeEnvelope(t, tc)
	assert.False(t, env.Success, "Expected success to be false")
	require.NotNil(t, env.Error, "Expected error object in response")
	assert.Equal(t, expectedCode, env.Error.Code, "Unexpected error code")
	return env.Error
}
