package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIErrorRetryable(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
		{http.StatusNotFound, false},
	}
	for _, tt := range tests {
		err := &APIError{StatusCode: tt.status, Body: "x"}
		assert.Equal(t, tt.want, err.Retryable(), "status %d", tt.status)
	}
}

func TestAPIErrorUnwrapsThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("open stream: %w", &APIError{StatusCode: 503, Body: "overloaded"})

	var apiErr *APIError
	require.True(t, errors.As(wrapped, &apiErr))
	assert.Equal(t, 503, apiErr.StatusCode)
	assert.Contains(t, wrapped.Error(), "status 503")
	assert.Contains(t, wrapped.Error(), "overloaded")
}

func TestToolCallWireFormat(t *testing.T) {
	call := ToolCall{
		ID:       "call_1",
		Type:     "function",
		Function: FunctionCall{Name: "showStockPrice", Arguments: `{"symbol":"DOGE","price":0.1,"delta":1}`},
	}
	data, err := json.Marshal(Message{Role: "assistant", ToolCalls: []ToolCall{call}})
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"role": "assistant",
		"content": "",
		"tool_calls": [{
			"id": "call_1",
			"type": "function",
			"function": {"name": "showStockPrice", "arguments": "{\"symbol\":\"DOGE\",\"price\":0.1,\"delta\":1}"}
		}]
	}`, string(data))
}

func TestDeltaErrIsNotSerialized(t *testing.T) {
	data, err := json.Marshal(Delta{Content: "hi", Err: errors.New("boom")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"content":"hi"}`, string(data))
}
