package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "deadline" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestKindForStatus(t *testing.T) {
	tests := []struct {
		status int
		want   Kind
	}{
		{429, KindRateLimited},
		{408, KindTransientNetwork},
		{500, KindTransientNetwork},
		{502, KindTransientNetwork},
		{503, KindTransientNetwork},
		{504, KindTransientNetwork},
		{529, KindTransientNetwork},
		{400, KindBackendStatus},
		{401, KindBackendStatus},
		{403, KindBackendStatus},
		{404, KindBackendStatus},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, KindForStatus(tt.status), "status %d", tt.status)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnknown},
		{"classified", &Error{Kind: KindRateLimited}, KindRateLimited},
		{"wrapped classified", fmt.Errorf("call: %w", &Error{Kind: KindBackendStatus}), KindBackendStatus},
		{"deadline", context.DeadlineExceeded, KindTransientNetwork},
		{"cancelled", context.Canceled, KindUnknown},
		{"net timeout", timeoutError{}, KindTransientNetwork},
		{"op error", &net.OpError{Op: "dial", Err: errors.New("refused")}, KindTransientNetwork},
		{"unexpected eof", io.ErrUnexpectedEOF, KindTransientNetwork},
		{"connection reset text", errors.New("read: connection reset by peer"), KindTransientNetwork},
		{"plain", errors.New("boom"), KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&Error{Kind: KindTransientNetwork}))
	assert.True(t, IsRetryable(&Error{Kind: KindRateLimited}))
	assert.False(t, IsRetryable(&Error{Kind: KindBackendStatus}))
	assert.False(t, IsRetryable(context.Canceled))
}

func TestErrorMessage(t *testing.T) {
	err := &Error{Kind: KindRateLimited, Provider: ProviderOpenAI, Model: "gpt-4o", StatusCode: 429, Message: "slow down"}
	assert.Equal(t, "openai gpt-4o: rate limited (status 429): slow down", err.Error())

	inner := errors.New("dial failed")
	wrapped := &Error{Kind: KindTransientNetwork, Provider: ProviderAnthropic, Model: "claude", Err: inner}
	assert.ErrorIs(t, wrapped, inner)
}
