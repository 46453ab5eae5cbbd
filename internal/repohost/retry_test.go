package repohost

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/go-github/v57/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry() *RetryConfig {
	return &RetryConfig{
		MaxRetries:        3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func statusResponse(code int) *github.Response {
	return &github.Response{Response: &http.Response{StatusCode: code}}
}

func TestRetryConfig_ApplyDefaults(t *testing.T) {
	cfg := &RetryConfig{MaxRetries: 7}
	cfg.ApplyDefaults()

	assert.Equal(t, 7, cfg.MaxRetries)
	assert.Equal(t, time.Second, cfg.InitialBackoff)
	assert.Equal(t, 30*time.Second, cfg.MaxBackoff)
	assert.Equal(t, 2.0, cfg.BackoffMultiplier)
}

func TestRetryGitHubOperation(t *testing.T) {
	tests := []struct {
		name      string
		responses []int
		wantCalls int
		wantErr   bool
	}{
		{name: "first attempt succeeds", responses: []int{200}, wantCalls: 1},
		{name: "recovers after server errors", responses: []int{502, 503, 200}, wantCalls: 3},
		{name: "client error is not retried", responses: []int{404}, wantCalls: 1, wantErr: true},
		{name: "unprocessable is not retried", responses: []int{422}, wantCalls: 1, wantErr: true},
		{name: "exhausts retries", responses: []int{500, 500, 500, 500}, wantCalls: 4, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			_, err := retryGitHubOperation(context.Background(), fastRetry(), nil, func() (*github.Response, error) {
				code := tt.responses[calls]
				calls++
				if code >= 400 {
					return statusResponse(code), errors.New(http.StatusText(code))
				}
				return statusResponse(code), nil
			})

			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRetryGitHubOperation_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastRetry()
	cfg.InitialBackoff = time.Hour
	cfg.MaxBackoff = time.Hour

	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := retryGitHubOperation(ctx, cfg, nil, func() (*github.Response, error) {
		calls++
		return statusResponse(503), errors.New("unavailable")
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestIsGitHubRetryableError(t *testing.T) {
	limited := statusResponse(http.StatusForbidden)
	limited.Rate = github.Rate{Limit: 5000, Remaining: 0}
	forbidden := statusResponse(http.StatusForbidden)
	forbidden.Rate = github.Rate{Limit: 5000, Remaining: 10}

	tests := []struct {
		name string
		resp *github.Response
		want bool
	}{
		{"network error", nil, true},
		{"too many requests", statusResponse(429), true},
		{"bad gateway", statusResponse(502), true},
		{"unknown 5xx", statusResponse(599), true},
		{"secondary rate limit", limited, true},
		{"plain forbidden", forbidden, false},
		{"not found", statusResponse(404), false},
		{"conflict", statusResponse(409), false},
		{"unprocessable", statusResponse(422), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isGitHubRetryableError(errors.New("boom"), tt.resp))
		})
	}
	assert.False(t, isGitHubRetryableError(nil, statusResponse(500)))
}

func TestGetRateLimitBackoff(t *testing.T) {
	assert.Equal(t, time.Minute, getRateLimitBackoff(nil, time.Hour))

	resp := statusResponse(429)
	resp.Rate = github.Rate{Limit: 60, Reset: github.Timestamp{Time: time.Now().Add(time.Hour)}}
	assert.Equal(t, 10*time.Second, getRateLimitBackoff(resp, 10*time.Second))

	resp.Rate.Reset = github.Timestamp{Time: time.Now().Add(-time.Hour)}
	assert.Equal(t, time.Second, getRateLimitBackoff(resp, 10*time.Second))
}

func TestGetStatusCode(t *testing.T) {
	assert.Equal(t, 0, getStatusCode(nil))
	assert.Equal(t, 0, getStatusCode(&github.Response{}))
	assert.Equal(t, 418, getStatusCode(statusResponse(418)))
}
