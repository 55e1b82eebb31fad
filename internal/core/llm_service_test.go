package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

var fastRetry = RetryPolicy{Attempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}

func TestSplitPrompt(t *testing.T) {
	system, history, last, err := splitPrompt([]ChatMessage{
		{Role: RoleSystem, Content: "be brief"},
		{Role: RoleUser, Content: "hello"},
		{Role: RoleAssistant, Content: "hi"},
		{Role: RoleSystem, Content: "answer in French"},
		{Role: RoleUser, Content: "horaires de la mairie"},
	})
	require.NoError(t, err)
	assert.Equal(t, "be brief\nanswer in French", system)
	assert.Equal(t, "horaires de la mairie", last)
	require.Len(t, history, 2)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, "model", history[1].Role)
	assert.Equal(t, genai.Text("hi"), history[1].Parts[0])

	_, _, _, err = splitPrompt([]ChatMessage{{Role: RoleSystem, Content: "only system"}})
	assert.Error(t, err)
	_, _, _, err = splitPrompt([]ChatMessage{{Role: RoleUser, Content: "q"}, {Role: RoleAssistant, Content: "a"}})
	assert.Error(t, err)
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"server error", &googleapi.Error{Code: 503}, true},
		{"rate limited", fmt.Errorf("gemini chat SendMessage failed: %w", &googleapi.Error{Code: 429}), true},
		{"unauthorized", &googleapi.Error{Code: 401}, false},
		{"bad request", &googleapi.Error{Code: 400}, false},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"network", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, true},
		{"not configured", ErrNotConfigured, false},
		{"permanent", backoff.Permanent(&googleapi.Error{Code: 503}), false},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isTransient(tt.err))
		})
	}
}

func TestRetryBackOffSchedule(t *testing.T) {
	b := newBackOff(DefaultRetryPolicy)
	want := []time.Duration{4 * time.Second, 8 * time.Second, 10 * time.Second, 10 * time.Second}
	for i, w := range want {
		assert.Equal(t, w, b.NextBackOff(), "wait %d", i+1)
	}

	b.Reset()
	assert.Equal(t, DefaultRetryPolicy.InitialInterval, b.NextBackOff())
}

func TestWithRetryWaitsWithinPolicy(t *testing.T) {
	policy := RetryPolicy{Attempts: 3, InitialInterval: 20 * time.Millisecond, MaxInterval: 30 * time.Millisecond}
	var calls []time.Time
	_, err := withRetry(context.Background(), policy, func() (string, error) {
		calls = append(calls, time.Now())
		return "", &googleapi.Error{Code: 503}
	})
	require.Error(t, err)
	require.Len(t, calls, 3)

	first, second := calls[1].Sub(calls[0]), calls[2].Sub(calls[1])
	assert.GreaterOrEqual(t, first, 20*time.Millisecond)
	assert.GreaterOrEqual(t, second, 30*time.Millisecond)
}

func TestWithRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("retries transient failures", func(t *testing.T) {
		calls := 0
		got, err := withRetry(ctx, fastRetry, func() (string, error) {
			calls++
			if calls < 3 {
				return "", &googleapi.Error{Code: 503}
			}
			return "ok", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "ok", got)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up after the last attempt", func(t *testing.T) {
		calls := 0
		_, err := withRetry(ctx, fastRetry, func() (string, error) {
			calls++
			return "", &googleapi.Error{Code: 500}
		})
		require.Error(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("does not retry permanent failures", func(t *testing.T) {
		calls := 0
		_, err := withRetry(ctx, fastRetry, func() (string, error) {
			calls++
			return "", &googleapi.Error{Code: 401}
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})
}

func TestLLMServiceModelSelection(t *testing.T) {
	s := &LLMService{chatModel: "gemini-1.5-flash-latest"}
	assert.Equal(t, "gemini-1.5-flash-latest", s.model(""))
	assert.Equal(t, "gemini-1.5-pro-latest", s.model("gemini-1.5-pro-latest"))
}

func TestUnconfiguredLLMService(t *testing.T) {
	s, err := NewLLMService(context.Background(), "", "chat", "embed")
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Complete(context.Background(), "", []ChatMessage{{Role: RoleUser, Content: "q"}}, 0.3)
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = s.Embed(context.Background(), "q")
	assert.ErrorIs(t, err, ErrNotConfigured)

	// The assistant hides the failure behind its fallback.
	assert.Equal(t, CityFallback, NewAssistant(s, "", 0.3).CityAnswer(context.Background(), "q", ""))
}
