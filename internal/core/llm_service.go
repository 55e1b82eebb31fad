package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"

	"github.com/massy-ia/citydesk/internal/logging"
)

// Message roles understood by Completer.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one role-tagged turn of a completion prompt.
type ChatMessage struct {
	Role    string
	Content string
}

// Completer generates the next assistant turn with the named model. An empty
// model selects the completer's default.
type Completer interface {
	Complete(ctx context.Context, model string, messages []ChatMessage, temperature float32) (string, error)
}

// Embedder turns text into an embedding vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

var ErrNotConfigured = errors.New("generation API key not configured")

// RetryPolicy bounds retries of transient failures.
type RetryPolicy struct {
	Attempts        uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy makes three attempts, waiting 4s then up to 10s.
var DefaultRetryPolicy = RetryPolicy{Attempts: 3, InitialInterval: 4 * time.Second, MaxInterval: 10 * time.Second}

type LLMService struct {
	client         *genai.Client
	chatModel      string
	embeddingModel string
	retry          RetryPolicy
	timeout        time.Duration
}

// NewLLMService connects to the Gemini API. An empty API key yields a service
// whose calls all fail with ErrNotConfigured.
func NewLLMService(ctx context.Context, apiKey, chatModel, embeddingModel string) (*LLMService, error) {
	s := &LLMService{
		chatModel:      chatModel,
		embeddingModel: embeddingModel,
		retry:          DefaultRetryPolicy,
		timeout:        30 * time.Second,
	}
	if apiKey == "" {
		logging.Warn().Msg("GEMINI_API_KEY not set, AI answers will use fallbacks")
		return s, nil
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	s.client = client
	return s, nil
}

func (s *LLMService) Close() {
	if s.client == nil {
		return
	}
	if err := s.client.Close(); err != nil {
		logging.Error().Err(err).Msg("Error closing GenAI client")
	}
}

// Embed returns the embedding of text.
func (s *LLMService) Embed(ctx context.Context, text string) ([]float32, error) {
	if s.client == nil {
		return nil, ErrNotConfigured
	}
	return withRetry(ctx, s.retry, func() ([]float32, error) {
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		res, err := s.client.EmbeddingModel(s.embeddingModel).EmbedContent(ctx, genai.Text(text))
		if err != nil {
			return nil, fmt.Errorf("gemini embedding request failed: %w", err)
		}
		if res.Embedding == nil || len(res.Embedding.Values) == 0 {
			return nil, backoff.Permanent(errors.New("no embedding data received from gemini"))
		}
		return res.Embedding.Values, nil
	})
}

func (s *LLMService) model(name string) string {
	if name == "" {
		return s.chatModel
	}
	return name
}

// Complete sends the conversation and returns the generated text. System
// messages become the model's system instruction; the last message must come
// from the user.
func (s *LLMService) Complete(ctx context.Context, modelName string, messages []ChatMessage, temperature float32) (string, error) {
	if s.client == nil {
		return "", ErrNotConfigured
	}
	system, history, last, err := splitPrompt(messages)
	if err != nil {
		return "", err
	}

	model := s.client.GenerativeModel(s.model(modelName))
	model.SetTemperature(temperature)
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	return withRetry(ctx, s.retry, func() (string, error) {
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		session := model.StartChat()
		session.History = history
		resp, err := session.SendMessage(ctx, genai.Text(last))
		if err != nil {
			return "", fmt.Errorf("gemini chat SendMessage failed: %w", err)
		}
		if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			return "", backoff.Permanent(errors.New("gemini returned no candidates"))
		}

		var text strings.Builder
		for _, part := range resp.Candidates[0].Content.Parts {
			if t, ok := part.(genai.Text); ok {
				text.WriteString(string(t))
			}
		}
		if text.Len() == 0 {
			return "", backoff.Permanent(errors.New("gemini returned an empty answer"))
		}
		return text.String(), nil
	})
}

func splitPrompt(messages []ChatMessage) (system string, history []*genai.Content, last string, err error) {
	var instructions []string
	var turns []ChatMessage
	for _, msg := range messages {
		if msg.Role == RoleSystem {
			instructions = append(instructions, msg.Content)
			continue
		}
		turns = append(turns, msg)
	}
	if len(turns) == 0 || turns[len(turns)-1].Role != RoleUser {
		return "", nil, "", errors.New("prompt must end with a user message")
	}
	for _, msg := range turns[:len(turns)-1] {
		role := "user"
		if msg.Role == RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(msg.Content)}})
	}
	return strings.Join(instructions, "\n"), history, turns[len(turns)-1].Content, nil
}

// newBackOff doubles the wait from InitialInterval up to MaxInterval, without jitter.
func newBackOff(policy RetryPolicy) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = policy.InitialInterval
	b.MaxInterval = policy.MaxInterval
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// withRetry retries op with exponential backoff while it fails transiently.
func withRetry[T any](ctx context.Context, policy RetryPolicy, op func() (T, error)) (T, error) {
	b := newBackOff(policy)
	attempts := max(policy.Attempts, 1)
	return backoff.RetryWithData(func() (T, error) {
		v, err := op()
		if err != nil && !isTransient(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, backoff.WithContext(backoff.WithMaxRetries(b, attempts-1), ctx))
}

// isTransient reports whether err is worth retrying: network failures,
// timeouts, rate limiting and server errors. Authentication and validation
// failures are not.
func isTransient(err error) bool {
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return false
	}
	if errors.Is(err, ErrNotConfigured) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return retryableStatus(gErr.Code)
	}
	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) {
		if code := apiErr.HTTPCode(); code > 0 {
			return retryableStatus(code)
		}
		switch apiErr.GRPCStatus().Code() {
		case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded, codes.Aborted, codes.Internal:
			return true
		}
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= 500
}
