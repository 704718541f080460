package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	genai "github.com/google/generative-ai-go/genai"

	"rag-chatbot-platform/internal/logger"
)

// Generation failure taxonomy. Callers branch on these with errors.Is; the
// concrete backend error stays wrapped underneath.
var (
	ErrUnavailable = errors.New("generation backend unavailable")
	ErrRateLimited = errors.New("generation backend rate limited")
)

// GeminiClient wraps the Gemini generation API with a circuit breaker and a
// client-side rate limiter so a degraded backend cannot stall callers.
type GeminiClient struct {
	client      *genai.Client
	model       string
	breaker     *gobreaker.CircuitBreaker
	rateLimiter *rate.Limiter
}

type rateLimits struct {
	rpm int
}

func limitsForTier(tier string) rateLimits {
	switch tier {
	case "tier1":
		return rateLimits{rpm: 1000}
	case "tier2":
		return rateLimits{rpm: 2000}
	default:
		return rateLimits{rpm: 10}
	}
}

func NewGeminiClient(ctx context.Context, apiKey, model, tier string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key not configured: %w", ErrUnavailable)
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "GeminiAPI",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	limits := limitsForTier(tier)
	rateLimiter := rate.NewLimiter(rate.Limit(float64(limits.rpm)*0.9/60.0), 1+limits.rpm/10)

	return &GeminiClient{
		client:      client,
		model:       model,
		breaker:     breaker,
		rateLimiter: rateLimiter,
	}, nil
}

// Complete sends a single prompt and returns the generated text. Failures are
// classified: ErrUnavailable when the breaker is open or the service cannot be
// reached, ErrRateLimited on a quota/429 signature, anything else unwrapped.
func (gc *GeminiClient) Complete(ctx context.Context, prompt string) (string, error) {
	tracer := otel.Tracer("gemini-client")
	ctx, span := tracer.Start(ctx, "gemini.complete")
	defer span.End()

	span.SetAttributes(
		attribute.String("gemini.model", gc.model),
		attribute.Int("gemini.prompt_chars", len(prompt)),
	)

	if err := gc.rateLimiter.Wait(ctx); err != nil {
		span.SetAttributes(attribute.Bool("gemini.rate_limited", true))
		return "", fmt.Errorf("%w: %v", ErrRateLimited, err)
	}

	result, err := gc.breaker.Execute(func() (interface{}, error) {
		model := gc.client.GenerativeModel(gc.model)
		model.SetTemperature(0.7)
		model.SetMaxOutputTokens(2048)

		resp, err := model.GenerateContent(ctx, genai.Text(prompt))
		if err != nil {
			return nil, err
		}

		return responseText(resp), nil
	})
	if err != nil {
		span.SetAttributes(attribute.Bool("gemini.error", true))
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("%w: circuit breaker open", ErrUnavailable)
		}
		if IsRateLimitError(err) {
			return "", fmt.Errorf("%w: %v", ErrRateLimited, err)
		}
		return "", err
	}

	span.SetAttributes(attribute.Bool("gemini.success", true))
	return result.(string), nil
}

// IsRateLimitError reports whether err carries a quota-exhaustion signature.
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == 429 {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "429") ||
		strings.Contains(strings.ToLower(msg), "quota") ||
		strings.Contains(msg, "RESOURCE_EXHAUSTED")
}

func responseText(resp *genai.GenerateContentResponse) string {
	var sb strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
	}
	return sb.String()
}

// Close releases the underlying API client.
func (gc *GeminiClient) Close() error {
	if gc.client != nil {
		return gc.client.Close()
	}
	return nil
}
