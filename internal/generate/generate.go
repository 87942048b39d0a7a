package generate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/TobiSchelling/AutoPoster/internal/llm"
	"github.com/TobiSchelling/AutoPoster/internal/news"
	"github.com/TobiSchelling/AutoPoster/internal/style"
)

// ErrGeneration is returned once every attempt has failed.
var ErrGeneration = errors.New("generation failed")

// Options configures a Generator.
type Options struct {
	Model          string
	ProviderPrefix string
	Temperature    float64
	MaxRetries     int
	Backoff        time.Duration
	Language       string
	Guardrails     Guardrails
}

// Generator turns a news item into validated post text.
type Generator struct {
	llm   llm.Completer
	opts  Options
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a generator backed by the given completion client.
func New(c llm.Completer, opts Options) *Generator {
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 1
	}
	if opts.Temperature == 0 {
		opts.Temperature = 0.7
	}
	return &Generator{llm: c, opts: opts, sleep: sleepContext}
}

// Generate produces normalized post text for item in style s.
//
// Each attempt walks the model candidates, moving to the next only when
// the endpoint reports the model unavailable. Any other failure, including
// output rejected by the guardrails, ends the attempt; the next attempt
// starts after Backoff*attempt.
func (g *Generator) Generate(ctx context.Context, item news.Item, s style.Style) (string, error) {
	messages := BuildPrompt(item, s, g.opts.Language)
	candidates := ModelCandidates(g.opts.Model, g.opts.ProviderPrefix)

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= g.opts.MaxRetries; attempt++ {
		attempts = attempt
		text, err := g.attempt(ctx, messages, candidates, s)
		if err == nil {
			return text, nil
		}
		lastErr = err
		log.Printf("Generation attempt %d/%d failed: %v", attempt, g.opts.MaxRetries, err)

		if attempt < g.opts.MaxRetries {
			if err := g.sleep(ctx, g.opts.Backoff*time.Duration(attempt)); err != nil {
				lastErr = fmt.Errorf("%w (last failure: %v)", err, lastErr)
				break
			}
		}
	}

	return "", fmt.Errorf("%w after %d attempts: %w", ErrGeneration, attempts, lastErr)
}

func (g *Generator) attempt(ctx context.Context, messages []llm.Message, candidates []string, s style.Style) (string, error) {
	p := s.Profile()

	var err error
	for i, model := range candidates {
		var raw string
		raw, err = g.llm.Complete(ctx, llm.ChatRequest{
			Model:       model,
			Messages:    messages,
			Temperature: g.opts.Temperature,
			MaxTokens:   p.MaxTokens,
		})
		if errors.Is(err, llm.ErrModelUnavailable) && i < len(candidates)-1 {
			log.Printf("Model %q unavailable, trying %q", model, candidates[i+1])
			continue
		}
		if err != nil {
			return "", err
		}
		return g.opts.Guardrails.Normalize(raw, p)
	}
	return "", err
}

// ModelCandidates lists the model ids to try, in order. When a provider
// prefix is configured and model is not already qualified, the qualified
// id is tried before the bare one.
func ModelCandidates(model, providerPrefix string) []string {
	model = strings.TrimSpace(model)
	prefix := strings.Trim(strings.TrimSpace(providerPrefix), "/")
	if model == "" || prefix == "" || strings.Contains(model, "/") {
		return []string{model}
	}
	return []string{prefix + "/" + model, model}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
