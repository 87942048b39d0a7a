package news

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
)

// MinSummaryLength is the summary length below which Enrich fetches the
// article body.
const MinSummaryLength = 120

// Enricher fills short item summaries with readable article text.
type Enricher struct {
	client *http.Client
}

// NewEnricher creates an enricher with the given per-request timeout.
func NewEnricher(timeout time.Duration) *Enricher {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Enricher{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}
}

// Enrich returns item with its summary replaced by extracted article text
// when the original summary is short. Failures leave the item unchanged.
func (e *Enricher) Enrich(ctx context.Context, item Item) Item {
	if len([]rune(item.Summary)) >= MinSummaryLength {
		return item
	}

	text, err := e.fetchArticleText(ctx, item.Link)
	if err != nil {
		log.Printf("Could not enrich %s: %v", item.Link, err)
		return item
	}
	if text == "" {
		return item
	}

	item.Summary = CleanSummary(text)
	return item
}

func (e *Enricher) fetchArticleText(ctx context.Context, articleURL string) (string, error) {
	parsedURL, err := url.Parse(articleURL)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, articleURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "AutoPoster/1.0 (news aggregator)")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 5<<20))
	if err != nil {
		return "", err
	}

	article, err := readability.FromReader(strings.NewReader(string(body)), parsedURL)
	if err != nil {
		return "", err
	}

	text := strings.TrimSpace(article.TextContent)
	if len(text) > 100 {
		return text, nil
	}
	return "", nil
}
