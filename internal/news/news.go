package news

import (
	"context"
	"html"
	"log"
	"net/url"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mmcdole/gofeed"
	"golang.org/x/sync/errgroup"
)

// MaxSummaryLength caps item summaries, in code points.
const MaxSummaryLength = 600

// Item is one news entry. Its identity is Link.
type Item struct {
	Title       string
	Summary     string
	Link        string
	PublishedAt *time.Time
}

// Source is a single feed endpoint.
type Source struct {
	URL  string
	Name string
}

// Aggregator fetches, filters and ranks items from several feeds.
type Aggregator struct {
	sources   []Source
	keywords  []string
	timeout   time.Duration
	userAgent string
}

// NewAggregator creates an aggregator. Keywords are matched case-insensitively;
// an empty keyword list disables filtering.
func NewAggregator(sources []Source, keywords []string, timeout time.Duration) *Aggregator {
	kws := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			kws = append(kws, kw)
		}
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Aggregator{
		sources:   sources,
		keywords:  kws,
		timeout:   timeout,
		userAgent: "AutoPoster/1.0 (news aggregator)",
	}
}

// Fetch returns up to limit keyword-matching items from all sources, unique by
// link, most recent first. Sources are fetched concurrently; a failing source
// contributes nothing.
func (a *Aggregator) Fetch(ctx context.Context, limit int) ([]Item, error) {
	perSource := make([][]Item, len(a.sources))

	var g errgroup.Group
	g.SetLimit(max(len(a.sources), 1))
	for i, src := range a.sources {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			items, err := a.fetchSource(ctx, src)
			if err != nil {
				log.Printf("Failed to fetch source %s: %v", src.displayName(), err)
				return nil
			}
			log.Printf("Loaded %d items from %s", len(items), src.displayName())
			perSource[i] = items
			return nil
		})
	}
	_ = g.Wait() // sources never fail the group

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var merged []Item
	for _, items := range perSource {
		for _, item := range items {
			if a.matches(item) {
				merged = append(merged, item)
			}
		}
	}

	return rank(dedupe(merged), limit), nil
}

func (a *Aggregator) fetchSource(ctx context.Context, src Source) ([]Item, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	parser := gofeed.NewParser()
	parser.UserAgent = a.userAgent
	feed, err := parser.ParseURLWithContext(src.URL, ctx)
	if err != nil {
		return nil, err
	}

	var items []Item
	for _, entry := range feed.Items {
		if item, ok := parseItem(entry); ok {
			items = append(items, item)
		}
	}
	return items, nil
}

func (a *Aggregator) matches(item Item) bool {
	if len(a.keywords) == 0 {
		return true
	}
	haystack := strings.ToLower(item.Title + " " + item.Summary)
	for _, kw := range a.keywords {
		if strings.Contains(haystack, kw) {
			return true
		}
	}
	return false
}

func parseItem(entry *gofeed.Item) (Item, bool) {
	link := strings.TrimSpace(entry.Link)
	if link == "" {
		link = strings.TrimSpace(entry.GUID)
	}
	title := strings.TrimSpace(entry.Title)
	if link == "" || title == "" {
		return Item{}, false
	}

	raw := entry.Description
	if raw == "" {
		raw = entry.Content
	}

	var published *time.Time
	if entry.PublishedParsed != nil {
		t := entry.PublishedParsed.UTC()
		published = &t
	} else if entry.UpdatedParsed != nil {
		t := entry.UpdatedParsed.UTC()
		published = &t
	}

	return Item{
		Title:       title,
		Summary:     CleanSummary(raw),
		Link:        link,
		PublishedAt: published,
	}, true
}

// dedupe keeps the first occurrence of each link.
func dedupe(items []Item) []Item {
	seen := make(map[string]struct{}, len(items))
	out := items[:0:0]
	for _, item := range items {
		if _, ok := seen[item.Link]; ok {
			continue
		}
		seen[item.Link] = struct{}{}
		out = append(out, item)
	}
	return out
}

// rank sorts by publication time descending (undated items last, original
// order kept among equals) and truncates to limit.
func rank(items []Item, limit int) []Item {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].PublishedAt, items[j].PublishedAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
	if limit >= 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

// CleanSummary strips markup, decodes entities, collapses whitespace and caps
// the result at MaxSummaryLength code points.
func CleanSummary(text string) string {
	return truncateRunes(stripHTML(text), MaxSummaryLength)
}

func stripHTML(text string) string {
	var result strings.Builder
	inTag := false
	for _, r := range text {
		if r == '<' {
			inTag = true
			result.WriteRune(' ')
			continue
		}
		if r == '>' {
			inTag = false
			continue
		}
		if !inTag {
			result.WriteRune(r)
		}
	}

	s := html.UnescapeString(result.String())
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:n]))
}

func (s Source) displayName() string {
	if s.Name != "" {
		return s.Name
	}
	return extractSourceName(s.URL)
}

func extractSourceName(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil || u.Hostname() == "" {
		return feedURL
	}
	host := strings.ToLower(u.Hostname())

	for _, prefix := range []string{"www.", "blog.", "blogs.", "rss.", "feeds."} {
		host = strings.TrimPrefix(host, prefix)
	}

	parts := strings.Split(host, ".")
	if len(parts) >= 2 {
		name := parts[len(parts)-2]
		return strings.ToUpper(name[:1]) + name[1:]
	}
	return strings.ToUpper(host[:1]) + host[1:]
}
