package generate

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/TobiSchelling/AutoPoster/internal/llm"
	"github.com/TobiSchelling/AutoPoster/internal/style"
)

// ErrValidation marks model output that fails the quality guardrails.
// It is retryable: the generator asks the model again.
var ErrValidation = errors.New("post failed validation")

const (
	DefaultLanguage        = "Ukrainian"
	DefaultClosingQuestion = "Що ви про це думаєте?"

	minHashtags = 3
)

// DefaultHashtags are appended when a post carries too few hashtags.
var DefaultHashtags = []string{"#AI", "#Tech", "#LinkedIn", "#Innovation", "#Startup"}

var hashtagRe = regexp.MustCompile(`#[\p{L}\p{M}\p{N}_]+`)

// Guardrails normalizes raw model output into publishable text.
type Guardrails struct {
	ClosingQuestion string
	DefaultHashtags []string
}

func (g Guardrails) withDefaults() Guardrails {
	q := strings.TrimSpace(g.ClosingQuestion)
	if q == "" {
		q = DefaultClosingQuestion
	}
	if !strings.HasSuffix(q, "?") {
		q += "?"
	}
	g.ClosingQuestion = q

	var tags []string
	for _, tag := range g.DefaultHashtags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if !strings.HasPrefix(tag, "#") {
			tag = "#" + tag
		}
		if hashtagRe.FindString(tag) == tag {
			tags = append(tags, tag)
		}
	}
	if len(tags) < minHashtags {
		tags = DefaultHashtags
	}
	g.DefaultHashtags = tags
	return g
}

// Normalize applies the length, hashtag, closing-question and paragraph
// rules of profile p. Output shorter than the profile minimum fails with
// ErrValidation; longer output is truncated so the final text, including
// anything appended, fits the maximum.
func (g Guardrails) Normalize(raw string, p style.Profile) (string, error) {
	g = g.withDefaults()

	body := strings.TrimSpace(llm.StripCodeFence(raw))
	n := utf8.RuneCountInString(body)
	if n < p.MinLength {
		return "", fmt.Errorf("%w: %d characters, %s style needs at least %d", ErrValidation, n, p.Name, p.MinLength)
	}
	if n > p.MaxLength {
		body = truncateRunes(body, p.MaxLength)
	}

	for {
		out := g.finish(body)
		size := utf8.RuneCountInString(out)
		excess := size - p.MaxLength
		if excess <= 0 {
			if size < p.MinLength {
				return "", fmt.Errorf("%w: %d characters after truncation", ErrValidation, size)
			}
			return out, nil
		}
		if body == "" {
			return "", fmt.Errorf("%w: appended text exceeds %d characters", ErrValidation, p.MaxLength)
		}
		body = truncateRunes(body, utf8.RuneCountInString(body)-excess)
	}
}

func (g Guardrails) finish(body string) string {
	text := body

	if have := len(hashtagRe.FindAllString(text, -1)); have < minHashtags {
		text += "\n" + strings.Join(g.DefaultHashtags[:minHashtags-have], " ")
	}

	if !strings.HasSuffix(text, "?") {
		text += "\n\n" + g.ClosingQuestion
	}

	if !strings.Contains(text, "\n") {
		text = splitParagraphs(text)
	}
	return text
}

// CountHashtags returns the number of hashtag-shaped tokens in text.
func CountHashtags(text string) int {
	return len(hashtagRe.FindAllString(text, -1))
}

// splitParagraphs breaks text in two at the whitespace closest to its middle.
func splitParagraphs(text string) string {
	runes := []rune(text)
	mid := len(runes) / 2

	cut := -1
	for d := 0; d <= mid; d++ {
		if i := mid - d; i > 0 && unicode.IsSpace(runes[i]) {
			cut = i
			break
		}
		if i := mid + d; i < len(runes)-1 && unicode.IsSpace(runes[i]) {
			cut = i
			break
		}
	}
	if cut < 0 {
		cut = mid
	}

	left := strings.TrimRightFunc(string(runes[:cut]), unicode.IsSpace)
	right := strings.TrimLeftFunc(string(runes[cut:]), unicode.IsSpace)
	return left + "\n\n" + right
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return strings.TrimRightFunc(string(runes[:n]), unicode.IsSpace)
}
