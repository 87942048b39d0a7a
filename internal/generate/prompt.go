package generate

import (
	"fmt"
	"strings"

	"github.com/TobiSchelling/AutoPoster/internal/llm"
	"github.com/TobiSchelling/AutoPoster/internal/news"
	"github.com/TobiSchelling/AutoPoster/internal/style"
)

const systemPrompt = `You are a senior tech copywriter for LinkedIn. You write in %s, add analysis and practical takeaways, and never produce a dry retelling of the news.`

const userPrompt = `Write a LinkedIn post about this news item:
Title: %s
Summary: %s
Link: %s

%s
%s
Requirements:
1) Write in %s.
2) Add 3-5 hashtags at the end.
3) The post must end with a question.
4) Give analysis and a practical angle.
5) Do not just retell the news.
Return only the finished post text, without explanations.`

// BuildPrompt returns the chat messages for item in the given style.
// The output depends only on its inputs.
func BuildPrompt(item news.Item, s style.Style, language string) []llm.Message {
	if strings.TrimSpace(language) == "" {
		language = DefaultLanguage
	}
	p := s.Profile()
	return []llm.Message{
		{Role: "system", Content: fmt.Sprintf(systemPrompt, language)},
		{Role: "user", Content: fmt.Sprintf(userPrompt,
			item.Title, item.Summary, item.Link,
			p.Directive, p.LengthRule, language)},
	}
}
