package style

import (
	"fmt"
	"strings"
)

// Style is a fixed content-shaping mode for generated posts.
type Style int

const (
	Expert Style = iota
	Provocative
	Analytical
	Short
)

// Profile holds the prompt shaping and length policy for one style.
type Profile struct {
	Name       string
	Directive  string
	LengthRule string
	MinLength  int // code points
	MaxLength  int // code points
	MaxTokens  int
}

var profiles = [...]Profile{
	Expert: {
		Name:       "expert",
		Directive:  "Style: expert. Confident, practical tone focused on how this applies to business and software development.",
		LengthRule: "Length: 800-1200 characters.",
		MinLength:  550,
		MaxLength:  1600,
		MaxTokens:  1200,
	},
	Provocative: {
		Name:       "provocative",
		Directive:  "Style: provocative. Bold, debate-provoking tone, but never toxic or insulting.",
		LengthRule: "Length: 800-1200 characters.",
		MinLength:  550,
		MaxLength:  1600,
		MaxTokens:  1200,
	},
	Analytical: {
		Name:       "analytical",
		Directive:  "Style: analytical. Structure it as: signal, consequences, conclusion, next step.",
		LengthRule: "Length: 800-1200 characters.",
		MinLength:  550,
		MaxLength:  1600,
		MaxTokens:  1200,
	},
	Short: {
		Name:       "short",
		Directive:  "Style: short. A compact, energetic take with one clear point and no filler.",
		LengthRule: "Length: 300-600 characters.",
		MinLength:  180,
		MaxLength:  900,
		MaxTokens:  700,
	},
}

var aliases = map[string]Style{
	"expert":        Expert,
	"експертний":    Expert,
	"provocative":   Provocative,
	"провокаційний": Provocative,
	"analytical":    Analytical,
	"аналітичний":   Analytical,
	"short":         Short,
	"короткий":      Short,
}

// All returns every style in declaration order.
func All() []Style {
	return []Style{Expert, Provocative, Analytical, Short}
}

// Parse resolves a style name or alias, case-insensitively.
func Parse(name string) (Style, error) {
	s, ok := aliases[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("unknown style %q (expected one of: %s)", name, strings.Join(Names(), ", "))
	}
	return s, nil
}

// Names returns the canonical style names.
func Names() []string {
	names := make([]string, 0, len(profiles))
	for _, p := range profiles {
		names = append(names, p.Name)
	}
	return names
}

// Profile returns the shaping rules for s.
func (s Style) Profile() Profile {
	if s < 0 || int(s) >= len(profiles) {
		return profiles[Analytical]
	}
	return profiles[s]
}

func (s Style) String() string {
	if s < 0 || int(s) >= len(profiles) {
		return fmt.Sprintf("Style(%d)", int(s))
	}
	return profiles[s].Name
}
