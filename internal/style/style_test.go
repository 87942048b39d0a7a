package style

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		input string
		want  Style
	}{
		{"expert", Expert},
		{"Provocative", Provocative},
		{"  analytical ", Analytical},
		{"SHORT", Short},
		{"короткий", Short},
		{"аналітичний", Analytical},
	}
	for _, tt := range tests {
		got, err := Parse(tt.input)
		if err != nil {
			t.Errorf("Parse(%q) unexpected error: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Parse(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestParseUnknown(t *testing.T) {
	if _, err := Parse("poetic"); err == nil {
		t.Error("expected error for unknown style")
	}
	if _, err := Parse(""); err == nil {
		t.Error("expected error for empty style")
	}
}

func TestProfiles(t *testing.T) {
	for _, s := range All() {
		p := s.Profile()
		if p.Name != s.String() {
			t.Errorf("profile name %q != style string %q", p.Name, s.String())
		}
		if p.MinLength <= 0 || p.MaxLength <= p.MinLength {
			t.Errorf("%s: bad length bounds %d..%d", s, p.MinLength, p.MaxLength)
		}
		if p.Directive == "" || p.LengthRule == "" {
			t.Errorf("%s: empty prompt rules", s)
		}
	}

	if Short.Profile().MaxTokens >= Analytical.Profile().MaxTokens {
		t.Error("expected short style to have a smaller token budget")
	}
	if Short.Profile().MinLength >= Expert.Profile().MinLength {
		t.Error("expected short style to have a smaller minimum")
	}
}

func TestRoundTripNames(t *testing.T) {
	for _, name := range Names() {
		s, err := Parse(name)
		if err != nil {
			t.Fatalf("Parse(%q): %v", name, err)
		}
		if s.String() != name {
			t.Errorf("round trip %q -> %q", name, s.String())
		}
	}
}
