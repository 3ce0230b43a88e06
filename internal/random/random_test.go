package random

import (
	"regexp"
	"testing"
)

func TestRandom(t *testing.T) {
	tests := []struct {
		name    string
		gen     func(uint) (string, error)
		length  uint
		pattern *regexp.Regexp
	}{
		{
			name:    "zero length letters",
			gen:     Letters,
			length:  0,
			pattern: regexp.MustCompile(`^$`),
		},
		{
			name:    "32 letters",
			gen:     Letters,
			length:  32,
			pattern: regexp.MustCompile(`^[a-zA-Z]{32}$`),
		},
		{
			name:    "9 alphanumerics",
			gen:     Alphanumeric,
			length:  9,
			pattern: regexp.MustCompile(`^[a-z0-9]{9}$`),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.gen(tt.length)
			if err != nil {
				t.Fatalf("unexpected error = %v", err)
			}
			if !tt.pattern.MatchString(got) {
				t.Errorf("got %q, want match for %s", got, tt.pattern)
			}
		})
	}
}
