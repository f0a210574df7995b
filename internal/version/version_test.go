// ABOUTME: Tests for version constants
// ABOUTME: Ensures product identification is defined and well formed
package version

import (
	"strings"
	"testing"
)

func TestDefined(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"Version", Version},
		{"Product", Product},
		{"Manufacturer", Manufacturer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value == "" {
				t.Errorf("%s should not be empty", tt.name)
			}
			if len(tt.value) > 100 {
				t.Errorf("%s is unreasonably long", tt.name)
			}
			for _, placeholder := range []string{"TODO", "FIXME", "XXX", "placeholder"} {
				if tt.value == placeholder {
					t.Errorf("%s should not be placeholder value: %s", tt.name, placeholder)
				}
			}
		})
	}
}

func TestString(t *testing.T) {
	s := String()
	if !strings.HasPrefix(s, Product) {
		t.Errorf("expected %q to start with %q", s, Product)
	}
	if !strings.HasSuffix(s, Version) {
		t.Errorf("expected %q to end with %q", s, Version)
	}
}
