package doi_test

import (
	"strings"
	"testing"

	"github.com/hazz-dev/doiwatch/internal/doi"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"bare name", "10.1000/xyz123", "10.1000/xyz123", false},
		{"doi prefix", "doi:10.1000/xyz123", "10.1000/xyz123", false},
		{"resolver url", "https://doi.org/10.1000/xyz123", "10.1000/xyz123", false},
		{"legacy resolver", "http://dx.doi.org/10.1000/xyz123", "10.1000/xyz123", false},
		{"uppercase", "10.1000/ABC", "10.1000/abc", false},
		{"surrounding space", "  10.1000/xyz123  ", "10.1000/xyz123", false},
		{"nested slashes", "10.1093/ajae/aaq063", "10.1093/ajae/aaq063", false},
		{"missing suffix", "10.1000/", "", true},
		{"wrong directory", "11.1000/xyz", "", true},
		{"not a doi", "example.com/foo", "", true},
		{"empty", "", "", true},
		{"whitespace in suffix", "10.1000/x y", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := doi.Normalize(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestResolverURL(t *testing.T) {
	got := doi.ResolverURL("10.1000/xyz123")
	if got != "https://doi.org/10.1000/xyz123" {
		t.Errorf("unexpected resolver URL %q", got)
	}
	if !strings.HasPrefix(got, doi.ResolverBase) {
		t.Errorf("resolver URL %q does not start with %q", got, doi.ResolverBase)
	}
}

func TestResolverURL_EscapesSpecials(t *testing.T) {
	got := doi.ResolverURL("10.1000/a<b>c")
	if strings.Contains(got, "<") || strings.Contains(got, ">") {
		t.Errorf("expected angle brackets escaped, got %q", got)
	}
	if !strings.Contains(got, "10.1000/") {
		t.Errorf("expected literal registrant slash, got %q", got)
	}
}
