package analyses

import (
	"errors"
	"testing"
)

func TestValidateLink(t *testing.T) {
	cases := []struct {
		name  string
		link  string
		want  string
		issue string
	}{
		{name: "valid", link: "https://www.ifood.com.br/delivery/sao-paulo-sp/burger-place/abc", want: "https://www.ifood.com.br/delivery/sao-paulo-sp/burger-place/abc"},
		{name: "bare_domain", link: "https://ifood.com.br/delivery/x", want: "https://ifood.com.br/delivery/x"},
		{name: "uppercase_host", link: "  HTTPS://WWW.IFOOD.COM.BR/delivery/x#menu ", want: "https://www.ifood.com.br/delivery/x"},
		{name: "empty", link: "   ", issue: "required"},
		{name: "ftp", link: "ftp://www.ifood.com.br/delivery/x", issue: "must be http or https"},
		{name: "other_host", link: "https://example.com/delivery/x", issue: "unsupported marketplace"},
		{name: "lookalike_host", link: "https://notifood.com.br/delivery/x", issue: "unsupported marketplace"},
		{name: "root_path", link: "https://www.ifood.com.br/", issue: "must point at an establishment page"},
		{name: "no_scheme", link: "www.ifood.com.br/delivery/x", issue: "must be http or https"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ValidateLink(tc.link, nil)
			if tc.issue == "" {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				if got != tc.want {
					t.Fatalf("expected %q, got %q", tc.want, got)
				}
				return
			}
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if vErr.Issue != tc.issue {
				t.Fatalf("expected issue %q, got %q", tc.issue, vErr.Issue)
			}
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected errors.Is ErrValidation")
			}
		})
	}
}

func TestValidateLinkCustomDomains(t *testing.T) {
	if _, err := ValidateLink("https://shop.rappi.com.br/restaurant/1", []string{"rappi.com.br"}); err != nil {
		t.Fatalf("expected configured domain to be accepted: %v", err)
	}
	if _, err := ValidateLink("https://www.ifood.com.br/delivery/x", []string{"rappi.com.br"}); err == nil {
		t.Fatalf("expected default domain to be rejected when domains are configured")
	}
}
