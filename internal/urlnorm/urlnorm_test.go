package urlnorm

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"strips www and tracking params", "https://www.site.com/x/?utm_source=foo", "https://site.com/x"},
		{"upgrades scheme to https", "http://site.com/x", "https://site.com/x"},
		{"preserves root path", "https://site.com/", "https://site.com/"},
		{"preserves non-tracking ids", "https://site.com/a?article_id=5", "https://site.com/a?article_id=5"},
		{"drops fragment", "https://site.com/a#section", "https://site.com/a"},
		{"unparseable returns input", "://not a url", "://not a url"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := Normalize(c.in); got != c.want {
				t.Errorf("Normalize(%q) = %q, want %q", c.in, got, c.want)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	// P7: normalize(normalize(u)) == normalize(u)
	inputs := []string{
		"https://www.site.com/x/?utm_source=foo&id=5",
		"http://SITE.COM/Path/",
		"https://site.com/a#frag",
	}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent: Normalize(%q)=%q, Normalize(that)=%q", in, once, twice)
		}
	}
}

func TestDedupAliasesMatch(t *testing.T) {
	a := Normalize("https://www.site.com/x/?utm_source=foo")
	b := Normalize("http://site.com/x")
	if a != b {
		t.Errorf("expected equal normalized URLs, got %q and %q", a, b)
	}
}

func TestExtractCanonical(t *testing.T) {
	html := `<html><head><link rel="canonical" href="https://site.com/real"></head></html>`
	if got := ExtractCanonical(html); got != "https://site.com/real" {
		t.Errorf("ExtractCanonical = %q", got)
	}
	if got := ExtractCanonical(`<html></html>`); got != "" {
		t.Errorf("ExtractCanonical on missing tag = %q, want empty", got)
	}
}
