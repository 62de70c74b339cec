package sidebar

import (
	"strings"
	"testing"
)

func TestSynchronize(t *testing.T) {
	tests := []struct {
		name           string
		doc            string
		online         []string
		want           string
		wantConfigured bool
	}{
		{
			name:           "replaces old list",
			doc:            "intro\n# Streams\n> old1  \n> old2  \nfooter",
			online:         []string{"new1"},
			want:           "intro\n# Streams\n> new1  \nfooter",
			wantConfigured: true,
		},
		{
			name:           "no header is a no-op",
			doc:            "intro\n## Links\n> quote  \nfooter",
			online:         []string{"a"},
			want:           "intro\n## Links\n> quote  \nfooter",
			wantConfigured: false,
		},
		{
			name:           "empty list keeps header",
			doc:            "# Streams\n> a  \n> b  \n\nRules",
			online:         nil,
			want:           "# Streams\n\nRules",
			wantConfigured: true,
		},
		{
			name:           "header at end without newline",
			doc:            "intro\n# Streams",
			online:         []string{"a", "b"},
			want:           "intro\n# Streams\n> a  \n> b  ",
			wantConfigured: true,
		},
		{
			name:           "trailing newline kept",
			doc:            "# Streams\n> x  \n",
			online:         []string{"y"},
			want:           "# Streams\n> y  \n",
			wantConfigured: true,
		},
		{
			name:           "quotes elsewhere untouched",
			doc:            "> motto  \n# Streams\n> old  \ntext\n> another quote",
			online:         []string{"new"},
			want:           "> motto  \n# Streams\n> new  \ntext\n> another quote",
			wantConfigured: true,
		},
		{
			name:           "header with trailing text",
			doc:            "# Streams (live now)\n> old  \nend",
			online:         []string{"a"},
			want:           "# Streams (live now)\n> a  \nend",
			wantConfigured: true,
		},
		{
			name:           "order is caller order",
			doc:            "# Streams",
			online:         []string{"zeta", "alpha"},
			want:           "# Streams\n> zeta  \n> alpha  ",
			wantConfigured: true,
		},
		{
			name:           "crlf document keeps crlf",
			doc:            "intro\r\n# Streams\r\n> old  \r\nfooter",
			online:         []string{"new", "other"},
			want:           "intro\r\n# Streams\r\n> new  \r\n> other  \r\nfooter",
			wantConfigured: true,
		},
		{
			name:           "crlf list at end of document",
			doc:            "intro\r\n# Streams\r\n> old  ",
			online:         []string{"new"},
			want:           "intro\r\n# Streams\r\n> new  ",
			wantConfigured: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, configured := Synchronize(tt.doc, DefaultHeader, tt.online)
			if configured != tt.wantConfigured {
				t.Errorf("configured = %v, want %v", configured, tt.wantConfigured)
			}
			if got != tt.want {
				t.Errorf("Synchronize() =\n%q\nwant\n%q", got, tt.want)
			}
		})
	}
}

func TestSynchronizeIdempotent(t *testing.T) {
	docs := []string{
		"",
		"# Streams",
		"intro\n# Streams\n> old1  \n> old2  \nfooter",
		"a\n# Streams\n\n> not part of the list\n",
		"# Streams\n> x  \n> y  \n# Streams\n> z  ",
		"> q\n# Streams\r\n> old  \r\nrest",
		"intro\r\n# Streams\r\n> old  ",
	}
	sets := [][]string{nil, {"one"}, {"one", "two", "three"}}
	for _, doc := range docs {
		for _, online := range sets {
			once, _ := Synchronize(doc, DefaultHeader, online)
			twice, _ := Synchronize(once, DefaultHeader, online)
			if once != twice {
				t.Errorf("not idempotent for doc %q set %v:\nonce  %q\ntwice %q", doc, online, once, twice)
			}
		}
	}
}

// Every line outside the list survives in its original order.
func TestSynchronizePreservesContent(t *testing.T) {
	doc := "title\n\n> pinned  \n# Streams\n> s1  \n> s2  \nrules:\n1. be nice\n> footnote"
	got, _ := Synchronize(doc, DefaultHeader, []string{"n1", "n2"})

	var kept []string
	for _, line := range strings.Split(got, "\n") {
		if line == "> n1  " || line == "> n2  " {
			continue
		}
		kept = append(kept, line)
	}
	want := []string{"title", "", "> pinned  ", "# Streams", "rules:", "1. be nice", "> footnote"}
	if strings.Join(kept, "\n") != strings.Join(want, "\n") {
		t.Errorf("kept lines = %q, want %q", kept, want)
	}
}

func TestSynchronizeCustomHeader(t *testing.T) {
	got, ok := Synchronize("**Live**\n> a  \nx", "**Live**", []string{"b"})
	if !ok || got != "**Live**\n> b  \nx" {
		t.Errorf("Synchronize() = %q, %v", got, ok)
	}
	if _, ok := Synchronize("anything", "", []string{"b"}); ok {
		t.Error("empty header reported as configured")
	}
}
