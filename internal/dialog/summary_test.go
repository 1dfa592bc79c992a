package dialog

import (
	"strings"
	"testing"
)

func TestStripMarkdownAndHTML(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Plain text", "Plain text"},
		{"**Bold** and *italic*", "Bold and italic"},
		{"# Heading\nBody", "Heading Body"},
		{"See [the form](https://example.no)", "See the form"},
		{"<p>Hei <b>du</b></p>", "Hei du"},
		{"- one\n- two", "one two"},
		{"<b>Hei</b> du.", "Hei du."},
		{"~~gammel~~ ny", "gammel ny"},
		{"```\nkode\n```", "kode"},
		{"![logo](https://example.no/l.png) Skatteetaten", "logo Skatteetaten"},
	}
	for _, tc := range cases {
		if got := StripMarkdownAndHTML(tc.in); got != tc.want {
			t.Errorf("StripMarkdownAndHTML(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestPlainTextSummaryIsUnchanged(t *testing.T) {
	for _, in := range []string{
		"Du har fått en melding",
		"Ref: org_nr_974761076",
		"5 * 3 kr og 2 * 4 kr",
		"AT&amp;T",
		"Frist: 31.12.2025 (se vedlegg)",
		"Beløp: 1 000 kr\nForfall: mandag",
	} {
		if got := StripMarkdownAndHTML(in); got != normalize(in) {
			t.Errorf("StripMarkdownAndHTML(%q) = %q", in, got)
		}
		if HasMarkdownOrHTML(in) {
			t.Errorf("plain text %q flagged", in)
		}
	}
}

func TestHasMarkdownOrHTML(t *testing.T) {
	if !HasMarkdownOrHTML("Du har fått en **viktig** melding") {
		t.Fatalf("markdown not flagged")
	}
}

func TestDescribePrimaryLanguageFirst(t *testing.T) {
	got := Describe(TextNotificationSent, "en", "ola@example.no", "email")
	if len(got) != 3 {
		t.Fatalf("expected three languages, got %v", got)
	}
	if !strings.HasPrefix(got[0], "en:Notification about received message sent to ola@example.no on email") {
		t.Fatalf("unexpected first text %q", got[0])
	}
}
