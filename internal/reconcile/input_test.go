package reconcile

import (
	"errors"
	"testing"

	"github.com/devblac/syt-bridge/internal/domain"
)

func TestCheckContentPlainText(t *testing.T) {
	p := newTextPolicy()
	tests := []struct {
		name    string
		content string
		ok      bool
	}{
		{"simple", "The vote was rigged", true},
		{"crlf", "line one\r\nline two", true},
		{"lone_cr", "line one\rline two", true},
		{"literal_entity", "x &amp; y", true},
		{"ampersand", "Tom & Jerry", true},
		{"less_than", "a < b", true},
		{"heart", "I <3 this", true},
		{"unicode", "débat über 💬", true},
		{"tag", "see <b>this</b>", false},
		{"script", "<script>alert(1)</script>", false},
		{"comment", "hidden <!-- note --> text", false},
		{"link", `<a href="https://x.test">x</a>`, false},
		{"blank", "  \n ", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := p.checkContent(tc.content)
			if tc.ok && err != nil {
				t.Fatalf("expected %q to pass, got %v", tc.content, err)
			}
			if !tc.ok && !errors.Is(err, domain.ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput for %q, got %v", tc.content, err)
			}
		})
	}
}

func TestCheckTextTrimsAndBounds(t *testing.T) {
	p := newTextPolicy()
	got, err := p.check("title", "  Pineapple on pizza?\r\n", true, maxTitleLen)
	if err != nil || got != "Pineapple on pizza?" {
		t.Fatalf("got %q, %v", got, err)
	}
	if _, err := p.check("description", "first\r\nsecond & third", false, maxDescriptionLen); err != nil {
		t.Fatalf("multi-line description rejected: %v", err)
	}
	if _, err := p.check("title", "<i>x</i>", true, maxTitleLen); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected markup rejection, got %v", err)
	}
	if _, err := p.check("title", "abc", true, 2); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected length rejection, got %v", err)
	}
}
