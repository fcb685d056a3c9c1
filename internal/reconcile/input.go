package reconcile

import (
	"fmt"
	"html"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/devblac/syt-bridge/internal/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/microcosm-cc/bluemonday"
)

const (
	maxTitleLen       = 200
	maxDescriptionLen = 5000
	maxContentLen     = 10000
	maxURLLen         = 2048
)

// textPolicy accepts plain text only; markup is rejected, not stripped.
type textPolicy struct {
	policy *bluemonday.Policy
}

func newTextPolicy() textPolicy {
	return textPolicy{policy: bluemonday.StrictPolicy()}
}

func (p textPolicy) check(field, v string, required bool, max int) (string, error) {
	v = strings.TrimSpace(v)
	if required && v == "" {
		return "", fmt.Errorf("%w: %s is required", domain.ErrInvalidInput, field)
	}
	if !utf8.ValidString(v) {
		return "", fmt.Errorf("%w: %s contains invalid characters", domain.ErrInvalidInput, field)
	}
	if utf8.RuneCountInString(v) > max {
		return "", fmt.Errorf("%w: %s exceeds %d characters", domain.ErrInvalidInput, field, max)
	}
	if !p.plain(v) {
		return "", fmt.Errorf("%w: %s must be plain text", domain.ErrInvalidInput, field)
	}
	return v, nil
}

var newlines = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// plain reports whether the sanitizer leaves v's text unchanged. Both sides
// are compared decoded with newlines folded, as the HTML tokenizer does, so
// CRLF and literal entities do not count as markup.
func (p textPolicy) plain(v string) bool {
	want := html.UnescapeString(newlines.Replace(v))
	got := html.UnescapeString(p.policy.Sanitize(v))
	return got == want
}

// checkContent validates evidence content without trimming; the signature
// covers the exact string.
func (p textPolicy) checkContent(v string) error {
	if strings.TrimSpace(v) == "" {
		return fmt.Errorf("%w: content is required", domain.ErrInvalidInput)
	}
	if !utf8.ValidString(v) {
		return fmt.Errorf("%w: content contains invalid characters", domain.ErrInvalidInput)
	}
	if utf8.RuneCountInString(v) > maxContentLen {
		return fmt.Errorf("%w: content exceeds %d characters", domain.ErrInvalidInput, maxContentLen)
	}
	if !p.plain(v) {
		return fmt.Errorf("%w: content must be plain text", domain.ErrInvalidInput)
	}
	return nil
}

func checkAssetURL(v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", nil
	}
	if len(v) > maxURLLen {
		return "", fmt.Errorf("%w: assetUrl too long", domain.ErrInvalidInput)
	}
	u, err := url.Parse(v)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: assetUrl must be an absolute http(s) URL", domain.ErrInvalidInput)
	}
	return u.String(), nil
}

func parseTxHash(v string) (common.Hash, error) {
	b, err := hexutil.Decode(strings.TrimSpace(v))
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("%w: txHash must be a 0x-prefixed 32-byte hex string", domain.ErrInvalidInput)
	}
	return common.BytesToHash(b), nil
}
