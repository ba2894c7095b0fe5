package flow

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var tokenRe = regexp.MustCompile(`^[A-Za-z0-9]{14,18}$`)

// ValidToken reports whether a message looks like an API key or secret.
func ValidToken(s string) bool {
	return tokenRe.MatchString(strings.TrimSpace(s))
}

var tokenLikeRe = regexp.MustCompile(`^[A-Za-z0-9]{10,}$`)

// SafePreview redacts token-looking messages and collapses the rest to
// a single short line for logging.
func SafePreview(s string) string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return ""
	}
	if tokenLikeRe.MatchString(trimmed) {
		return "<token>"
	}
	single := strings.Join(strings.Fields(trimmed), " ")
	if len(single) > 80 {
		return single[:79] + "…"
	}
	return single
}

var cancelTokens = map[string]bool{
	"/cancel":      true,
	"cancel":       true,
	"bekor":        true,
	"bekor qilish": true,
}

// IsCancel reports whether the text is one of the global cancel tokens.
func IsCancel(s string) bool {
	return cancelTokens[strings.ToLower(strings.TrimSpace(s))]
}

var skipTokens = map[string]bool{
	"skip":   true,
	"-":      true,
	"yo'q":   true,
	"yoq":    true,
	"otkaz":  true,
	"o'tkaz": true,
}

// IsSkip reports the shared skip vocabulary. The delivery flow accepts
// two extra spellings matching its skip button label.
func IsSkip(s string) bool {
	return skipTokens[strings.ToLower(strings.TrimSpace(s))]
}

func IsSkipDelivery(s string) bool {
	normalized := strings.ToLower(strings.TrimSpace(s))
	return skipTokens[normalized] || normalized == "otkazib yuborish" || normalized == "o'tkazib yuborish"
}

var (
	yesTokens = map[string]bool{"ha": true, "ha.": true, "yes": true, "y": true, "true": true, "1": true}
	noTokens  = map[string]bool{"yo'q": true, "yoq": true, "yo'q.": true, "no": true, "n": true, "false": true, "0": true}
)

// ParseYesNo returns (value, ok). Unrecognized text is not a decision.
func ParseYesNo(s string) (bool, bool) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	if yesTokens[normalized] {
		return true, true
	}
	if noTokens[normalized] {
		return false, true
	}
	return false, false
}

// ParseQty accepts decimal comma or point notation.
func ParseQty(s string) (decimal.Decimal, error) {
	normalized := strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	return decimal.NewFromString(normalized)
}

// ParseDate validates YYYY-MM-DD and returns it re-rendered.
func ParseDate(s string) (string, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return "", err
	}
	return t.Format("2006-01-02"), nil
}

// ParseClock validates HH:MM and returns it re-rendered.
func ParseClock(s string) (string, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return "", err
	}
	return t.Format("15:04"), nil
}
