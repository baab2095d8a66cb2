package redaction

import (
	"regexp"
	"strings"
)

// Category represents a class of sensitive content the redactor recognizes.
type Category string

const (
	CategoryEmail      Category = "email"
	CategoryIPv4       Category = "ipv4"
	CategoryIPv6       Category = "ipv6"
	CategoryCreditCard Category = "credit_card"
	CategoryIBAN       Category = "iban"
)

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)

	ipv4Pattern = regexp.MustCompile(`\b\d{1,3}(?:\.\d{1,3}){3}\b`)

	// Common textual IPv6 forms: full, trailing-compressed and
	// leading-compressed. Best effort, not a full RFC 4291 parser.
	ipv6Pattern = regexp.MustCompile(`(?:[0-9a-fA-F]{1,4}:){7}[0-9a-fA-F]{1,4}|(?:[0-9a-fA-F]{1,4}:){1,6}:[0-9a-fA-F]{1,4}|::(?:[0-9a-fA-F]{1,4}:){0,5}[0-9a-fA-F]{1,4}`)

	// Digit sequences with optional space/dash separators. Candidates are
	// confirmed with a Luhn check before being counted as credit cards.
	creditCardPattern = regexp.MustCompile(`\b(?:\d[ \-]?){12,18}\d\b`)

	// Country code + check digits + BBAN. Confirmed by country prefix and
	// per-country length, not by the full mod-97 checksum (best effort).
	ibanPattern = regexp.MustCompile(`\b[A-Z]{2}\d{2}[A-Z0-9]{10,30}\b`)
)

// ibanLengths maps IBAN country codes to their exact total length.
var ibanLengths = map[string]int{
	"AT": 20, "BE": 16, "CH": 21, "CZ": 24, "DE": 22,
	"DK": 18, "ES": 24, "FI": 18, "FR": 27, "GB": 22,
	"GR": 27, "HR": 21, "HU": 28, "IE": 22, "IT": 27,
	"LU": 20, "NL": 18, "NO": 15, "PL": 28, "PT": 25,
	"RO": 24, "SE": 24, "SI": 19, "SK": 24,
}

// placeholders are distinct per category and deliberately shaped so that no
// category pattern can match them again, which makes redaction idempotent.
var placeholders = map[Category]string{
	CategoryEmail:      "[EMAIL_REDACTED]",
	CategoryIPv4:       "[IPV4_REDACTED]",
	CategoryIPv6:       "[IPV6_REDACTED]",
	CategoryCreditCard: "[CREDIT_CARD_REDACTED]",
	CategoryIBAN:       "[IBAN_REDACTED]",
}

// Redact replaces sensitive substrings with category placeholders and
// returns the redacted text plus a count of redactions per category.
// It is a pure function: redacting already-redacted text is a no-op.
func Redact(text string) (string, map[Category]int) {
	counts := make(map[Category]int)
	redacted := text

	// Order matters: emails first so their digits and dots are not
	// consumed by the numeric patterns, IPv6 before IPv4.
	redacted = replaceAll(redacted, emailPattern, CategoryEmail, nil, counts)
	redacted = replaceAll(redacted, ipv6Pattern, CategoryIPv6, validIPv6, counts)
	redacted = replaceAll(redacted, ipv4Pattern, CategoryIPv4, validIPv4, counts)
	redacted = replaceAll(redacted, ibanPattern, CategoryIBAN, validIBAN, counts)
	redacted = replaceAll(redacted, creditCardPattern, CategoryCreditCard, luhnValid, counts)

	return redacted, counts
}

// RedactMessages redacts a slice of message contents joined by newlines,
// the same shape the pipeline logs for a multi-message prompt.
func RedactMessages(contents []string) (string, map[Category]int) {
	return Redact(strings.Join(contents, "\n"))
}

// CountsToAttributes converts a category count map into telemetry attribute
// form (string keys, only non-zero entries).
func CountsToAttributes(counts map[Category]int) map[string]int {
	out := make(map[string]int, len(counts))
	for cat, n := range counts {
		if n > 0 {
			out[string(cat)] = n
		}
	}
	return out
}

func replaceAll(text string, pattern *regexp.Regexp, cat Category, valid func(string) bool, counts map[Category]int) string {
	return pattern.ReplaceAllStringFunc(text, func(match string) string {
		if valid != nil && !valid(match) {
			return match
		}
		counts[cat]++
		return placeholders[cat]
	})
}

func validIPv4(s string) bool {
	for _, part := range strings.Split(s, ".") {
		if len(part) > 1 && part[0] == '0' {
			return false
		}
		n := 0
		for _, c := range part {
			n = n*10 + int(c-'0')
		}
		if n > 255 {
			return false
		}
	}
	return true
}

func validIPv6(s string) bool {
	// The regexp already constrains the shape; reject sequences that are
	// only hex words joined by single colons but too short to be plausible
	// (e.g. "de:ad"). At least three groups are required.
	return strings.Count(s, ":") >= 2
}

func validIBAN(s string) bool {
	want, ok := ibanLengths[s[:2]]
	return ok && len(s) == want
}

// luhnValid reports whether the digit sequence (separators stripped) passes
// the Luhn checksum, reducing false positives on arbitrary numbers.
func luhnValid(s string) bool {
	var digits []int
	for _, c := range s {
		if c >= '0' && c <= '9' {
			digits = append(digits, int(c-'0'))
		}
	}
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := digits[i]
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}
