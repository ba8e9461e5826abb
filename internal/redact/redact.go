// Package redact masks personal data and secrets in free-form strings before
// they reach logs or error responses.
package redact

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
)

const mask = "[REDACTED]"

var (
	authHeaderRe  = regexp.MustCompile(`(?i)(authorization\s*[:=]\s*bearer\s+)([A-Za-z0-9._\-+/=]+)`)
	bearerRe      = regexp.MustCompile(`(?i)(bearer\s+)([A-Za-z0-9._\-+/=]+)`)
	apiKeyListRe  = regexp.MustCompile(`(?i)(api[_-]?keys?\s*[:=]\s*\[)([^\]]+)(\])`)
	apiKeyValueRe = regexp.MustCompile(`(?i)(api[_-]?keys?\s*[:=]\s*)([A-Za-z0-9._\-+/=]+)`)
	headerKeyRe   = regexp.MustCompile(`(?i)(x-api-key\s*[:=]\s*)([A-Za-z0-9._\-+/=]+)`)
	tokenishKeyRe = regexp.MustCompile(`(?i)\b(secret|token|password)\s*[:=]\s*([A-Za-z0-9._\-+/=]{6,})`)
	emailRe       = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	taxIDRe       = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	cardRe        = regexp.MustCompile(`\b(?:\d[ -]?){12,18}\d\b`)
	urlRe         = regexp.MustCompile(`https?://[^\s"'<>]+`)
)

// String masks e-mail addresses, tax ids, card-like digit runs, bearer
// tokens, api keys and URL paths.
func String(s string) string {
	if s == "" {
		return s
	}
	out := s
	out = authHeaderRe.ReplaceAllString(out, "${1}"+mask)
	out = bearerRe.ReplaceAllString(out, "${1}"+mask)
	out = apiKeyListRe.ReplaceAllString(out, "${1}REDACTED${3}")
	out = apiKeyValueRe.ReplaceAllString(out, "${1}"+mask)
	out = headerKeyRe.ReplaceAllString(out, "${1}"+mask)
	out = tokenishKeyRe.ReplaceAllString(out, "${1}="+mask)
	out = urlRe.ReplaceAllStringFunc(out, redactURL)
	out = emailRe.ReplaceAllString(out, "[EMAIL]")
	out = taxIDRe.ReplaceAllString(out, "[TAX_ID]")
	out = cardRe.ReplaceAllString(out, "[NUMBER]")
	for strings.Contains(out, mask+mask) {
		out = strings.ReplaceAll(out, mask+mask, mask)
	}
	return out
}

// Any formats the value with %+v and redacts it.
func Any(v any) string {
	return String(fmt.Sprintf("%+v", v))
}

// Sprintf formats like fmt.Sprintf and redacts the result.
func Sprintf(format string, args ...interface{}) string {
	return String(fmt.Sprintf(format, args...))
}

// Error returns the redacted message of err, or "" for nil.
func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}

func redactURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	u, err := url.Parse(trimmed)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "[REDACTED_URL]"
	}
	host := u.Host
	if u.User != nil {
		host = u.Hostname()
		if p := u.Port(); p != "" {
			host += ":" + p
		}
	}
	base := path.Base(strings.TrimSuffix(u.Path, "/"))
	if strings.HasSuffix(u.Path, "/") || base == "." || base == "/" || base == "" {
		return fmt.Sprintf("%s://%s/[REDACTED_PATH]", u.Scheme, host)
	}
	return fmt.Sprintf("%s://%s/%s", u.Scheme, host, base)
}
