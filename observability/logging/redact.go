package logging

import (
	"log/slog"
	"net/url"
	"strings"
)

// RedactedValue replaces values that cannot be logged at all.
const RedactedValue = "[REDACTED]"

// maskedSecret stands in for credentials inside URLs and DSNs. It survives URL
// escaping unchanged.
const maskedSecret = "xxxxx"

// publicKeys are stakingd log keys whose values carry no secrets.
var publicKeys = map[string]struct{}{
	"service":     {},
	"env":         {},
	"environment": {},
	"error":       {},
	"driver":      {},
	"staker":      {},
	"owner":       {},
	"to":          {},
	"cycle":       {},
	"period":      {},
	"amount":      {},
	"type":        {},
	"path":        {},
}

// secretParams are DSN and query parameters whose values are always masked.
var secretParams = map[string]struct{}{
	"password":     {},
	"pass":         {},
	"_auth_pass":   {},
	"secret":       {},
	"token":        {},
	"access_token": {},
	"api_key":      {},
	"apikey":       {},
	"sslkey":       {},
	"sslpassword":  {},
	"sig":          {},
	"signature":    {},
}

// MaskField returns a slog.Attr safe to emit. Public keys pass through, keys
// named *_url or *_dsn keep the shape of the value with credentials masked,
// and anything else is replaced by RedactedValue.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" {
		return slog.String(key, value)
	}
	normalized := strings.ToLower(strings.TrimSpace(key))
	switch {
	case isPublic(normalized):
		return slog.String(key, value)
	case normalized == "url" || strings.HasSuffix(normalized, "_url"):
		return slog.String(key, MaskURL(value))
	case normalized == "dsn" || strings.HasSuffix(normalized, "_dsn"):
		return slog.String(key, MaskDSN(value))
	default:
		return slog.String(key, RedactedValue)
	}
}

func isPublic(key string) bool {
	_, ok := publicKeys[key]
	return ok
}

func isSecretParam(key string) bool {
	_, ok := secretParams[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// MaskURL keeps the scheme and host of an endpoint. User info, path and query
// may embed tokens (chat webhooks put them in the path) and are masked.
func MaskURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return RedactedValue
	}
	out := url.URL{Scheme: u.Scheme, Host: u.Host}
	if u.User != nil {
		out.User = url.User(maskedSecret)
	}
	if strings.Trim(u.Path, "/") != "" {
		out.Path = "/" + maskedSecret
	}
	if u.RawQuery != "" {
		out.RawQuery = maskedSecret
	}
	return out.String()
}

// MaskDSN masks the password and secret parameters of a database connection
// string. URL DSNs (postgres://), key=value DSNs (host=... password=...) and
// sqlite file DSNs with a query string are understood.
func MaskDSN(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if strings.Contains(trimmed, "://") {
		u, err := url.Parse(trimmed)
		if err != nil {
			return RedactedValue
		}
		if u.User != nil {
			if _, ok := u.User.Password(); ok {
				u.User = url.UserPassword(u.User.Username(), maskedSecret)
			}
		}
		u.RawQuery = maskQuery(u.RawQuery)
		return u.String()
	}
	if base, query, ok := strings.Cut(trimmed, "?"); ok {
		return base + "?" + maskQuery(query)
	}
	if strings.Contains(trimmed, "=") {
		fields := strings.Fields(trimmed)
		for i, field := range fields {
			if key, _, ok := strings.Cut(field, "="); ok && isSecretParam(key) {
				fields[i] = key + "=" + maskedSecret
			}
		}
		return strings.Join(fields, " ")
	}
	return trimmed
}

func maskQuery(raw string) string {
	if raw == "" {
		return raw
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return maskedSecret
	}
	for key := range values {
		if isSecretParam(key) {
			values.Set(key, maskedSecret)
		}
	}
	return values.Encode()
}
