package middleware

import (
	"context"
	"net/http"
	"strings"
)

type localeContextKey struct{}

var localeKey = localeContextKey{}

// Locale stores the caller's preferred language in the request context.
// Voiceover generation uses it to pick voice defaults. X-Locale wins over
// Accept-Language; the token's locale claim, if any, was already applied by
// Auth and acts as the fallback.
func Locale(defaultLocale string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			locale := strings.TrimSpace(r.Header.Get("X-Locale"))
			if locale == "" {
				locale = parseAcceptLanguage(r.Header.Get("Accept-Language"))
			}
			if locale == "" {
				if v, ok := r.Context().Value(localeKey).(string); ok {
					locale = v
				}
			}
			if locale == "" {
				locale = defaultLocale
			}
			ctx := context.WithValue(r.Context(), localeKey, normalizeLocale(locale))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func parseAcceptLanguage(header string) string {
	for _, part := range strings.Split(header, ",") {
		tag := strings.TrimSpace(strings.Split(part, ";")[0])
		if tag != "" {
			return tag
		}
	}
	return ""
}

// normalizeLocale reduces a BCP 47 tag to its lowercase primary subtag.
func normalizeLocale(locale string) string {
	locale = strings.ToLower(strings.TrimSpace(locale))
	if idx := strings.IndexAny(locale, "-_"); idx > 0 {
		locale = locale[:idx]
	}
	if locale == "" {
		return "en"
	}
	return locale
}

func LocaleFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(localeKey).(string); ok && v != "" {
		return v
	}
	return "en"
}
