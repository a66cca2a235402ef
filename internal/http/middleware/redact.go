package middleware

import (
	"net/url"

	"github.com/maintenance-gate/internal/maintenance"
)

// redactQuery hides the management access key from logs.
func redactQuery(raw string) string {
	if raw == "" {
		return raw
	}
	values, err := url.ParseQuery(raw)
	if err != nil || !values.Has(maintenance.AccessKeyParam) {
		return raw
	}
	values.Set(maintenance.AccessKeyParam, "REDACTED")
	return values.Encode()
}
