package idempotency

import (
	"net/http"
	"strings"
)

const Header = "Idempotency-Key"

func Key(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(Header))
}

// Set attaches key to an outgoing request; an empty key is left off.
func Set(r *http.Request, key string) {
	if key = strings.TrimSpace(key); key != "" {
		r.Header.Set(Header, key)
	}
}
