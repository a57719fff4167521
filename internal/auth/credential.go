package auth

import (
	"net/http"
	"strings"
)

// Credential header and query names.
const (
	HeaderAPIKey = "X-Agent-API-Key"
	QueryAPIKey  = "api_key"
)

// Credential sources, in the order they are consulted.
const (
	SourceHeader = "header"
	SourceBearer = "bearer"
	SourceQuery  = "query"
)

// ExtractCredential returns the API key carried by r and where it was
// found. The dedicated header wins over a bearer token, which wins over the
// query parameter. An empty key means none was supplied.
func ExtractCredential(r *http.Request) (key, source string) {
	if k := strings.TrimSpace(r.Header.Get(HeaderAPIKey)); k != "" {
		return k, SourceHeader
	}
	if authz := r.Header.Get("Authorization"); authz != "" {
		scheme, token, ok := strings.Cut(authz, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			if k := strings.TrimSpace(token); k != "" {
				return k, SourceBearer
			}
		}
	}
	if k := strings.TrimSpace(r.URL.Query().Get(QueryAPIKey)); k != "" {
		return k, SourceQuery
	}
	return "", ""
}
