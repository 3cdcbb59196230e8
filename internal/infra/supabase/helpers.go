package supabase

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/boddenberg/timely-go/internal/domain"
)

// ============================================================
// PostgREST query helpers
// ============================================================

// eq builds a PostgREST equality filter with an escaped value.
func eq(column, value string) string {
	return fmt.Sprintf("%s=eq.%s", column, url.QueryEscape(value))
}

// decodeRows unmarshals a PostgREST array response. A nil body decodes as
// an empty slice.
func decodeRows[T any](op string, body []byte) ([]T, error) {
	if len(body) == 0 {
		return []T{}, nil
	}
	var rows []T
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, domain.NewStoreError(domain.StoreDecodeFailure, op, err)
	}
	return rows, nil
}
