// Package spec implements the specification executor (§4.4): a generic
// query pattern that joins an entity's base relation against the
// query-composable accessible-resource set (§4.2) and applies a filter,
// an ordering, and cursor-based pagination in a single statement.
package spec

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"sqlzibar/internal/engineerr"
)

// cursorPayload is the decoded shape of an opaque pagination cursor: the
// sort column's value at the last row of the previous page, paired with
// that row's id to keep ordering deterministic across ties.
type cursorPayload struct {
	SortValue string `json:"s"`
	ID        string `json:"i"`
}

// EncodeCursor produces the opaque, base64-url-safe cursor for a row with
// the given sort value and id.
func EncodeCursor(sortValue, id string) string {
	data, _ := json.Marshal(cursorPayload{SortValue: sortValue, ID: id})
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeCursor reverses EncodeCursor. A malformed cursor is always an
// INVALID_CURSOR caller error — it is never silently ignored.
func DecodeCursor(cursor string) (sortValue, id string, err error) {
	if strings.TrimSpace(cursor) == "" {
		return "", "", nil
	}
	data, decodeErr := base64.RawURLEncoding.DecodeString(cursor)
	if decodeErr != nil {
		return "", "", engineerr.Wrap(engineerr.InvalidCursor, "cursor is not valid base64", decodeErr)
	}
	var payload cursorPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", "", engineerr.Wrap(engineerr.InvalidCursor, "cursor is not valid", err)
	}
	if payload.ID == "" {
		return "", "", engineerr.New(engineerr.InvalidCursor, "cursor is missing its id component")
	}
	return payload.SortValue, payload.ID, nil
}
