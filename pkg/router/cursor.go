package router

import (
	"encoding/base64"
	"strconv"
)

// encodeCursor turns a page offset into an opaque cursor string. The format
// is deliberately undocumented to callers; base64 just avoids leaking a readable integer.
func encodeCursor(offset int) string {
	if offset <= 0 {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.Itoa(offset)))
}

// decodeCursor parses a cursor produced by encodeCursor, defaulting to 0
// (start of list) for an empty or malformed cursor rather than failing the
// whole request.
func decodeCursor(cursor string) int {
	if cursor == "" {
		return 0
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return 0
	}
	n, err := strconv.Atoi(string(raw))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// paginate slices names[offset:] to at most pageSize entries and reports
// the cursor for the next page, or "" if this was the last page.
func paginate(names []string, offset, pageSize int) (page []string, next string) {
	if offset >= len(names) {
		return nil, ""
	}
	end := offset + pageSize
	if end >= len(names) {
		return names[offset:], ""
	}
	return names[offset:end], encodeCursor(end)
}
