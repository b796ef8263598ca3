package store

import "strings"

// SanitizeText drops NUL bytes and invalid UTF-8, which PostgreSQL text
// columns reject.
func SanitizeText(value string) string {
	if value == "" {
		return value
	}
	return strings.ReplaceAll(strings.ToValidUTF8(value, ""), "\x00", "")
}

// ChunkRange calls fn for consecutive [start, end) windows of at most
// chunkSize covering [0, total).
func ChunkRange(total, chunkSize int, fn func(start, end int) error) error {
	if total <= 0 {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = total
	}
	for start := 0; start < total; start += chunkSize {
		end := min(start+chunkSize, total)
		if err := fn(start, end); err != nil {
			return err
		}
	}
	return nil
}

// ClampPage bounds list paging parameters.
func ClampPage(limit, offset, maxLimit int) (int, int) {
	if limit <= 0 || limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
