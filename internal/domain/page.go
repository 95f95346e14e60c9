package domain

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200

	DefaultPageSize = 20
	MaxPageSize     = 100
)

// ClampHistoryLimit bounds a history request to [1, MaxHistoryLimit].
// Callers substitute DefaultHistoryLimit when no limit was given.
func ClampHistoryLimit(limit int) int {
	if limit < 1 {
		return 1
	}
	if limit > MaxHistoryLimit {
		return MaxHistoryLimit
	}
	return limit
}

// ClampPage floors page at 1 and bounds size to [1, MaxPageSize].
// Callers substitute DefaultPageSize when no size was given.
func ClampPage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	switch {
	case size < 1:
		size = 1
	case size > MaxPageSize:
		size = MaxPageSize
	}
	return page, size
}

// Offset returns the row offset of a clamped page.
func Offset(page, size int) int {
	return (page - 1) * size
}
