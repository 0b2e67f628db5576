package pagination

const (
	// DefaultLimit is the standard page size when a limit is not provided.
	DefaultLimit = 50
	// MaxLimit caps how many rows any list query can request.
	MaxLimit = 200
)

// NormalizeLimit enforces the default and maximum page sizes.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}
