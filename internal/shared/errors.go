package shared

import "fmt"

var (
	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authentication errors
	ErrAuthFailed       = fmt.Errorf("authentication failed")
	ErrNotAuthenticated = fmt.Errorf("not authenticated")

	// Conversion pipeline errors
	ErrNotFound           = fmt.Errorf("resource not found")
	ErrRateLimited        = fmt.Errorf("rate limited by upstream")
	ErrCatalogUnavailable = fmt.Errorf("catalog unavailable")
	ErrWriteDenied        = fmt.Errorf("write access denied")

	// Recommendation errors. Neither blocks playlist creation; callers
	// proceed with matched tracks only.
	ErrInsufficientSeed          = fmt.Errorf("insufficient seed tracks")
	ErrRecommendationUnavailable = fmt.Errorf("recommendations unavailable")

	// Input validation errors
	ErrInvalidInput = fmt.Errorf("invalid input")
)
