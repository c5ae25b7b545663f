package types

import "errors"

// Error kinds surfaced by the engine. Transport, auth and configuration
// errors are fatal for the running task; the remaining kinds are item-local
// and accumulate into the task report.
var (
	ErrConnection         = errors.New("connection error")
	ErrAuth               = errors.New("authorization failed")
	ErrRateLimited        = errors.New("rate-limit retries exhausted")
	ErrNotFound           = errors.New("resource not found")
	ErrConflict           = errors.New("resource conflict")
	ErrVersionUnsupported = errors.New("item kind not supported by controller version")
	ErrInvalidBackup      = errors.New("invalid backup")
	ErrNameCollision      = errors.New("name collision")
	ErrActionTimeout      = errors.New("action timed out")
	ErrDependency         = errors.New("dependency unresolved")
	ErrInvalidTag         = errors.New("invalid tag")
	ErrInvalidRecipe      = errors.New("invalid recipe")
	ErrInvalidArg         = errors.New("invalid argument")
)

// IsFatal reports whether err should abort the whole task rather than be
// recorded against a single item.
func IsFatal(err error) bool {
	for _, fatal := range []error{
		ErrConnection, ErrAuth, ErrRateLimited,
		ErrInvalidTag, ErrInvalidRecipe, ErrInvalidArg,
	} {
		if errors.Is(err, fatal) {
			return true
		}
	}
	return false
}
