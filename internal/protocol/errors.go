package protocol

const (
	// Message decoding/validation.
	ErrBadMsg = "E_BAD_MSG"

	// Edit rejection.
	ErrBadBlock   = "E_BAD_BLOCK"
	ErrOutOfWorld = "E_OUT_OF_WORLD"
	ErrRateLimit  = "E_RATE_LIMIT"

	ErrInternal = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrBadMsg:     {},
	ErrBadBlock:   {},
	ErrOutOfWorld: {},
	ErrRateLimit:  {},
	ErrInternal:   {},
}

// IsKnownCode accepts the empty code, which accepted acks carry.
func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
