package protocol

import (
	"errors"
	"fmt"
)

// Diagnostic codes for fields dropped while parsing a server frame.
const (
	DiagMissingDelimiter = "W_MISSING_DELIMITER"
	DiagMissingKey       = "W_MISSING_KEY"
	DiagUnknownKey       = "W_UNKNOWN_KEY"
	DiagBadNumber        = "W_BAD_NUMBER"
	DiagBadCoords        = "W_BAD_COORDS"
	DiagBadChat          = "W_BAD_CHAT"
	DiagEmptySeed        = "W_EMPTY_SEED"

	// Raised by the state layer, not the parser.
	DiagSeedConflict = "W_SEED_CONFLICT"
)

var knownCodes = map[string]struct{}{
	DiagMissingDelimiter: {},
	DiagMissingKey:       {},
	DiagUnknownKey:       {},
	DiagBadNumber:        {},
	DiagBadCoords:        {},
	DiagBadChat:          {},
	DiagEmptySeed:        {},
	DiagSeedConflict:     {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// Diagnostic describes one non-fatal problem. Field is the raw offending
// field or chat part.
type Diagnostic struct {
	Code   string
	Field  string
	Detail string
}

func (d Diagnostic) String() string {
	if d.Detail == "" {
		return fmt.Sprintf("%s %q", d.Code, d.Field)
	}
	return fmt.Sprintf("%s %q: %s", d.Code, d.Field, d.Detail)
}

var (
	ErrEmptyChat      = errors.New("protocol: empty chat message")
	ErrUnknownCommand = errors.New("protocol: unknown command")
	ErrBadMove        = errors.New("protocol: malformed move command")
	ErrBadSeed        = errors.New("protocol: seed cannot be carried in a frame")
)
