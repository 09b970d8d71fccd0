package protocol

import (
	"strings"

	"balloonworld.dev/internal/mathx"
)

// EncodeMove formats a position update with two decimals, sign kept.
func EncodeMove(x, z float64) string {
	return CmdMove + " " + mathx.Fixed(x, 2) + " " + mathx.Fixed(z, 2)
}

// EncodeChat refuses text that is empty after trimming. The text itself is
// sent as typed.
func EncodeChat(text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyChat
	}
	return CmdChat + " " + text, nil
}
