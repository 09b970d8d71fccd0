package protocol

import (
	"fmt"
	"sort"
	"strings"

	"balloonworld.dev/internal/mathx"
)

// Frame is what the relay knows when it renders a state frame for one client.
type Frame struct {
	Seed          string
	BalloonHeight int
	Signal        int
	AvgPing       float64
	// Players excludes the receiving client.
	Players []PlayerEntry
	Chat    []ChatMessage
	// WithChat appends the chat section even when Chat is empty.
	WithChat bool
}

type PlayerEntry struct {
	ID string
	X  float64
	Z  float64
}

// CheckSeed reports ErrBadSeed for a seed EncodeState cannot carry intact:
// an empty seed, or one containing the field separator or a control
// character.
func CheckSeed(seed string) error {
	if seed == "" {
		return ErrBadSeed
	}
	for _, r := range seed {
		if r == ';' || r < 0x20 || r == 0x7f {
			return fmt.Errorf("%w: %q", ErrBadSeed, seed)
		}
	}
	return nil
}

// EncodeState renders f in the inbound grammar. Players are written in id
// order so identical state always renders identically.
func EncodeState(f Frame) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s:%s;%s:%d;%s:%d;%s:%s;%s:%d",
		KeySeed, f.Seed,
		KeyBalloonHeight, f.BalloonHeight,
		KeySignal, f.Signal,
		KeyAvgPing, mathx.Fixed(f.AvgPing, 2),
		KeyPlayers, len(f.Players),
	)

	players := append([]PlayerEntry(nil), f.Players...)
	sort.Slice(players, func(i, j int) bool { return players[i].ID < players[j].ID })
	for _, p := range players {
		b.WriteString(FieldSep)
		b.WriteString(playerPrefix)
		b.WriteString(p.ID)
		b.WriteString(playerSep)
		b.WriteString(mathx.Fixed(p.X, 2))
		b.WriteByte(',')
		b.WriteString(mathx.Fixed(p.Z, 2))
	}

	if f.WithChat || len(f.Chat) > 0 {
		b.WriteString(ChatMarker)
		for i, m := range f.Chat {
			if i > 0 {
				b.WriteString(FieldSep)
			}
			b.WriteString(m.Sender)
			b.WriteByte(chatSep)
			b.WriteString(m.Text)
		}
	}
	return b.String()
}

// Command is one parsed client command.
type Command struct {
	Verb string
	X, Z float64
	Text string
}

// ParseCommand parses "move <x> <z>" or "chat <text>".
func ParseCommand(line string) (Command, error) {
	verb, rest, _ := strings.Cut(line, " ")
	switch verb {
	case CmdMove:
		parts := strings.Fields(rest)
		if len(parts) != 2 {
			return Command{}, ErrBadMove
		}
		x, errX := parseFinite(parts[0])
		z, errZ := parseFinite(parts[1])
		if errX != nil || errZ != nil {
			return Command{}, ErrBadMove
		}
		return Command{Verb: CmdMove, X: x, Z: z}, nil
	case CmdChat:
		if strings.TrimSpace(rest) == "" {
			return Command{}, ErrEmptyChat
		}
		return Command{Verb: CmdChat, Text: rest}, nil
	default:
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, verb)
	}
}

// SanitizeChat makes text safe to embed in a chat section: separators become
// commas, control characters are dropped, and the result is trimmed.
func SanitizeChat(text string) string {
	text = strings.Map(func(r rune) rune {
		switch {
		case r == ';':
			return ','
		case r < 0x20 || r == 0x7f:
			return -1
		}
		return r
	}, text)
	return strings.TrimSpace(text)
}

const maxNameRunes = 32

// SanitizeName makes a display name safe as a chat sender or player id.
func SanitizeName(name string) string {
	name = strings.Map(func(r rune) rune {
		switch {
		case r == ';' || r == '>' || r == ':' || r == '[' || r == ']' || r == ',':
			return -1
		case r < 0x20 || r == 0x7f:
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)
	if r := []rune(name); len(r) > maxNameRunes {
		name = strings.TrimSpace(string(r[:maxNameRunes]))
	}
	return name
}
