// Package protocol is the text wire format between clients and the relay.
//
// Server frames are ';'-separated fields, optionally followed by a chat
// section:
//
//	Seed:cool seed;BalloonHeight:120;Signal:80;AvgPing:45.20;Players:2;P[abc]:10.50,-3.20;Chat:alice>hello;bob>hi
//
// Client commands are single lines: "move <x> <z>" and "chat <text>".
package protocol

// Field keys of the state segment.
const (
	KeySeed          = "Seed"
	KeyBalloonHeight = "BalloonHeight"
	KeySignal        = "Signal"
	KeyAvgPing       = "AvgPing"
	KeyPlayers       = "Players"
)

const (
	FieldSep = ";"
	// ChatMarker separates the state segment from the chat segment.
	ChatMarker   = ";Chat:"
	playerPrefix = "P["
	playerSep    = "]:"
	chatSep      = '>'
)

// Client command verbs.
const (
	CmdMove = "move"
	CmdChat = "chat"
)

type Position struct {
	X float64
	Z float64
}

type ChatMessage struct {
	Sender string
	Text   string
}
