package protocol

import (
	"math"
	"strconv"
	"strings"

	"balloonworld.dev/internal/mathx"
)

// Update is the typed content of one server frame. Pointer fields are nil
// when the frame did not carry a valid value for them.
type Update struct {
	Seed          *string
	BalloonHeight *int
	Signal        *int
	AvgPing       *float64
	// Players is the raw remote-player count as sent, without the local player.
	Players *int

	// Roster is the complete set of remote players in this frame. It is never
	// nil and always replaces the previous roster.
	Roster map[string]Position

	// HasChat is set when the frame carried a chat section; Chat then
	// replaces the previous chat log, even when empty.
	HasChat bool
	Chat    []ChatMessage
}

type Result struct {
	Update      Update
	Diagnostics []Diagnostic
}

// SplitFrame separates the state segment from the chat segment. A frame that
// starts with "Chat:" is all chat.
func SplitFrame(msg string) (state, chat string, hasChat bool) {
	if i := strings.Index(msg, ChatMarker); i >= 0 {
		return msg[:i], msg[i+len(ChatMarker):], true
	}
	if rest, ok := strings.CutPrefix(msg, ChatMarker[1:]); ok {
		return "", rest, true
	}
	return msg, "", false
}

// ParseState parses one server frame. It never fails: malformed fields are
// dropped and reported in Result.Diagnostics.
func ParseState(msg string) Result {
	var res Result
	res.Update.Roster = make(map[string]Position)

	stateSeg, chatSeg, hasChat := SplitFrame(msg)
	for _, field := range strings.Split(stateSeg, FieldSep) {
		if field == "" {
			continue
		}
		res.parseField(field)
	}

	if hasChat {
		res.Update.HasChat = true
		res.Update.Chat = res.parseChat(chatSeg)
	}
	return res
}

func (r *Result) warn(code, field, detail string) {
	r.Diagnostics = append(r.Diagnostics, Diagnostic{Code: code, Field: field, Detail: detail})
}

func (r *Result) parseField(field string) {
	if strings.HasPrefix(field, playerPrefix) {
		if i := strings.Index(field, playerSep); i >= 0 {
			r.parsePlayer(field, field[len(playerPrefix):i], field[i+len(playerSep):])
			return
		}
	}

	key, value, ok := strings.Cut(field, ":")
	if !ok {
		r.warn(DiagMissingDelimiter, field, "")
		return
	}
	if key == "" {
		r.warn(DiagMissingKey, field, "")
		return
	}

	u := &r.Update
	switch key {
	case KeySeed:
		if value == "" {
			r.warn(DiagEmptySeed, field, "")
			return
		}
		v := value
		u.Seed = &v
	case KeyBalloonHeight:
		if n, ok := r.integer(field, value); ok {
			u.BalloonHeight = &n
		}
	case KeySignal:
		if n, ok := r.integer(field, value); ok {
			u.Signal = &n
		}
	case KeyPlayers:
		if n, ok := r.integer(field, value); ok {
			u.Players = &n
		}
	case KeyAvgPing:
		f, err := parseFinite(value)
		if err != nil {
			r.warn(DiagBadNumber, field, err.Error())
			return
		}
		u.AvgPing = &f
	default:
		r.warn(DiagUnknownKey, field, key)
	}
}

// integer accepts plain integers and, like the relay's float telemetry,
// decimal values, which are truncated toward zero. Values outside int32 are
// rejected on both paths.
func (r *Result) integer(field, value string) (int, bool) {
	s := strings.TrimSpace(value)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n > math.MaxInt32 || n < math.MinInt32 {
			r.warn(DiagBadNumber, field, "out of int32 range")
			return 0, false
		}
		return int(n), true
	}
	f, err := parseFinite(s)
	if err != nil {
		r.warn(DiagBadNumber, field, "not an integer")
		return 0, false
	}
	f = math.Trunc(f)
	if f > math.MaxInt32 || f < math.MinInt32 {
		r.warn(DiagBadNumber, field, "out of int32 range")
		return 0, false
	}
	return int(f), true
}

func (r *Result) parsePlayer(field, id, value string) {
	xs, zs, ok := strings.Cut(value, ",")
	if !ok || strings.Contains(zs, ",") {
		r.warn(DiagBadCoords, field, "want x,z")
		return
	}
	x, errX := parseFinite(xs)
	z, errZ := parseFinite(zs)
	if errX != nil || errZ != nil {
		r.warn(DiagBadCoords, field, "non-numeric coordinate")
		return
	}
	r.Update.Roster[id] = Position{X: x, Z: z}
}

func (r *Result) parseChat(seg string) []ChatMessage {
	out := []ChatMessage{}
	for _, part := range strings.Split(seg, FieldSep) {
		if part == "" {
			continue
		}
		i := strings.IndexByte(part, chatSep)
		if i <= 0 || i >= len(part)-1 {
			r.warn(DiagBadChat, part, "want sender>text")
			continue
		}
		out = append(out, ChatMessage{Sender: part[:i], Text: part[i+1:]})
	}
	return out
}

func parseFinite(s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if !mathx.Finite(f) {
		return 0, strconv.ErrRange
	}
	return f, nil
}
