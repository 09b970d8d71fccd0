package ws

import (
	"context"
	"encoding/binary"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"balloonworld.dev/internal/persistence/journal"
	"balloonworld.dev/internal/protocol"
	"balloonworld.dev/internal/relay"
)

// FrameRecorder receives every text frame read or written.
type FrameRecorder interface {
	Record(dir journal.Direction, peer, data string) error
}

type ServerOptions struct {
	// PingEvery is the interval between RTT probes; 0 disables them.
	PingEvery time.Duration
	Frames    FrameRecorder
}

type Server struct {
	hub  *relay.Hub
	log  *log.Logger
	opts ServerOptions

	upgrader websocket.Upgrader
}

func NewServer(h *relay.Hub, logger *log.Logger, opts ServerOptions) *Server {
	return &Server{
		hub:  h,
		log:  logger,
		opts: opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

const (
	writeWait = 5 * time.Second
	readWait  = 60 * time.Second
	outQueue  = 16
)

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		out := make(chan []byte, outQueue)
		respCh := make(chan relay.JoinResponse, 1)
		s.hub.Join() <- relay.JoinRequest{
			Name: r.URL.Query().Get("name"),
			Addr: r.RemoteAddr,
			Out:  out,
			Resp: respCh,
		}
		var joined relay.JoinResponse
		select {
		case joined = <-respCh:
		case <-r.Context().Done():
			return
		}
		sessionID := joined.SessionID

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		conn.SetPongHandler(func(data string) error {
			if len(data) == 8 {
				sent := time.Unix(0, int64(binary.BigEndian.Uint64([]byte(data))))
				select {
				case s.hub.Pings() <- relay.PingSample{SessionID: sessionID, RTT: time.Since(sent)}:
				default:
				}
			}
			return conn.SetReadDeadline(time.Now().Add(readWait))
		})

		// Writer goroutine.
		go func() {
			var pingC <-chan time.Time
			if s.opts.PingEvery > 0 {
				t := time.NewTicker(s.opts.PingEvery)
				defer t.Stop()
				pingC = t.C
				if err := writePing(conn); err != nil {
					cancel()
					return
				}
			}
			for {
				select {
				case <-ctx.Done():
					return
				case <-pingC:
					if err := writePing(conn); err != nil {
						cancel()
						return
					}
				case b, ok := <-out:
					if !ok {
						return
					}
					s.record(journal.Out, joined.PlayerID, string(b))
					_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(readWait))
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			if mt != websocket.TextMessage {
				continue
			}
			s.record(journal.In, joined.PlayerID, string(msg))
			cmd, err := protocol.ParseCommand(string(msg))
			if err != nil {
				if s.log != nil && !errors.Is(err, protocol.ErrEmptyChat) {
					s.log.Printf("player=%s: %v", joined.PlayerID, err)
				}
				continue
			}
			s.hub.Inbox() <- relay.Envelope{SessionID: sessionID, Cmd: cmd}
		}

		// Cleanup.
		s.hub.Leave() <- sessionID
	}
}

func (s *Server) record(dir journal.Direction, peer, data string) {
	if s.opts.Frames == nil {
		return
	}
	if err := s.opts.Frames.Record(dir, peer, data); err != nil && s.log != nil {
		s.log.Printf("frame log: %v", err)
	}
}

// writePing sends a ping carrying the send time so the pong yields an RTT.
func writePing(conn *websocket.Conn) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(time.Now().UnixNano()))
	return conn.WriteControl(websocket.PingMessage, buf[:], time.Now().Add(writeWait))
}
