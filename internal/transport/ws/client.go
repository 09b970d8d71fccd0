// Package ws carries protocol frames over websockets: a client that turns a
// connection into a stream of events, and the relay's connection handler.
package ws

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var ErrClosed = errors.New("ws: connection closed")

type EventKind int

const (
	EventOpen EventKind = iota + 1
	EventMessage
	EventError
	EventClose
)

func (k EventKind) String() string {
	switch k {
	case EventOpen:
		return "open"
	case EventMessage:
		return "message"
	case EventError:
		return "error"
	case EventClose:
		return "close"
	default:
		return "unknown"
	}
}

// Event is one transport occurrence. Data is set for EventMessage, Err for
// EventError.
type Event struct {
	Kind EventKind
	Data string
	Err  error
}

// Client delivers events in order on Events(). An EventError, if any, comes
// before the single EventClose, after which the channel is closed.
type Client struct {
	log *log.Logger

	events chan Event
	out    chan string

	mu   sync.Mutex
	conn *websocket.Conn

	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects in the background; the outcome arrives as EventOpen or as
// EventError followed by EventClose.
func Dial(ctx context.Context, url string, logger *log.Logger) *Client {
	c := &Client{
		log:    logger,
		events: make(chan Event, 64),
		out:    make(chan string, 64),
		done:   make(chan struct{}),
	}
	go c.run(ctx, url)
	return c
}

func (c *Client) Events() <-chan Event { return c.events }

// Send queues text for the writer. It fails once the client is closed.
func (c *Client) Send(text string) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.out <- text:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// Close shuts the connection down. It is safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn != nil {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			_ = conn.Close()
		}
	})
}

func (c *Client) emit(e Event) {
	select {
	case c.events <- e:
	case <-c.done:
		// Nobody is required to drain after Close; drop non-terminal events.
	}
}

// emitClose delivers the terminal event. After a local Close the reader may
// be gone, so the event is only kept if there is room for it.
func (c *Client) emitClose() {
	select {
	case c.events <- Event{Kind: EventClose}:
	case <-c.done:
		select {
		case c.events <- Event{Kind: EventClose}:
		default:
		}
	}
}

func (c *Client) run(ctx context.Context, url string) {
	defer close(c.events)
	defer c.emitClose()

	dialCtx, cancelDial := context.WithCancel(ctx)
	go func() {
		select {
		case <-c.done:
			cancelDial()
		case <-dialCtx.Done():
		}
	}()
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, url, nil)
	cancelDial()
	if err != nil {
		if c.log != nil {
			c.log.Printf("dial %s: %v", url, err)
		}
		c.emit(Event{Kind: EventError, Err: err})
		return
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	select {
	case <-c.done:
		// Closed while dialing.
		_ = conn.Close()
		return
	default:
	}
	c.emit(Event{Kind: EventOpen})

	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Writer goroutine.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-wctx.Done():
				return
			case <-c.done:
				return
			case text := <-c.out:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
					_ = conn.Close()
					return
				}
			}
		}
	}()

	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-wctx.Done():
		}
	}()

	// Reader loop. The server pings; gorilla answers with pongs while reading.
	for {
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			if !c.closedLocally() && ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.emit(Event{Kind: EventError, Err: err})
			}
			break
		}
		if mt != websocket.TextMessage {
			continue
		}
		c.emit(Event{Kind: EventMessage, Data: string(msg)})
	}
	cancel()
	wg.Wait()
	_ = conn.Close()
}

func (c *Client) closedLocally() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}
