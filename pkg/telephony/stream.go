package telephony

import (
	"context"
	"fmt"
	"sync"

	"github.com/coder/websocket"
)

// StreamConn wraps a carrier media-stream WebSocket connection with the
// framing defined in this package.
//
// Reads must come from a single goroutine; writes are serialised internally
// and may come from any goroutine. The zero value is not usable — construct
// with NewStreamConn.
type StreamConn struct {
	conn *websocket.Conn

	mu        sync.Mutex
	streamSid string
	closed    bool
}

// NewStreamConn wraps an accepted WebSocket connection.
func NewStreamConn(conn *websocket.Conn) *StreamConn {
	return &StreamConn{conn: conn}
}

// ReadEvent blocks until the next inbound frame arrives and returns the
// decoded event. When a start event is read, the stream SID is captured so
// later SendMedia/SendClear calls address the right stream.
func (c *StreamConn) ReadEvent(ctx context.Context) (*StreamEvent, error) {
	_, data, err := c.conn.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("telephony: read stream: %w", err)
	}

	evt, err := ParseStreamEvent(data)
	if err != nil {
		return nil, err
	}

	if evt.Event == EventStart && evt.Start != nil {
		c.mu.Lock()
		c.streamSid = evt.Start.StreamSid
		c.mu.Unlock()
	}
	return evt, nil
}

// StreamSid returns the stream SID captured from the start event, or "" if no
// start event has been read yet.
func (c *StreamConn) StreamSid() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streamSid
}

// SendMedia plays one base64 mu-law audio payload to the caller.
func (c *StreamConn) SendMedia(ctx context.Context, payload string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("telephony: stream closed")
	}
	sid := c.streamSid
	c.mu.Unlock()

	data, err := MarshalMediaMessage(sid, payload)
	if err != nil {
		return err
	}
	return c.conn.Write(ctx, websocket.MessageText, data)
}

// SendClear tells the carrier to discard buffered playback audio. Sent when
// the caller barges in over the agent.
func (c *StreamConn) SendClear(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("telephony: stream closed")
	}
	sid := c.streamSid
	c.mu.Unlock()

	data, err := MarshalClearMessage(sid)
	if err != nil {
		return err
	}
	return c.conn.Write(ctx, websocket.MessageText, data)
}

// Close closes the underlying WebSocket. Idempotent.
func (c *StreamConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	return c.conn.Close(websocket.StatusNormalClosure, "stream closed")
}
