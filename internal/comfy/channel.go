package comfy

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
)

// FrameKind distinguishes the two message varieties the remote interleaves on
// one connection: JSON execution events and raw image bytes.
type FrameKind int

const (
	FrameText FrameKind = iota
	FrameBinary
)

// Frame is one message received from the execution event channel.
type Frame struct {
	Kind FrameKind
	Data []byte
}

// EventChannel abstracts the persistent event stream so trackers and
// collectors can be exercised against an in-memory fake. Read blocks until a
// frame arrives and returns an error once the channel is closed, locally or
// remotely. Close is the only cancellation primitive.
type EventChannel interface {
	Read() (Frame, error)
	Close() error
}

// Dialer opens event channels scoped to a correlation id.
type Dialer interface {
	Dial(ctx context.Context, clientID string) (EventChannel, error)
}

// WebsocketDialer connects to the remote's /ws endpoint.
type WebsocketDialer struct {
	baseURL string
}

// NewWebsocketDialer builds a dialer for the given base URL. Both http(s) and
// ws(s) schemes are accepted; http(s) is rewritten to the websocket scheme.
func NewWebsocketDialer(baseURL string) *WebsocketDialer {
	return &WebsocketDialer{baseURL: strings.TrimRight(baseURL, "/")}
}

// Dial opens the shared event channel for one correlation id.
func (d *WebsocketDialer) Dial(ctx context.Context, clientID string) (EventChannel, error) {
	endpoint := websocketURL(d.baseURL) + "/ws?clientId=" + url.QueryEscape(clientID)
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("comfy: dial event channel: status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("comfy: dial event channel: %w", err)
	}
	return &wsChannel{conn: conn}, nil
}

type wsChannel struct {
	conn *websocket.Conn
}

func (c *wsChannel) Read() (Frame, error) {
	messageType, data, err := c.conn.ReadMessage()
	if err != nil {
		return Frame{}, err
	}
	kind := FrameText
	if messageType == websocket.BinaryMessage {
		kind = FrameBinary
	}
	return Frame{Kind: kind, Data: data}, nil
}

func (c *wsChannel) Close() error {
	return c.conn.Close()
}

func websocketURL(baseURL string) string {
	switch {
	case strings.HasPrefix(baseURL, "https://"):
		return "wss://" + strings.TrimPrefix(baseURL, "https://")
	case strings.HasPrefix(baseURL, "http://"):
		return "ws://" + strings.TrimPrefix(baseURL, "http://")
	default:
		return baseURL
	}
}
