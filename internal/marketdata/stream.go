package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

type StreamSubscribeRequest struct {
	Type    string   `json:"type"`
	Symbols []string `json:"symbols"`
}

type BarEnvelope struct {
	EventType string `json:"event_type"`
	Symbol    string `json:"symbol"`
}

// StreamClient consumes live bar updates from the provider's websocket feed.
type StreamClient struct {
	url  string
	conn *websocket.Conn
}

func NewStreamClient(url string) *StreamClient {
	return &StreamClient{url: url}
}

func (c *StreamClient) Connect(ctx context.Context) error {
	if c == nil || strings.TrimSpace(c.url) == "" {
		return fmt.Errorf("stream url not configured")
	}
	conn, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		return err
	}
	conn.SetReadLimit(1 << 20)
	c.conn = conn
	return nil
}

func (c *StreamClient) Close(status websocket.StatusCode, reason string) error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close(status, reason)
}

func (c *StreamClient) Subscribe(ctx context.Context, symbols []string) error {
	if c == nil || c.conn == nil {
		return fmt.Errorf("stream not connected")
	}
	payload, err := json.Marshal(StreamSubscribeRequest{Type: "bars", Symbols: symbols})
	if err != nil {
		return err
	}
	return c.conn.Write(ctx, websocket.MessageText, payload)
}

func (c *StreamClient) Read(ctx context.Context) (BarEnvelope, []byte, error) {
	if c == nil || c.conn == nil {
		return BarEnvelope{}, nil, fmt.Errorf("stream not connected")
	}
	_, data, err := c.conn.Read(ctx)
	if err != nil {
		return BarEnvelope{}, nil, err
	}
	var env BarEnvelope
	_ = json.Unmarshal(data, &env)
	return env, data, nil
}

type StreamOptions struct {
	URL     string
	Symbols []string
	Logger  *zap.Logger
	OnBar   func(Bar)
}

// RunStream keeps a subscription alive with jittered reconnect backoff until
// the context is cancelled.
func RunStream(ctx context.Context, opts StreamOptions) error {
	if opts.OnBar == nil {
		return fmt.Errorf("OnBar callback required")
	}
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := streamOnce(ctx, opts)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if opts.Logger != nil && err != nil {
			opts.Logger.Warn("bar stream disconnected", zap.Error(err))
		}
		jitter := time.Duration(rand.Int63n(int64(backoff / 2)))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff + jitter):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func streamOnce(ctx context.Context, opts StreamOptions) error {
	client := NewStreamClient(opts.URL)
	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer client.Close(websocket.StatusNormalClosure, "done")

	if err := client.Subscribe(ctx, opts.Symbols); err != nil {
		return err
	}
	for {
		env, data, err := client.Read(ctx)
		if err != nil {
			return err
		}
		if env.EventType != "bar" {
			continue
		}
		var bar Bar
		if err := json.Unmarshal(data, &bar); err != nil {
			continue
		}
		if !bar.Valid() {
			continue
		}
		opts.OnBar(bar)
	}
}
