package mesh

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/libertymesh/operator/internal/reliability"
)

const (
	clientWriteTimeout   = 3 * time.Second
	reconnectBackoffBase = time.Second
	reconnectBackoffCap  = 30 * time.Second
)

var errSendFailed = errors.New("transport send failed")
var errNotConnected = errors.New("radio bridge not connected")

// frameType identifies bridge protocol payload variants.
type frameType string

const (
	frameSelf frameType = "self"
	frameNode frameType = "node"
	frameRX   frameType = "rx"
	frameTX   frameType = "tx"
)

type frame struct {
	Type frameType `json:"type"`

	// self
	ID string `json:"id,omitempty"`

	// node
	LongName  string  `json:"long_name,omitempty"`
	ShortName string  `json:"short_name,omitempty"`
	Lat       float64 `json:"lat,omitempty"`
	Lon       float64 `json:"lon,omitempty"`
	HasGPS    bool    `json:"has_gps,omitempty"`

	// rx / tx
	From string `json:"from,omitempty"`
	Dest string `json:"dest,omitempty"`
	Text string `json:"text,omitempty"`
	Own  bool   `json:"own,omitempty"`
	TSMs int64  `json:"ts_ms,omitempty"`
}

type nodeInfo struct {
	name   string
	lat    float64
	lon    float64
	hasGPS bool
}

// PacketHandler receives each inbound text packet from the radio.
type PacketHandler func(Packet)

// Client speaks the serial bridge daemon's WebSocket frame protocol. It keeps
// a local node directory fed by node-info frames so name and GPS lookups
// never leave the process, and reconnects with capped backoff when the bridge
// drops.
type Client struct {
	wsURL  string
	dialer websocket.Dialer

	mu     sync.RWMutex
	conn   *websocket.Conn
	selfID string
	nodes  map[string]nodeInfo

	writeMu sync.Mutex
}

func NewClient(rawURL string) (*Client, error) {
	wsURL, err := normalizeBridgeURL(rawURL)
	if err != nil {
		return nil, err
	}
	return &Client{
		wsURL: wsURL,
		dialer: websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 4 * time.Second,
		},
		nodes: make(map[string]nodeInfo),
	}, nil
}

func normalizeBridgeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = "ws://127.0.0.1:4403"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse MESH_BRIDGE_URL: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(u.Scheme)) {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported bridge url scheme %q", u.Scheme)
	}
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String(), nil
}

// Run connects to the bridge and pumps inbound frames into handler until ctx
// is cancelled, redialing with backoff on connection loss.
func (c *Client) Run(ctx context.Context, handler PacketHandler) error {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn, _, err := c.dialer.DialContext(ctx, c.wsURL, nil)
		if err != nil {
			delay := reliability.ExponentialBackoff(attempt, reconnectBackoffBase, reconnectBackoffCap)
			attempt++
			log.Printf("mesh bridge dial failed (retry in %s): %v", delay, err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			continue
		}
		attempt = 0

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()

		err = c.readLoop(ctx, conn, handler)

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		_ = conn.Close()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("mesh bridge connection lost: %v", err)
	}
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, handler PacketHandler) error {
	msgs := make(chan []byte, 256)
	errs := make(chan error, 1)
	go func() {
		defer close(msgs)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				errs <- err
				return
			}
			msgs <- data
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errs:
			return err
		case data, ok := <-msgs:
			if !ok {
				return errors.New("bridge connection closed")
			}
			var f frame
			if err := json.Unmarshal(data, &f); err != nil {
				// Unknown payloads are the bridge's problem, not ours.
				continue
			}
			c.handleFrame(f, handler)
		}
	}
}

func (c *Client) handleFrame(f frame, handler PacketHandler) {
	switch f.Type {
	case frameSelf:
		c.mu.Lock()
		c.selfID = strings.TrimSpace(f.ID)
		c.mu.Unlock()
	case frameNode:
		id := strings.TrimSpace(f.ID)
		if id == "" {
			return
		}
		name := strings.TrimSpace(f.LongName)
		if name == "" {
			name = strings.TrimSpace(f.ShortName)
		}
		c.mu.Lock()
		c.nodes[id] = nodeInfo{name: name, lat: f.Lat, lon: f.Lon, hasGPS: f.HasGPS}
		c.mu.Unlock()
	case frameRX:
		from := strings.TrimSpace(f.From)
		if from == "" || handler == nil {
			return
		}
		rx := time.Now().UTC()
		if f.TSMs > 0 {
			rx = time.UnixMilli(f.TSMs).UTC()
		}
		c.mu.RLock()
		own := f.Own || (c.selfID != "" && from == c.selfID)
		c.mu.RUnlock()
		handler(Packet{From: from, Text: f.Text, Own: own, RxTime: rx})
	}
}

func (c *Client) Send(dest, text string) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return errNotConnected
	}

	payload := frame{Type: frameTX, Dest: dest, Text: text}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(clientWriteTimeout))
	defer conn.SetWriteDeadline(time.Time{})
	if err := conn.WriteJSON(payload); err != nil {
		return fmt.Errorf("%w: %v", errSendFailed, err)
	}
	return nil
}

func (c *Client) NameOf(id string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if info, ok := c.nodes[id]; ok && info.name != "" {
		return info.name
	}
	return id
}

func (c *Client) GPSOf(id string) (float64, float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.nodes[id]
	if !ok || !info.hasGPS {
		return 0, 0, false
	}
	return info.lat, info.lon, true
}

func (c *Client) NodeCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.nodes)
}

func (c *Client) SelfID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.selfID
}
