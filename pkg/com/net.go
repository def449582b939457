package com

import (
	"net/http"
	"net/url"
	"sync"

	"github.com/geetika1312/VC/pkg/api"
	"github.com/geetika1312/VC/pkg/com/websocket"
	"github.com/geetika1312/VC/pkg/logger"
	"github.com/goccy/go-json"
)

type (
	// Connector makes packet clients out of websocket connections.
	Connector struct {
		wu *websocket.Upgrader
	}
	// Client is one websocket connection speaking api packets.
	// Delivery is fire-and-forget: nothing waits for replies.
	Client struct {
		conn     *websocket.WS
		onPacket func(packet api.In)
		mu       sync.Mutex
	}
	Option = func(c *Connector)
)

var outPool = sync.Pool{New: func() any { o := api.Out{}; return &o }}

func WithOrigin(url string) Option { return func(c *Connector) { c.wu = websocket.NewUpgrader(url) } }

func NewConnector(opts ...Option) *Connector {
	c := &Connector{}
	for _, opt := range opts {
		opt(c)
	}
	if c.wu == nil {
		c.wu = &websocket.DefaultUpgrader
	}
	return c
}

func (co *Connector) NewServer(w http.ResponseWriter, r *http.Request, log *logger.Logger) (*Client, error) {
	ws, err := co.wu.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	conn, err := websocket.NewServerWithConn(ws, log)
	if err != nil {
		return nil, err
	}
	return connect(conn), nil
}

func (co *Connector) NewClient(address url.URL, log *logger.Logger) (*Client, error) {
	conn, err := websocket.NewClient(address, log)
	if err != nil {
		return nil, err
	}
	return connect(conn), nil
}

func connect(conn *websocket.WS) *Client {
	client := &Client{conn: conn}
	client.conn.OnMessage = client.handleMessage
	return client
}

func (c *Client) IsServer() bool { return c.conn.IsServer() }

func (c *Client) OnPacket(fn func(packet api.In)) { c.mu.Lock(); c.onPacket = fn; c.mu.Unlock() }

func (c *Client) Listen() { c.conn.Listen() }

func (c *Client) Close() { c.conn.Close() }

// Send pushes one packet down the wire and doesn't look back.
func (c *Client) Send(t api.PT, payload any) error {
	rq := outPool.Get().(*api.Out)
	rq.Id, rq.T, rq.Payload = "", t, payload
	defer outPool.Put(rq)
	return c.SendPacket(rq)
}

// Route forwards an incoming packet under a new type with a new payload,
// preserving its trace id.
func (c *Client) Route(p api.In, t api.PT, payload any) error {
	rq := outPool.Get().(*api.Out)
	rq.Id, rq.T, rq.Payload = p.Id, t, payload
	defer outPool.Put(rq)
	return c.SendPacket(rq)
}

func (c *Client) SendPacket(packet *api.Out) error {
	r, err := json.Marshal(packet)
	if err != nil {
		return err
	}
	c.conn.Write(r)
	return nil
}

func (c *Client) Wait() chan struct{} { return c.conn.Done }

func (c *Client) handleMessage(message []byte, err error) {
	if err != nil {
		return
	}
	var res api.In
	if err = json.Unmarshal(message, &res); err != nil {
		return
	}
	c.mu.Lock()
	fn := c.onPacket
	c.mu.Unlock()
	if fn != nil {
		fn(res)
	}
}
