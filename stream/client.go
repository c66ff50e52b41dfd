package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"akashwatch/config"
	"akashwatch/logger"
	"akashwatch/models"
)

// Options configures a Client. RPCEndpoint is required; zero values for the
// remaining fields fall back to the stated defaults.
type Options struct {
	RPCEndpoint          string
	MaxReconnectAttempts int           // default 5
	ReconnectBaseDelay   time.Duration // default 1s
	MaxReconnectDelay    time.Duration // default 30s
	HeartbeatInterval    time.Duration // default 30s
	HeartbeatTimeout     time.Duration // default 10s
	SendRateLimit        int           // outbound frames per second, 0 disables limiting
	SendBurst            int
	DispatchBuffer       int // default 256
}

// OptionsFromConfig maps the stream section of the YAML config onto Options.
func OptionsFromConfig(cfg config.StreamConfig) Options {
	return Options{
		RPCEndpoint:          cfg.RPCEndpoint,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		ReconnectBaseDelay:   cfg.ReconnectBaseDelay,
		MaxReconnectDelay:    cfg.MaxReconnectDelay,
		HeartbeatInterval:    cfg.HeartbeatInterval,
		HeartbeatTimeout:     cfg.HeartbeatTimeout,
		SendRateLimit:        cfg.SendRateLimit,
		SendBurst:            cfg.SendBurst,
		DispatchBuffer:       cfg.DispatchBuffer,
	}
}

func (o *Options) applyDefaults() {
	if o.MaxReconnectAttempts == 0 {
		o.MaxReconnectAttempts = 5
	}
	if o.ReconnectBaseDelay == 0 {
		o.ReconnectBaseDelay = time.Second
	}
	if o.MaxReconnectDelay == 0 {
		o.MaxReconnectDelay = 30 * time.Second
	}
	if o.HeartbeatInterval == 0 {
		o.HeartbeatInterval = 30 * time.Second
	}
	if o.HeartbeatTimeout == 0 {
		o.HeartbeatTimeout = 10 * time.Second
	}
	if o.DispatchBuffer == 0 {
		o.DispatchBuffer = 256
	}
	if o.SendBurst == 0 {
		o.SendBurst = 16
	}
}

// Client maintains one live websocket connection to a node's event-streaming
// endpoint and fans decoded chain events out to registered subscriptions.
// Subscriptions persist across reconnects; after every successful (re)dial
// they are replayed to the node in registration order before any inbound
// frame of the new connection is processed.
type Client struct {
	opts  Options
	wsURL string
	log   *logger.Entry

	mu             sync.Mutex
	state          ConnectionState
	conn           *websocket.Conn
	attempts       int
	reconnectTimer *time.Timer
	connEpoch      uint64

	writeMu sync.Mutex
	limiter *rate.Limiter

	registry *registry
	hb       *heartbeat

	dispatchCh chan models.Event
}

// NewClient builds a Client for the given endpoint. The dispatcher goroutine
// starts immediately; the socket is not opened until Connect.
func NewClient(opts Options) (*Client, error) {
	opts.applyDefaults()

	wsURL, err := websocketURL(opts.RPCEndpoint)
	if err != nil {
		return nil, err
	}

	log := logger.GetLogger().WithComponent("stream_client")

	c := &Client{
		opts:       opts,
		wsURL:      wsURL,
		log:        log,
		state:      Disconnected,
		registry:   newRegistry(),
		dispatchCh: make(chan models.Event, opts.DispatchBuffer),
	}

	if opts.SendRateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.SendRateLimit), opts.SendBurst)
	}

	c.hb = newHeartbeat(opts.HeartbeatInterval, opts.HeartbeatTimeout, c.sendPing, c.onHeartbeatDead, log)

	if opts.HeartbeatInterval < opts.HeartbeatTimeout {
		log.WithFields(logger.Fields{
			"interval": opts.HeartbeatInterval,
			"timeout":  opts.HeartbeatTimeout,
		}).Warn("heartbeat interval shorter than timeout, overlapping pings possible")
	}

	go c.dispatchLoop()

	log.WithFields(logger.Fields{
		"endpoint":       opts.RPCEndpoint,
		"websocket_url":  wsURL,
		"max_reconnects": opts.MaxReconnectAttempts,
	}).Info("stream client initialized")

	return c, nil
}

// websocketURL rewrites the RPC endpoint scheme (http to ws, https to wss)
// and appends the websocket path.
func websocketURL(endpoint string) (string, error) {
	if endpoint == "" {
		return "", fmt.Errorf("rpc endpoint is required")
	}
	u := endpoint
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	case strings.HasPrefix(u, "wss://"), strings.HasPrefix(u, "ws://"):
	default:
		return "", fmt.Errorf("unsupported rpc endpoint scheme in '%s'", endpoint)
	}
	return strings.TrimSuffix(u, "/") + "/websocket", nil
}

// Connect opens the websocket. It is a no-op when already connected. On
// success the heartbeat starts and all registered subscriptions are replayed
// before the read loop begins consuming inbound frames.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == Connected || c.state == Connecting {
		c.mu.Unlock()
		return nil
	}
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.state = nextState(c.state, evDialStart)
	c.mu.Unlock()

	return c.dial(ctx, false)
}

func (c *Client) dial(ctx context.Context, isReconnect bool) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.wsURL, nil)
	if err != nil {
		if isReconnect {
			c.log.WithError(err).Warn("reconnect dial failed")
			c.mu.Lock()
			c.state = nextState(c.state, evClosed)
			c.mu.Unlock()
			c.scheduleReconnect()
			return fmt.Errorf("dial %s: %w", c.wsURL, err)
		}
		c.mu.Lock()
		c.state = nextState(c.state, evOpenErr)
		c.mu.Unlock()
		return fmt.Errorf("dial %s: %w", c.wsURL, err)
	}

	c.mu.Lock()
	if c.state != Connecting {
		// Disconnect won the race while the dial was in flight.
		c.mu.Unlock()
		_ = conn.Close()
		return fmt.Errorf("connection torn down during dial")
	}
	c.conn = conn
	c.attempts = 0
	c.state = nextState(c.state, evOpenOK)
	c.connEpoch++
	epoch := c.connEpoch
	c.mu.Unlock()

	c.hb.start()

	// Replay before the read loop starts so the node knows every live query
	// before any event of the new connection can arrive.
	for _, sub := range c.registry.list() {
		if err := c.writeFrame(conn, subscribeFrame(sub.id, sub.query)); err != nil {
			c.log.WithError(err).WithField("query", sub.query).Warn("failed to replay subscription")
		}
	}

	go c.readLoop(conn, epoch)

	c.log.WithFields(logger.Fields{
		"url":           c.wsURL,
		"subscriptions": c.registry.count(),
		"reconnect":     isReconnect,
	}).Info("websocket connected")

	return nil
}

// Disconnect tears the connection down: heartbeat and any pending reconnect
// timer are cancelled, live subscriptions are unsubscribed on the wire, the
// socket closes and the registry empties. This is the only path that clears
// the registry.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	conn := c.conn
	c.conn = nil
	c.state = nextState(c.state, evDisconnect)
	c.attempts = 0
	c.connEpoch++
	c.mu.Unlock()

	c.hb.stop()

	if conn != nil {
		for _, sub := range c.registry.list() {
			if err := c.writeFrame(conn, unsubscribeFrame(sub.id, sub.query)); err != nil {
				c.log.WithError(err).Debug("failed to send unsubscribe during disconnect")
			}
		}
		_ = conn.Close()
	}

	c.registry.clear()
	c.log.Info("websocket disconnected")
}

// ConnectionState returns the current lifecycle state.
func (c *Client) ConnectionState() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether the socket is open.
func (c *Client) IsConnected() bool {
	return c.ConnectionState() == Connected
}

// Subscribe registers a callback for events matching the query and optional
// filter, returning the subscription id. The entry is stored immediately;
// the subscribe frame is sent now when connected, otherwise on the next
// successful Connect.
func (c *Client) Subscribe(query string, callback EventCallback, filter *models.EventFilter) string {
	sub := &subscription{
		id:       newSubscriptionID(),
		query:    query,
		callback: callback,
		filter:   filter,
	}
	c.registry.add(sub)

	c.mu.Lock()
	conn, connected := c.conn, c.state == Connected
	c.mu.Unlock()

	if connected && conn != nil {
		if err := c.writeFrame(conn, subscribeFrame(sub.id, sub.query)); err != nil {
			c.log.WithError(err).WithField("query", query).Warn("failed to send subscribe frame")
		}
	}

	c.log.WithFields(logger.Fields{"subscription_id": sub.id, "query": query}).Debug("subscription registered")
	return sub.id
}

// Unsubscribe removes a subscription. Unknown ids are a silent no-op.
func (c *Client) Unsubscribe(id string) {
	sub, ok := c.registry.remove(id)
	if !ok {
		return
	}

	c.mu.Lock()
	conn, connected := c.conn, c.state == Connected
	c.mu.Unlock()

	if connected && conn != nil {
		if err := c.writeFrame(conn, unsubscribeFrame(sub.id, sub.query)); err != nil {
			c.log.WithError(err).WithField("query", sub.query).Debug("failed to send unsubscribe frame")
		}
	}

	c.log.WithField("subscription_id", id).Debug("subscription removed")
}

// SubscriptionCount returns the number of live subscriptions.
func (c *Client) SubscriptionCount() int {
	return c.registry.count()
}

func (c *Client) readLoop(conn *websocket.Conn, epoch uint64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(epoch, err)
			return
		}
		logger.IncrementFrameRead(len(data))
		c.handleFrame(data)
	}
}

func (c *Client) handleFrame(data []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		c.log.WithError(err).Warn("malformed websocket frame")
		return
	}

	// A frame whose id resolves a pending ping is the pong, regardless of
	// its result or error contents.
	if id := frame.idString(); id != "" && c.hb.handlePong(id) {
		return
	}

	if !frame.hasParams() {
		// Subscription acknowledgement.
		c.log.WithField("id", frame.idString()).Debug("ignoring acknowledgement frame")
		return
	}

	ev, ok := DecodeTxEvent(frame.Params, time.Now())
	if !ok {
		logger.IncrementEventDropped()
		c.log.Debug("frame did not decode to a domain event")
		return
	}
	logger.IncrementEventDecoded(models.Kind(ev.EventType()))

	select {
	case c.dispatchCh <- ev:
	default:
		c.log.WithField("type", ev.EventType()).Warn("dispatch buffer full, dropping event")
	}
}

// dispatchLoop decouples socket reads from callback execution. Callbacks run
// in registration order per event; a panicking callback is logged and the
// remaining callbacks still run.
func (c *Client) dispatchLoop() {
	for ev := range c.dispatchCh {
		for _, sub := range c.registry.list() {
			if !sub.filter.Matches(ev) {
				continue
			}
			c.invoke(sub, ev)
		}
	}
}

func (c *Client) invoke(sub *subscription, ev models.Event) {
	defer func() {
		if r := recover(); r != nil {
			c.log.WithFields(logger.Fields{
				"subscription_id": sub.id,
				"panic":           r,
			}).Error("subscription callback panicked")
		}
	}()
	sub.callback(ev)
}

func (c *Client) handleClose(epoch uint64, cause error) {
	c.mu.Lock()
	if epoch != c.connEpoch {
		// A newer connection already replaced this one.
		c.mu.Unlock()
		return
	}
	if c.state == Disconnected {
		// Explicit Disconnect closed the socket; nothing to recover.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = nextState(c.state, evClosed)
	c.mu.Unlock()

	c.hb.stop()
	c.log.WithError(cause).Warn("websocket closed unexpectedly")
	c.scheduleReconnect()
}

func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	if c.state != Reconnecting {
		c.mu.Unlock()
		return
	}
	if c.attempts >= c.opts.MaxReconnectAttempts {
		c.state = nextState(c.state, evGiveUp)
		c.mu.Unlock()
		c.log.WithField("attempts", c.opts.MaxReconnectAttempts).Error("reconnect attempts exhausted, giving up")
		return
	}

	delay := backoffDelay(c.opts.ReconnectBaseDelay, c.opts.MaxReconnectDelay, c.attempts)
	c.attempts++
	attempt := c.attempts
	c.reconnectTimer = time.AfterFunc(delay, c.reconnect)
	c.mu.Unlock()

	logger.IncrementReconnect()
	c.log.WithFields(logger.Fields{
		"attempt": attempt,
		"max":     c.opts.MaxReconnectAttempts,
		"delay":   delay.String(),
	}).Info("scheduling reconnect")
}

func (c *Client) reconnect() {
	c.mu.Lock()
	if c.state != Reconnecting {
		// Disconnect or a racing Connect got here first.
		c.mu.Unlock()
		return
	}
	c.state = nextState(c.state, evDialStart)
	c.mu.Unlock()

	// dial schedules the next attempt itself on failure.
	_ = c.dial(context.Background(), true)
}

// backoffDelay computes min(base * 2^attempts, max).
func backoffDelay(base, max time.Duration, attempts int) time.Duration {
	if attempts > 30 {
		attempts = 30
	}
	delay := base << uint(attempts)
	if delay <= 0 || delay > max {
		return max
	}
	return delay
}

func (c *Client) sendPing(id string) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("no active connection")
	}
	return c.writeFrame(conn, pingFrame(id))
}

// onHeartbeatDead force-closes the socket; the read loop's close handling
// drives the reconnection from there.
func (c *Client) onHeartbeatDead(string) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

// writeFrame serializes all outbound writes and applies the send rate limit
// so a large replay burst cannot flood the node.
func (c *Client) writeFrame(conn *websocket.Conn, frame wireFrame) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(context.Background()); err != nil {
			return err
		}
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteJSON(frame)
}
