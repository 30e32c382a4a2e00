package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/jenbur242/pocket-option/internal/models"
)

// DefaultURL is the PocketOption demo websocket endpoint. Live sessions use
// a region endpoint assigned at login; it comes from config.
const DefaultURL = "wss://demo-api-eu.po.market/socket.io/?EIO=4&transport=websocket"

const (
	authTimeout  = 10 * time.Second
	orderTimeout = 10 * time.Second
	writeTimeout = 5 * time.Second
)

// PocketOptionClient is a live broker session. The wire protocol is
// socket.io framing over a websocket: engine.io control frames ("0" open,
// "2"/"3" ping/pong) and "42"-prefixed JSON event arrays. Authentication
// replays the browser-captured SSID blob.
type PocketOptionClient struct {
	url  string
	ssid string
	demo bool
	log  *log.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	balance   decimal.Decimal
	pending   map[string]chan openReply // keyed by request id
	settled   map[string]*Settlement    // closed deals by order id
	authed    chan struct{}
}

type openReply struct {
	order *Order
	err   error
}

// NewPocketOptionClient creates a client. ssid is the raw session string
// captured from the browser; demo selects the demo balance.
func NewPocketOptionClient(url, ssid string, demo bool, logger *log.Logger) *PocketOptionClient {
	if url == "" {
		url = DefaultURL
	}
	if logger == nil {
		logger = log.Default()
	}
	return &PocketOptionClient{
		url:  url,
		ssid: ssid,
		demo: demo,
		log:  logger,
	}
}

// Ensure PocketOptionClient implements Broker at compile time.
var _ Broker = (*PocketOptionClient)(nil)

// Connect dials the websocket, completes the socket.io handshake, and
// authenticates with the SSID blob. It returns once the server acknowledges
// the session.
func (c *PocketOptionClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	c.pending = make(map[string]chan openReply)
	c.settled = make(map[string]*Settlement)
	c.authed = make(chan struct{})
	c.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dialing broker: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop()

	select {
	case <-c.authed:
	case <-ctx.Done():
		_ = conn.Close()
		return fmt.Errorf("broker auth: %w", ctx.Err())
	case <-time.After(authTimeout):
		_ = conn.Close()
		return fmt.Errorf("broker auth: no acknowledgment within %s", authTimeout)
	}

	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	c.log.Printf("broker session established (demo=%v)", c.demo)
	return nil
}

// Balance returns the last balance pushed by the server.
func (c *PocketOptionClient) Balance(_ context.Context) (decimal.Decimal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return decimal.Decimal{}, ErrNotConnected
	}
	return c.balance, nil
}

// PlaceOrder opens a binary option and waits for the broker's acceptance.
func (c *PocketOptionClient) PlaceOrder(ctx context.Context, asset string, direction models.Direction,
	amount decimal.Decimal, durationSeconds int) (*Order, error) {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	requestID := uuid.NewString()
	reply := make(chan openReply, 1)
	c.pending[requestID] = reply
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, requestID)
		c.mu.Unlock()
	}()

	isDemo := 0
	if c.demo {
		isDemo = 1
	}
	payload := map[string]any{
		"asset":      asset,
		"amount":     amount.InexactFloat64(),
		"action":     string(direction),
		"isDemo":     isDemo,
		"requestId":  requestID,
		"optionType": 100,
		"time":       durationSeconds,
	}
	if err := c.emit("openOrder", payload); err != nil {
		return nil, fmt.Errorf("placing order: %w", err)
	}

	select {
	case r := <-reply:
		if r.err != nil {
			return nil, r.err
		}
		return r.order, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("placing order: %w", ctx.Err())
	case <-time.After(orderTimeout):
		return nil, fmt.Errorf("placing order: no acknowledgment within %s", orderTimeout)
	}
}

// CheckOutcome reports the settlement of a closed deal. While the option is
// still running it returns an incomplete settlement, not an error.
func (c *PocketOptionClient) CheckOutcome(_ context.Context, orderID string) (*Settlement, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return nil, ErrNotConnected
	}
	if s, ok := c.settled[orderID]; ok {
		return s, nil
	}
	return &Settlement{Completed: false}, nil
}

// Disconnect closes the websocket session.
func (c *PocketOptionClient) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	c.connected = false
	err := c.conn.Close()
	c.conn = nil
	return err
}

// emit writes a socket.io event frame: 42["name", payload].
func (c *PocketOptionClient) emit(event string, payload any) error {
	data, err := json.Marshal([]any{event, payload})
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, append([]byte("42"), data...))
}

func (c *PocketOptionClient) write(raw string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, []byte(raw))
}

// readLoop demultiplexes server frames until the connection drops.
func (c *PocketOptionClient) readLoop() {
	defer func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
	}()

	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			c.log.Printf("broker read: %v", err)
			return
		}
		c.handleFrame(string(msg))
	}
}

func (c *PocketOptionClient) handleFrame(frame string) {
	switch {
	case frame == "2": // engine.io ping
		if err := c.write("3"); err != nil {
			c.log.Printf("broker pong: %v", err)
		}
	case strings.HasPrefix(frame, "0"): // engine.io open; join the namespace
		if err := c.write("40"); err != nil {
			c.log.Printf("broker connect frame: %v", err)
		}
	case strings.HasPrefix(frame, "40"): // namespace joined; authenticate
		isDemo := 0
		if c.demo {
			isDemo = 1
		}
		auth := map[string]any{
			"session":  c.ssid,
			"isDemo":   isDemo,
			"uid":      0,
			"platform": 1,
		}
		if err := c.emit("auth", auth); err != nil {
			c.log.Printf("broker auth frame: %v", err)
		}
	case strings.HasPrefix(frame, "42"):
		c.handleEvent(frame[2:])
	}
}

func (c *PocketOptionClient) handleEvent(body string) {
	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(body), &raw); err != nil || len(raw) == 0 {
		return
	}
	var event string
	if err := json.Unmarshal(raw[0], &event); err != nil {
		return
	}
	var payload json.RawMessage
	if len(raw) > 1 {
		payload = raw[1]
	}

	switch event {
	case "successauth":
		c.mu.Lock()
		select {
		case <-c.authed:
		default:
			close(c.authed)
		}
		c.mu.Unlock()
	case "successupdateBalance", "updateBalance":
		var b struct {
			Balance float64 `json:"balance"`
		}
		if err := json.Unmarshal(payload, &b); err == nil {
			c.mu.Lock()
			c.balance = decimal.NewFromFloat(b.Balance)
			c.mu.Unlock()
		}
	case "successopenOrder":
		c.handleOpenOrder(payload)
	case "failopenOrder":
		c.handleFailOrder(payload)
	case "successcloseOrder":
		c.handleCloseOrder(payload)
	}
}

func (c *PocketOptionClient) handleOpenOrder(payload json.RawMessage) {
	var deal struct {
		ID        json.Number `json:"id"`
		RequestID string      `json:"requestId"`
		Asset     string      `json:"asset"`
		Amount    float64     `json:"amount"`
		Command   int         `json:"command"` // 0 call, 1 put
		Duration  int         `json:"time"`
	}
	if err := json.Unmarshal(payload, &deal); err != nil {
		c.log.Printf("broker open-order decode: %v", err)
		return
	}
	direction := models.DirectionCall
	if deal.Command == 1 {
		direction = models.DirectionPut
	}
	order := &Order{
		ID:        deal.ID.String(),
		Asset:     deal.Asset,
		Direction: direction,
		Amount:    decimal.NewFromFloat(deal.Amount),
		Duration:  time.Duration(deal.Duration) * time.Second,
		Status:    StatusActive,
		PlacedAt:  time.Now(),
	}

	c.mu.Lock()
	reply, ok := c.pending[deal.RequestID]
	c.mu.Unlock()
	if ok {
		reply <- openReply{order: order}
	}
}

func (c *PocketOptionClient) handleFailOrder(payload json.RawMessage) {
	var fail struct {
		RequestID string `json:"requestId"`
		Error     string `json:"error"`
	}
	if err := json.Unmarshal(payload, &fail); err != nil {
		c.log.Printf("broker fail-order decode: %v", err)
		return
	}
	c.mu.Lock()
	reply, ok := c.pending[fail.RequestID]
	c.mu.Unlock()
	if ok {
		err := ErrOrderRejected
		if strings.Contains(strings.ToLower(fail.Error), "asset") {
			err = ErrUnsupportedAsset
		}
		reply <- openReply{err: fmt.Errorf("%w: %s", err, fail.Error)}
	}
}

func (c *PocketOptionClient) handleCloseOrder(payload json.RawMessage) {
	var closed struct {
		Deals []struct {
			ID     json.Number `json:"id"`
			Profit float64     `json:"profit"`
			Amount float64     `json:"amount"`
		} `json:"deals"`
	}
	if err := json.Unmarshal(payload, &closed); err != nil {
		c.log.Printf("broker close-order decode: %v", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, deal := range closed.Deals {
		profit := decimal.NewFromFloat(deal.Profit)
		result := models.ResultDraw
		switch profit.Sign() {
		case 1:
			result = models.ResultWin
		case -1:
			result = models.ResultLoss
		}
		c.settled[deal.ID.String()] = &Settlement{
			Completed: true,
			Result:    result,
			Profit:    profit,
		}
	}
}
