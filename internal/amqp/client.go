package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"slotledger/internal/core"
	"slotledger/internal/log"
)

// Circuit breaker states.
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures    = 5
	openTimeout    = 30 * time.Second
	maxBackoff     = 30 * time.Second
	publishTimeout = 5 * time.Second
)

// ErrUnprocessable marks a feed message that can never succeed. Handlers
// wrap it so the message is dropped instead of requeued.
var ErrUnprocessable = errors.New("unprocessable feed message")

// Config names the broker objects the client declares.
type Config struct {
	URL              string
	Exchange         string
	FeedQueue        string
	EventsRoutingKey string
}

// FeedHandler processes banking feed messages.
type FeedHandler interface {
	HandleBalanceUpdated(ctx context.Context, msg *BalanceUpdatedMessage) error
	HandleTransactionPosted(ctx context.Context, msg *TransactionPostedMessage) error
}

type Client struct {
	url              string
	exchangeName     string
	queueName        string
	eventsRoutingKey string
	logger           *log.Logger

	mu      sync.RWMutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	state        int32
	failureCount int64
	lastFailure  time.Time
	failureMu    sync.Mutex
}

func NewClient(cfg Config, logger *log.Logger) (*Client, error) {
	if logger == nil {
		logger = log.Discard()
	}
	c := &Client{
		url:              cfg.URL,
		exchangeName:     cfg.Exchange,
		queueName:        cfg.FeedQueue,
		eventsRoutingKey: cfg.EventsRoutingKey,
		logger:           logger.WithComponent(log.ComponentAMQP),
	}
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) connect() error {
	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	if err := setup(channel, c.exchangeName, c.queueName, c.eventsRoutingKey); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("setup exchange and queues: %w", err)
	}

	c.mu.Lock()
	c.conn, c.channel = conn, channel
	c.mu.Unlock()
	return nil
}

func setup(ch *amqp091.Channel, exchange, feedQueue, eventsKey string) error {
	err := ch.ExchangeDeclare(
		exchange, // name
		"direct", // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	// Both queues are bound with their own name as routing key.
	for _, queue := range []string{feedQueue, eventsKey} {
		if queue == "" {
			continue
		}
		if _, err := ch.QueueDeclare(
			queue, // name
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			nil,   // arguments
		); err != nil {
			return fmt.Errorf("declare queue %s: %w", queue, err)
		}
		if err := ch.QueueBind(queue, queue, exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", queue, err)
		}
	}
	return nil
}

func (c *Client) reconnect(ctx context.Context) error {
	c.closeConnection()
	for attempt := 0; ; attempt++ {
		err := c.connect()
		if err == nil {
			c.logger.InfoContext(ctx, "Reconnected to AMQP broker", "attempts", attempt+1)
			return nil
		}
		delay := exponentialBackoff(attempt)
		c.logger.WarnContext(ctx, "AMQP reconnect failed",
			log.FieldError, err,
			"retry_in", delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// PublishLedgerEvent announces a committed ledger change on the events
// routing key.
func (c *Client) PublishLedgerEvent(ctx context.Context, ev core.LedgerEvent) error {
	body, err := NewLedgerEventMessage(ev).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := c.publish(ctx, c.eventsRoutingKey, string(ev.Type), body); err != nil {
		return err
	}
	c.logger.DebugContext(ctx, "Published ledger event",
		"type", ev.Type,
		log.FieldAccountID, ev.AccountID,
		log.FieldVersion, ev.Version)
	return nil
}

// PublishBalanceUpdated puts a balance report on the feed queue.
func (c *Client) PublishBalanceUpdated(ctx context.Context, msg BalanceUpdatedMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return c.publish(ctx, c.queueName, TypeBalanceUpdated, body)
}

// PublishTransactionPosted puts a posted transaction on the feed queue.
func (c *Client) PublishTransactionPosted(ctx context.Context, msg TransactionPostedMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return c.publish(ctx, c.queueName, TypeTransactionPosted, body)
}

func (c *Client) publish(ctx context.Context, routingKey, msgType string, body []byte) error {
	if c.isCircuitOpen() {
		return fmt.Errorf("circuit breaker is open, publish to %s rejected", routingKey)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.RLock()
	channel := c.channel
	c.mu.RUnlock()
	if channel == nil {
		c.recordFailure()
		return fmt.Errorf("publish message: %w", amqp091.ErrClosed)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err := channel.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		routingKey,     // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			Type:         msgType,
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		c.recordFailure()
		if isConnectionError(err) {
			go func() {
				rctx, cancel := context.WithTimeout(context.Background(), openTimeout)
				defer cancel()
				if err := c.reconnect(rctx); err != nil {
					c.logger.Error("AMQP reconnect abandoned", log.FieldError, err)
				}
			}()
		}
		return fmt.Errorf("publish message: %w", err)
	}
	c.recordSuccess()
	return nil
}

// ConsumeFeed consumes banking feed messages until ctx is cancelled,
// reconnecting when the broker goes away.
func (c *Client) ConsumeFeed(ctx context.Context, handler FeedHandler) error {
	for {
		err := c.consumeOnce(ctx, handler)
		if ctx.Err() != nil {
			c.logger.InfoContext(ctx, "Stopping feed consumption", "reason", ctx.Err())
			return ctx.Err()
		}
		c.logger.WarnContext(ctx, "Feed consumption interrupted", log.FieldError, err)
		if err := c.reconnect(ctx); err != nil {
			return err
		}
	}
}

func (c *Client) consumeOnce(ctx context.Context, handler FeedHandler) error {
	c.mu.RLock()
	channel := c.channel
	c.mu.RUnlock()
	if channel == nil {
		return amqp091.ErrClosed
	}

	msgs, err := channel.Consume(
		c.queueName, // queue
		"",          // consumer
		false,       // auto-ack (we want manual ack)
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	c.logger.InfoContext(ctx, "Started consuming feed messages", "queue", c.queueName)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed")
			}
			switch c.handleDelivery(ctx, delivery.Type, delivery.Body, handler) {
			case outcomeAck:
				delivery.Ack(false)
			case outcomeDrop:
				delivery.Nack(false, false)
			case outcomeRequeue:
				delivery.Nack(false, true)
			}
		}
	}
}

type deliveryOutcome int

const (
	outcomeAck deliveryOutcome = iota
	outcomeDrop
	outcomeRequeue
)

func (c *Client) handleDelivery(ctx context.Context, msgType string, body []byte, handler FeedHandler) deliveryOutcome {
	var err error
	switch msgType {
	case TypeBalanceUpdated:
		msg, decodeErr := BalanceUpdatedMessageFromJSON(body)
		if decodeErr != nil {
			c.logger.ErrorContext(ctx, "Failed to decode feed message", "type", msgType, log.FieldError, decodeErr)
			return outcomeDrop
		}
		err = handler.HandleBalanceUpdated(ctx, msg)
	case TypeTransactionPosted:
		msg, decodeErr := TransactionPostedMessageFromJSON(body)
		if decodeErr != nil {
			c.logger.ErrorContext(ctx, "Failed to decode feed message", "type", msgType, log.FieldError, decodeErr)
			return outcomeDrop
		}
		err = handler.HandleTransactionPosted(ctx, msg)
	default:
		c.logger.WarnContext(ctx, "Dropping feed message of unknown type", "type", msgType)
		return outcomeDrop
	}

	switch {
	case err == nil:
		return outcomeAck
	case errors.Is(err, ErrUnprocessable):
		c.logger.WarnContext(ctx, "Dropping unprocessable feed message", "type", msgType, log.FieldError, err)
		return outcomeDrop
	default:
		c.logger.ErrorContext(ctx, "Failed to handle feed message", "type", msgType, log.FieldError, err)
		return outcomeRequeue
	}
}

// Ping reports whether the broker connection is open.
func (c *Client) Ping(context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.conn == nil || c.conn.IsClosed() {
		return amqp091.ErrClosed
	}
	return nil
}

func (c *Client) isCircuitOpen() bool {
	if atomic.LoadInt32(&c.state) != StateOpen {
		return false
	}
	c.failureMu.Lock()
	last := c.lastFailure
	c.failureMu.Unlock()
	if time.Since(last) > openTimeout {
		atomic.CompareAndSwapInt32(&c.state, StateOpen, StateHalfOpen)
		return false
	}
	return true
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

func (c *Client) recordFailure() {
	c.failureMu.Lock()
	c.lastFailure = time.Now()
	c.failureMu.Unlock()
	if atomic.AddInt64(&c.failureCount, 1) >= maxFailures || atomic.LoadInt32(&c.state) == StateHalfOpen {
		atomic.StoreInt32(&c.state, StateOpen)
	}
}

func exponentialBackoff(attempt int) time.Duration {
	if attempt > 5 {
		return maxBackoff
	}
	d := time.Second << attempt
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection", "eof", "broken pipe", "closed network"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func (c *Client) closeConnection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) Close() error {
	c.closeConnection()
	return nil
}
