package amqp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"khatabook/internal/log"
	"khatabook/internal/ports"
)

var _ ports.BatchPublisher = (*Client)(nil)

// Delivery is the subset of amqp091.Delivery the consumer loop needs.
type Delivery interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// BatchSavedHandler processes one decoded message.
type BatchSavedHandler func(ctx context.Context, msg *BatchSavedMessage) error

type Client struct {
	conn         *amqp091.Connection
	channel      *amqp091.Channel
	exchangeName string
	queueName    string

	// publishMu serialises publishes on the shared channel.
	publishMu sync.Mutex
}

func NewClient(url, exchangeName, queueName string) (*Client, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	client := &Client{
		conn:         conn,
		channel:      channel,
		exchangeName: exchangeName,
		queueName:    queueName,
	}

	if err := client.setup(); err != nil {
		client.Close()
		return nil, fmt.Errorf("setup exchange and queue: %w", err)
	}

	return client, nil
}

func (c *Client) setup() error {
	// Declare exchange
	err := c.channel.ExchangeDeclare(
		c.exchangeName, // name
		"direct",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	// Declare queue
	_, err = c.channel.QueueDeclare(
		c.queueName, // name
		true,        // durable
		false,       // delete when unused
		false,       // exclusive
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	// Bind queue to exchange
	err = c.channel.QueueBind(
		c.queueName,    // queue name
		BatchSavedType, // routing key
		c.exchangeName, // exchange
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	return nil
}

// PublishBatchSaved implements ports.BatchPublisher.
func (c *Client) PublishBatchSaved(ctx context.Context, userID int64, date string, count int) error {
	msg := NewBatchSavedMessage(userID, date, count)
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	c.publishMu.Lock()
	err = c.channel.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		BatchSavedType, // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent, // make message persistent
			Type:         BatchSavedType,
			Timestamp:    msg.Timestamp,
			Body:         body,
		},
	)
	c.publishMu.Unlock()
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	slog.InfoContext(ctx, "Published batch saved message",
		log.FieldComponent, log.ComponentAMQP,
		log.FieldUserID, userID,
		log.FieldDate, date,
		log.FieldCount, count,
		"exchange", c.exchangeName)

	return nil
}

// ConsumeBatchSaved consumes batch saved messages until ctx is cancelled or
// the broker closes the channel.
func (c *Client) ConsumeBatchSaved(ctx context.Context, handler BatchSavedHandler) error {
	msgs, err := c.channel.Consume(
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

	slog.InfoContext(ctx, "Started consuming batch saved messages", "queue", c.queueName)

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed")
			}
			handleDelivery(ctx, &delivery, delivery.Body, delivery.Redelivered, handler)
		}
	}
}

// handleDelivery acks on success. Undecodable bodies are dropped. A failed
// handler gets one requeue; a second failure drops the message.
func handleDelivery(ctx context.Context, d Delivery, body []byte, redelivered bool, handler BatchSavedHandler) {
	msg, err := BatchSavedMessageFromJSON(body)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to unmarshal message", log.FieldError, err)
		_ = d.Nack(false, false) // reject and don't requeue
		return
	}

	if err := handler(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "Failed to handle message",
			log.FieldError, err,
			log.FieldUserID, msg.UserID,
			log.FieldDate, msg.Date,
			"redelivered", redelivered)
		_ = d.Nack(false, !redelivered)
		return
	}

	_ = d.Ack(false) // acknowledge successful processing
	slog.InfoContext(ctx, "Successfully processed batch saved message",
		log.FieldUserID, msg.UserID,
		log.FieldDate, msg.Date)
}

func (c *Client) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
