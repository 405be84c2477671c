package rabbitmq

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"restaurant-orders/internal/config"
)

// Client owns one connection and a confirm-mode publishing channel.
// Consumers open their own channels through Channel.
type Client struct {
	conn *amqp.Connection
	pub  *amqp.Channel

	publish publishFunc
}

// confirmation is the broker's answer for one published message.
type confirmation interface {
	WaitContext(ctx context.Context) (bool, error)
}

type publishFunc func(ctx context.Context, exchange, key string, msg amqp.Publishing) (confirmation, error)

func deferredPublish(ch *amqp.Channel) publishFunc {
	return func(ctx context.Context, exchange, key string, msg amqp.Publishing) (confirmation, error) {
		dc, err := ch.PublishWithDeferredConfirmWithContext(ctx, exchange, key, false, false, msg)
		if err != nil {
			return nil, err
		}
		if dc == nil {
			return nil, errors.New("publish channel is not in confirm mode")
		}
		return dc, nil
	}
}

func URL(cfg config.RabbitMQConfig) string {
	scheme := "amqp"
	if cfg.UseTLS {
		scheme = "amqps"
	}
	vhost := cfg.VHost
	if vhost == "" {
		vhost = "/"
	}
	userinfo := url.UserPassword(cfg.User, cfg.Password).String()
	return fmt.Sprintf("%s://%s@%s:%d/%s", scheme, userinfo, cfg.Host, cfg.Port, url.PathEscape(vhost))
}

func Dial(cfg config.RabbitMQConfig) (*Client, error) {
	var (
		conn *amqp.Connection
		err  error
	)
	if cfg.UseTLS {
		conn, err = amqp.DialTLS(URL(cfg), &tls.Config{MinVersion: tls.VersionTLS12})
	} else {
		conn, err = amqp.Dial(URL(cfg))
	}
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return &Client{conn: conn, pub: ch, publish: deferredPublish(ch)}, nil
}

// Channel opens a fresh channel for consuming or declaring topology.
func (c *Client) Channel() (*amqp.Channel, error) {
	if c.conn == nil || c.conn.IsClosed() {
		return nil, errors.New("rabbitmq connection is closed")
	}
	return c.conn.Channel()
}

func (c *Client) Close() {
	if c.pub != nil {
		_ = c.pub.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

func (c *Client) Ping() error {
	if c.conn == nil || c.conn.IsClosed() {
		return errors.New("rabbitmq connection is closed")
	}
	return nil
}

// Publish sends one message and waits for the broker confirm of that message.
func (c *Client) Publish(ctx context.Context, exchange, key string, msg amqp.Publishing) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	conf, err := c.publish(ctx, exchange, key, msg)
	if err != nil {
		return err
	}
	ack, err := conf.WaitContext(ctx)
	if err != nil {
		return err
	}
	if !ack {
		return errors.New("publish NACK from broker")
	}
	return nil
}
