// Package events publishes interview lifecycle notifications over NATS.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const (
	SubjectSessionStarted   = "interview.session.started"
	SubjectSessionCompleted = "interview.session.completed"
)

// SessionEvent is the payload of both lifecycle subjects.
type SessionEvent struct {
	SessionKey  string    `json:"session_key"`
	SubjectID   string    `json:"subject_id,omitempty"`
	Provider    string    `json:"provider"`
	Model       string    `json:"model"`
	Termination string    `json:"termination,omitempty"`
	Persisted   string    `json:"persisted,omitempty"`
	Uploaded    bool      `json:"uploaded"`
	Notified    bool      `json:"notified"`
	At          time.Time `json:"at"`
}

type Publisher interface {
	Publish(subject string, data any) error
}

// Nop drops every event. It is used when NATS is not configured.
type Nop struct{}

func (Nop) Publish(string, any) error { return nil }

type Client struct {
	conn   *nats.Conn
	logger *slog.Logger
}

func NewClient(ctx context.Context, url, token string, logger *slog.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.Name("interviewer"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &Client{conn: nc, logger: logger}, nil
}

// Publish sends data as JSON. Each message carries a fresh Nats-Msg-Id so
// a JetStream consumer can drop redeliveries.
func (c *Client) Publish(subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	msg := nats.NewMsg(subject)
	msg.Header.Set(nats.MsgIdHdr, uuid.NewString())
	msg.Data = payload
	return c.conn.PublishMsg(msg)
}

// Close flushes pending publishes before closing the connection.
func (c *Client) Close() {
	if err := c.conn.Drain(); err != nil {
		c.logger.Warn("nats drain failed", "error", err)
	}
}
