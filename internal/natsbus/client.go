package natsbus

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/nats-io/nats.go"
)

type Client struct {
	nc *nats.Conn
	js nats.JetStreamContext
}

// Connect establishes the NATS connection and initializes JetStream.
func Connect() (*Client, error) {
	url := os.Getenv("NATS_URL")
	if url == "" {
		url = nats.DefaultURL
	}

	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(1 * time.Second),
		nats.ReconnectJitter(500*time.Millisecond, 2*time.Second),
		nats.ReconnectBufSize(8 * 1024 * 1024),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Printf("WARN NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("INFO NATS reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			log.Println("INFO NATS connection closed")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Printf("ERROR NATS error: %v", err)
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	log.Printf("INFO Connected to NATS at %s", nc.ConnectedUrl())

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	if err := ensureInfrastructure(js); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure infrastructure: %w", err)
	}

	return &Client{nc: nc, js: js}, nil
}

// Close drains and closes the NATS connection.
func (c *Client) Close() error {
	return c.nc.Drain()
}

// NC returns the underlying NATS connection (for request-reply scoring).
func (c *Client) NC() *nats.Conn {
	return c.nc
}

// JS returns the JetStream context.
func (c *Client) JS() nats.JetStreamContext {
	return c.js
}

func ensureInfrastructure(js nats.JetStreamContext) error {
	_, err := js.StreamInfo("FRAUD_PREDICTIONS")
	if err == nats.ErrStreamNotFound {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:       "FRAUD_PREDICTIONS",
			Subjects:   []string{"fraud.*.predictions"},
			Retention:  nats.LimitsPolicy,
			MaxAge:     72 * time.Hour,
			MaxBytes:   10 * 1024 * 1024 * 1024, // 10GB
			MaxMsgSize: 4 * 1024 * 1024,         // 4MB batches
			Discard:    nats.DiscardOld,
			Storage:    nats.FileStorage,
		})
		if err != nil {
			return fmt.Errorf("create stream FRAUD_PREDICTIONS: %w", err)
		}
		log.Println("INFO Created JetStream stream FRAUD_PREDICTIONS")
	} else if err != nil {
		return fmt.Errorf("get stream info: %w", err)
	}

	return nil
}
