package rpc

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/vmihailenco/msgpack/v5"

	"fraudulert-backend/internal/models"
)

var (
	ErrScorerOffline = errors.New("scorer is offline")
	ErrTimeout       = errors.New("request timed out")
)

type Client struct {
	nc *nats.Conn
}

func NewClient(nc *nats.Conn) *Client {
	return &Client{nc: nc}
}

// ScoreTransaction sends an on-demand scoring request over the org's
// request subject and waits for a single scorer to answer.
func (c *Client) ScoreTransaction(org, transactionID, clientID, model string, timeoutMS int) (*models.ScoreResponse, error) {
	req := models.ScoreRequest{
		RequestID:     uuid.New().String(),
		TransactionID: transactionID,
		ClientID:      clientID,
		Model:         model,
	}

	payload, err := msgpack.Marshal(&req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	timeout := time.Duration(timeoutMS)*time.Millisecond + 5*time.Second
	if timeoutMS <= 0 {
		timeout = 15 * time.Second
	}
	if timeout > 60*time.Second {
		timeout = 60 * time.Second
	}

	subject := fmt.Sprintf("fraud.%s.score", org)
	msg, err := c.nc.Request(subject, payload, timeout)
	if err != nil {
		if errors.Is(err, nats.ErrNoResponders) {
			return nil, ErrScorerOffline
		}
		if errors.Is(err, nats.ErrTimeout) {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("request: %w", err)
	}

	var resp models.ScoreResponse
	if err := msgpack.Unmarshal(msg.Data, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("scorer error: %s", resp.Error)
	}

	return &resp, nil
}
