package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"fraudulert-backend/internal/models"
)

type AlertClient struct {
	webhookURL string
	client     *http.Client
}

type AlertMessage struct {
	Blocks []AlertBlock `json:"blocks"`
}

type AlertBlock struct {
	Type   string       `json:"type"`
	Text   *AlertText   `json:"text,omitempty"`
	Fields []*AlertText `json:"fields,omitempty"`
}

type AlertText struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

func NewAlertClient() *AlertClient {
	webhookURL := os.Getenv("ALERT_WEBHOOK_URL")
	return &AlertClient{
		webhookURL: webhookURL,
		client:     &http.Client{},
	}
}

// SendHighRiskAlert posts a webhook notification for a transaction that
// scored in the top risk band. A missing webhook URL disables alerts.
func (c *AlertClient) SendHighRiskAlert(p *models.Prediction) error {
	if c.webhookURL == "" {
		return nil
	}

	message := c.buildHighRiskMessage(p)
	return c.sendMessage(message)
}

func (c *AlertClient) buildHighRiskMessage(p *models.Prediction) AlertMessage {
	return AlertMessage{
		Blocks: []AlertBlock{
			{
				Type: "header",
				Text: &AlertText{
					Type:  "plain_text",
					Text:  fmt.Sprintf("🚨 %s: transaction %s", p.FraudCategory, p.TransactionID),
					Emoji: true,
				},
			},
			{
				Type: "section",
				Fields: []*AlertText{
					{Type: "mrkdwn", Text: fmt.Sprintf("*Client:*\n%s", p.ClientID)},
					{Type: "mrkdwn", Text: fmt.Sprintf("*Probability:*\n%.4f", p.FraudProbability)},
				},
			},
		},
	}
}

func (c *AlertClient) sendMessage(message AlertMessage) error {
	reqBody, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	resp, err := c.client.Post(c.webhookURL, "application/json", bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("post error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("webhook error: %s", string(body))
	}

	return nil
}
