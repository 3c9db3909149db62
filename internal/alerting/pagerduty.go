package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const defaultPagerDutyBaseURL = "https://events.eu.pagerduty.com"

// Pager forwards a subset of alerts to an external incident provider.
type Pager interface {
	SendPage(ctx context.Context, severity, summary, source string) error
}

// PagerDutyClient pushes events to the PagerDuty Events v2 API.
type PagerDutyClient struct {
	routingKey string
	baseURL    string
	client     *http.Client
	logger     zerolog.Logger
}

// NewPagerDutyClient constructs a PagerDuty pager.
func NewPagerDutyClient(routingKey, baseURL string, timeout time.Duration, logger zerolog.Logger) *PagerDutyClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = defaultPagerDutyBaseURL
	}

	return &PagerDutyClient{
		routingKey: routingKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		client:     &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "pagerduty").Logger(),
	}
}

type pagerDutyPayload struct {
	Payload     pagerDutyEventPayload `json:"payload"`
	RoutingKey  string                `json:"routing_key"`
	EventAction string                `json:"event_action"`
}

type pagerDutyEventPayload struct {
	Summary  string `json:"summary"`
	Severity string `json:"severity"`
	Source   string `json:"source"`
}

// SendPage triggers a PagerDuty event.
func (c *PagerDutyClient) SendPage(ctx context.Context, severity, summary, source string) error {
	payload := pagerDutyPayload{
		Payload: pagerDutyEventPayload{
			Summary:  summary,
			Severity: severity,
			Source:   source,
		},
		RoutingKey:  c.routingKey,
		EventAction: "trigger",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal pagerduty payload: %w", err)
	}

	url := c.baseURL + "/v2/enqueue"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create pagerduty request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send pagerduty request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("pagerduty responded with status %d", resp.StatusCode)
	}

	c.logger.Info().
		Str("severity", severity).
		Str("summary", summary).
		Msg("page sent")
	return nil
}

var _ Pager = (*PagerDutyClient)(nil)
