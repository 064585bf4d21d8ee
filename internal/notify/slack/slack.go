// Package slack posts tower alarm escalations to Slack via incoming webhooks.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/linnemanlabs/watchtower/internal/playbook"
	"github.com/linnemanlabs/watchtower/internal/tower"
)

const (
	maxGuidanceLen = 3000
	maxSteps       = 3
	httpTimeout    = 10 * time.Second
)

// Notifier sends alarm escalations to a Slack webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
}

// New creates a new Slack notifier. If webhookURL is empty, Send is a no-op.
func New(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		client: &http.Client{
			Timeout:   httpTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// Enabled reports whether a webhook is configured.
func (n *Notifier) Enabled() bool { return n.webhookURL != "" }

// Send posts one alarm and the playbook that applies to it.
// If no webhook URL is configured, it returns nil immediately.
func (n *Notifier) Send(ctx context.Context, a *tower.Alarm, pb *playbook.Definition) error {
	if n.webhookURL == "" {
		return nil
	}

	body, err := json.Marshal(buildMessage(a, pb))
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func buildMessage(a *tower.Alarm, pb *playbook.Definition) map[string]any {
	return map[string]any{
		"blocks": []map[string]any{
			headerBlock(a),
			{"type": "divider"},
			fieldsBlock(a, pb),
			{"type": "divider"},
			guidanceBlock(pb),
			{"type": "divider"},
			contextBlock(a),
		},
	}
}

func headerBlock(a *tower.Alarm) map[string]any {
	label := a.Label
	if label == "" {
		label = a.ID
	}
	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": fmt.Sprintf("%s Tower alarm: %s", severityEmoji(a.Severity), label),
		},
	}
}

func fieldsBlock(a *tower.Alarm, pb *playbook.Definition) map[string]any {
	level, id := a.Scope.Key()
	category := a.Category()
	if category == "" {
		category = "uncategorized"
	}

	fields := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Severity:* %s", a.Severity),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Scope:* %s %s", level, id),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Category:* %s", category),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Owner:* %s", pb.Owner),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Playbook:* %s", pb.ID),
		},
	}

	return map[string]any{
		"type":   "section",
		"fields": fields,
	}
}

func guidanceBlock(pb *playbook.Definition) map[string]any {
	var b strings.Builder
	b.WriteString(pb.Summary)
	for i, step := range pb.Steps {
		if i == maxSteps {
			fmt.Fprintf(&b, "\n_+%d more steps_", len(pb.Steps)-maxSteps)
			break
		}
		fmt.Fprintf(&b, "\n%d. %s", i+1, step)
	}
	if pb.Guardrail != "" {
		fmt.Fprintf(&b, "\n\n:warning: %s", pb.Guardrail)
	}

	text := truncate(strings.TrimSpace(b.String()), maxGuidanceLen)
	if text == "" {
		text = "_No guidance available._"
	}

	return map[string]any{
		"type": "section",
		"text": map[string]any{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Next steps*\n\n%s", text),
		},
	}
}

func contextBlock(a *tower.Alarm) map[string]any {
	ts := a.TS
	if ts.IsZero() {
		ts = time.Now()
	}

	elements := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("watchtower • alarm %s • %s", a.ID, ts.UTC().Format("2006-01-02 15:04 UTC")),
		},
	}

	return map[string]any{
		"type":     "context",
		"elements": elements,
	}
}

func severityEmoji(s tower.Severity) string {
	switch s {
	case tower.SeverityCritical:
		return "\U0001f534" // red circle
	case tower.SeverityWarn:
		return "\U0001f7e1" // yellow circle
	default:
		return "\U0001f7e2" // green circle
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
