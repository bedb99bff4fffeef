package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/Agathx/climact/moderation/countstore"
)

// Escalation event kinds emitted on notable transitions.
const (
	EventCriticalReport      = "critical_report"
	EventMessageBlocked      = "message_blocked"
	EventMessageReportVolume = "message_report_volume"
)

// Event describes a transition worth telling humans about. Anonymous items
// emit events like any other; the event carries no identity fields.
type Event struct {
	ItemID   string   `json:"itemId"`
	Kind     string   `json:"kind"`
	Severity string   `json:"severity,omitempty"`
	Decision string   `json:"decision"`
	Reasons  []string `json:"reasons,omitempty"`
}

// Notifier delivers escalation events. Delivery is fire-and-forget: the
// pipeline logs failures and moves on.
type Notifier interface {
	Send(ctx context.Context, evt *Event) error
}

// emitEvent sends an escalation through the notifier, honoring the daily
// escalation circuit breaker so a misbehaving rule cannot flood responders.
// The breaker counts distinct items, not deliveries: one item escalating
// through several transitions burns the quota once.
func (eng *Engine) emitEvent(ctx context.Context, evt *Event) {
	if eng.Notifier == nil {
		return
	}
	quota := eng.Config.EscalationQuotaDay
	if quota > 0 && eng.Counters != nil {
		sent, err := eng.Counters.GetCountDistinct(ctx, "escalations", "all", countstore.PeriodDay)
		if err != nil {
			eng.logger().Warn("escalation quota read failed", "err", err)
		} else if sent >= quota {
			escalationSuppressedCount.WithLabelValues(evt.Kind).Inc()
			eng.addFlag(ctx, evt.ItemID, "escalation-quota-exceeded")
			eng.logger().Warn("escalation suppressed, daily quota reached", "itemID", evt.ItemID, "kind", evt.Kind, "quota", quota)
			return
		}
	}
	if err := eng.Notifier.Send(ctx, evt); err != nil {
		eng.logger().Error("escalation delivery failed", "err", err, "itemID", evt.ItemID, "kind", evt.Kind)
		return
	}
	escalationSentCount.WithLabelValues(evt.Kind).Inc()
	if eng.Counters != nil {
		if err := eng.Counters.IncrementDistinct(ctx, "escalations", "all", evt.ItemID); err != nil {
			eng.logger().Warn("escalation counter increment failed", "err", err)
		}
	}
}

type slackWebhookBody struct {
	Text string `json:"text"`
}

// SlackNotifier posts escalation events to a slack "incoming webhook".
type SlackNotifier struct {
	WebhookURL string
	Client     *http.Client
}

var _ Notifier = (*SlackNotifier)(nil)

func NewSlackNotifier(webhookURL string) *SlackNotifier {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.Logger = nil
	return &SlackNotifier{
		WebhookURL: webhookURL,
		Client:     rc.StandardClient(),
	}
}

func (n *SlackNotifier) Send(ctx context.Context, evt *Event) error {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("⚠️ Moderation Escalation: %s ⚠️\n", evt.Kind))
	sb.WriteString(fmt.Sprintf("`%s` (%s) -> %s\n", evt.ItemID, evt.Kind, evt.Decision))
	if evt.Severity != "" {
		sb.WriteString(fmt.Sprintf("severity: %s\n", evt.Severity))
	}
	if len(evt.Reasons) > 0 {
		sb.WriteString("reasons: " + strings.Join(evt.Reasons, "; ") + "\n")
	}

	body, err := json.Marshal(slackWebhookBody{Text: sb.String()})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.WebhookURL, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Add("Content-Type", "application/json")
	resp, err := n.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	buf := new(bytes.Buffer)
	_, _ = buf.ReadFrom(resp.Body)
	if resp.StatusCode != 200 || buf.String() != "ok" {
		return fmt.Errorf("failed slack webhook POST request. status=%d", resp.StatusCode)
	}
	return nil
}

// LogNotifier just writes events to the log; the default when no webhook is
// configured but operators still want the transitions visible.
type LogNotifier struct {
	Logger *slog.Logger
}

var _ Notifier = (*LogNotifier)(nil)

func (n *LogNotifier) Send(ctx context.Context, evt *Event) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("escalation event", "itemID", evt.ItemID, "kind", evt.Kind, "decision", evt.Decision, "severity", evt.Severity)
	return nil
}
