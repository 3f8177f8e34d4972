package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ND68/TipJar/internal/metrics"
)

// AlertType categorizes the kind of alert.
type AlertType string

const (
	AlertTypeTipReceived   AlertType = "TIP_RECEIVED"
	AlertTypeActionFailed  AlertType = "ACTION_FAILED"
	AlertTypeSyncUnhealthy AlertType = "SYNC_UNHEALTHY"
	AlertTypeSyncRecovered AlertType = "SYNC_RECOVERED"
)

// Alert represents a single alert event. Key narrows the cooldown so that
// distinct events of one type are not collapsed.
type Alert struct {
	Type    AlertType
	Network string
	Jar     string
	Key     string
	Title   string
	Message string
	Fields  map[string]string
}

type Alerter interface {
	Send(ctx context.Context, alert Alert) error
}

// MultiAlerter fans out alerts to multiple channels.
type MultiAlerter struct {
	alerters []Alerter
	cooldown time.Duration
	logger   *slog.Logger
	nowFn    func() time.Time

	mu       sync.Mutex
	lastSent map[string]time.Time
}

func NewMultiAlerter(cooldown time.Duration, logger *slog.Logger, alerters ...Alerter) *MultiAlerter {
	if logger == nil {
		logger = slog.Default()
	}
	return &MultiAlerter{
		alerters: alerters,
		cooldown: cooldown,
		logger:   logger.With("component", "alerter"),
		nowFn:    time.Now,
		lastSent: make(map[string]time.Time),
	}
}

// Len returns the number of configured channels.
func (m *MultiAlerter) Len() int {
	return len(m.alerters)
}

func cooldownKey(a Alert) string {
	return fmt.Sprintf("%s:%s:%s:%s", a.Type, a.Network, strings.ToLower(a.Jar), a.Key)
}

// Send delivers alert on every channel unless the same key went out within
// the cooldown. Channel errors are joined; a failing channel does not stop
// the others.
func (m *MultiAlerter) Send(ctx context.Context, alert Alert) error {
	key := cooldownKey(alert)
	if !m.claim(key) {
		m.logger.Debug("alert suppressed by cooldown", "key", key)
		for _, a := range m.alerters {
			metrics.AlertsCooldownSkipped.WithLabelValues(alerterName(a), string(alert.Type)).Inc()
		}
		return nil
	}

	var errs []error
	for _, a := range m.alerters {
		channel := alerterName(a)
		if err := a.Send(ctx, alert); err != nil {
			m.logger.Warn("alert send failed", "channel", channel, "type", alert.Type, "error", err)
			errs = append(errs, err)
			continue
		}
		metrics.AlertsSentTotal.WithLabelValues(channel, string(alert.Type)).Inc()
	}
	return errors.Join(errs...)
}

// claim records key as sent now and reports whether the cooldown allowed it.
// Tip alerts carry one key per tip, so expired keys are pruned here.
func (m *MultiAlerter) claim(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.nowFn()
	for k, at := range m.lastSent {
		if now.Sub(at) >= m.cooldown {
			delete(m.lastSent, k)
		}
	}
	if _, recent := m.lastSent[key]; recent {
		return false
	}
	m.lastSent[key] = now
	return true
}

func alerterName(a Alerter) string {
	switch a.(type) {
	case *SlackAlerter:
		return "slack"
	case *WebhookAlerter:
		return "webhook"
	default:
		return "unknown"
	}
}

const sinkTimeout = 10 * time.Second

var slackEmoji = map[AlertType]string{
	AlertTypeTipReceived:   ":moneybag:",
	AlertTypeActionFailed:  ":warning:",
	AlertTypeSyncUnhealthy: ":rotating_light:",
	AlertTypeSyncRecovered: ":white_check_mark:",
}

// SlackAlerter posts alerts to a Slack incoming webhook.
type SlackAlerter struct {
	sink
}

func NewSlackAlerter(webhookURL string) *SlackAlerter {
	return &SlackAlerter{sink: newSink("slack", webhookURL)}
}

func (s *SlackAlerter) Send(ctx context.Context, alert Alert) error {
	return s.post(ctx, map[string]string{"text": slackText(alert)})
}

// slackText renders one mrkdwn message with the fields listed in key order.
func slackText(alert Alert) string {
	emoji, ok := slackEmoji[alert.Type]
	if !ok {
		emoji = ":warning:"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s *[%s]* %s: %s\n%s", emoji, alert.Type, alert.Network, alert.Title, alert.Message)
	if len(alert.Fields) == 0 {
		return b.String()
	}
	b.WriteString("\n")
	for _, k := range slices.Sorted(maps.Keys(alert.Fields)) {
		fmt.Fprintf(&b, "- *%s*: %s\n", k, alert.Fields[k])
	}
	return b.String()
}

// WebhookAlerter posts alerts as JSON to a generic HTTP endpoint.
type WebhookAlerter struct {
	sink
	now func() time.Time
}

func NewWebhookAlerter(url string) *WebhookAlerter {
	return &WebhookAlerter{sink: newSink("webhook", url), now: time.Now}
}

type webhookPayload struct {
	Type    AlertType         `json:"type"`
	Network string            `json:"network"`
	Jar     string            `json:"jar,omitempty"`
	Title   string            `json:"title"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
	Time    string            `json:"time"`
}

func (w *WebhookAlerter) Send(ctx context.Context, alert Alert) error {
	return w.post(ctx, webhookPayload{
		Type:    alert.Type,
		Network: alert.Network,
		Jar:     alert.Jar,
		Title:   alert.Title,
		Message: alert.Message,
		Fields:  alert.Fields,
		Time:    w.now().UTC().Format(time.RFC3339),
	})
}

// sink is one HTTP endpoint that accepts a JSON POST per alert.
type sink struct {
	name   string
	url    string
	client *http.Client
}

func newSink(name, url string) sink {
	return sink{name: name, url: url, client: &http.Client{Timeout: sinkTimeout}}
}

func (s sink) post(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", s.name, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", s.name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send %s alert: %w", s.name, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s returned status %d", s.name, resp.StatusCode)
	}
	return nil
}
