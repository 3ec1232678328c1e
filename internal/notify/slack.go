package notify

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/autofix/pkg/shared/config"
	"github.com/scan-io-git/autofix/pkg/shared/httpclient"
)

// Summary is the part of a run report sent to chat.
type Summary struct {
	RunID       string
	Repository  string
	Branch      string
	ReviewURL   string
	DryRun      bool
	Aborted     bool
	AbortReason string
	Duration    time.Duration
	// Outcomes counts findings per outcome kind.
	Outcomes  map[string]int
	Malformed int
}

// Notifier delivers run summaries.
type Notifier interface {
	Notify(ctx context.Context, s Summary) error
}

// Noop drops every summary.
type Noop struct{}

func (Noop) Notify(context.Context, Summary) error { return nil }

// Slack posts summaries to an incoming webhook.
type Slack struct {
	logger  hclog.Logger
	client  *resty.Client
	webhook string
}

type slackPayload struct {
	Text string `json:"text"`
}

// New returns a Slack notifier when a webhook is configured, Noop otherwise.
func New(cfg *config.Config, logger hclog.Logger) Notifier {
	webhook := config.LookupSecret(cfg.Notify.SlackWebhookEnv, config.EnvSlack)
	if webhook == "" {
		logger.Debug("slack webhook is not set, notifications disabled")
		return Noop{}
	}
	return NewSlack(httpclient.InitializeRestyClient(logger, cfg), logger, webhook)
}

func NewSlack(client *resty.Client, logger hclog.Logger, webhook string) *Slack {
	return &Slack{logger: logger, client: client, webhook: webhook}
}

func (s *Slack) Notify(ctx context.Context, sum Summary) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(slackPayload{Text: FormatSummary(sum)}).
		Post(s.webhook)
	if err != nil {
		return fmt.Errorf("failed to post slack notification: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("slack webhook returned %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	s.logger.Debug("slack notification sent", "run", sum.RunID)
	return nil
}

// FormatSummary renders s as Slack mrkdwn.
func FormatSummary(s Summary) string {
	var b strings.Builder

	status := "completed"
	switch {
	case s.Aborted:
		status = "aborted"
	case s.DryRun:
		status = "completed (dry run)"
	}
	fmt.Fprintf(&b, "*Security autofix run %s* `%s`", status, s.RunID)
	if s.Repository != "" {
		fmt.Fprintf(&b, " on %s", s.Repository)
	}
	b.WriteString("\n")
	if s.Aborted && s.AbortReason != "" {
		fmt.Fprintf(&b, "Reason: %s\n", s.AbortReason)
	}

	kinds := make([]string, 0, len(s.Outcomes))
	for k := range s.Outcomes {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Fprintf(&b, "• %s: %d\n", k, s.Outcomes[k])
	}
	if s.Malformed > 0 {
		fmt.Fprintf(&b, "• malformed records: %d\n", s.Malformed)
	}

	if s.ReviewURL != "" {
		fmt.Fprintf(&b, "Review: <%s|%s>\n", s.ReviewURL, config.SetThen(s.Branch, s.ReviewURL))
	} else if s.Branch != "" {
		fmt.Fprintf(&b, "Branch: `%s`\n", s.Branch)
	}
	if s.Duration > 0 {
		fmt.Fprintf(&b, "Duration: %s\n", s.Duration.Round(time.Second))
	}
	return strings.TrimRight(b.String(), "\n")
}
