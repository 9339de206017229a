package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/taskrelay/taskrelay/internal/journal"
	"github.com/taskrelay/taskrelay/internal/log"
)

// Notifier posts terminal run outcomes to Slack and/or Discord webhooks.
// Either URL may be empty. Notification failures are logged, never
// propagated into the dispatch pipeline.
type Notifier struct {
	slackURL   string
	discordURL string
	client     *http.Client
}

// NewNotifier creates a notifier for the configured webhook URLs.
func NewNotifier(slackURL, discordURL string) *Notifier {
	return &Notifier{
		slackURL:   slackURL,
		discordURL: discordURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// NotifyRun sends the run's terminal state to all configured webhooks.
func (n *Notifier) NotifyRun(run *journal.Run) {
	if n.slackURL != "" {
		if err := n.sendSlack(run); err != nil {
			log.WithTask(run.TaskID).Warnf("slack notification failed: %v", err)
		}
	}
	if n.discordURL != "" {
		if err := n.sendDiscord(run); err != nil {
			log.WithTask(run.TaskID).Warnf("discord notification failed: %v", err)
		}
	}
}

func runDuration(run *journal.Run) string {
	if run.EndedAt == nil {
		return "running"
	}
	return run.EndedAt.Sub(run.StartedAt).Round(time.Second).String()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "\n... (truncated)"
}

// slackPayload is a minimal Block Kit message with a colored attachment.
type slackPayload struct {
	Attachments []slackAttachment `json:"attachments"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type   string      `json:"type"`
	Text   *slackText  `json:"text,omitempty"`
	Fields []slackText `json:"fields,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (n *Notifier) sendSlack(run *journal.Run) error {
	color, emoji := "#FFFF00", ":hourglass:"
	switch run.Status {
	case journal.RunStatusDone:
		color, emoji = "#00FF00", ":white_check_mark:"
	case journal.RunStatusFailed:
		color, emoji = "#FF0000", ":x:"
	case journal.RunStatusNeedsHuman:
		color, emoji = "#FFA500", ":raising_hand:"
	}

	blocks := []slackBlock{
		{
			Type: "section",
			Text: &slackText{Type: "mrkdwn", Text: fmt.Sprintf("%s *%s*", emoji, run.Title)},
		},
		{
			Type: "section",
			Fields: []slackText{
				{Type: "mrkdwn", Text: fmt.Sprintf("*Status:*\n%s", run.Status)},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Duration:*\n%s", runDuration(run))},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Backend:*\n%s (%s)", run.Backend, run.Model)},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Worktree:*\n`%s`", run.Worktree)},
			},
		},
	}
	if run.Error != "" {
		blocks = append(blocks, slackBlock{
			Type: "section",
			Text: &slackText{Type: "mrkdwn", Text: fmt.Sprintf(":warning: ```%s```", truncate(run.Error, 500))},
		})
	}

	return n.post(n.slackURL, slackPayload{
		Attachments: []slackAttachment{{Color: color, Blocks: blocks}},
	})
}

// discordPayload is a single-embed Discord webhook message.
type discordPayload struct {
	Embeds []discordEmbed `json:"embeds"`
}

type discordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Color       int            `json:"color"`
	Fields      []discordField `json:"fields,omitempty"`
	Timestamp   string         `json:"timestamp,omitempty"`
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

func (n *Notifier) sendDiscord(run *journal.Run) error {
	color := 0xFFFF00
	switch run.Status {
	case journal.RunStatusDone:
		color = 0x00FF00
	case journal.RunStatusFailed:
		color = 0xFF0000
	case journal.RunStatusNeedsHuman:
		color = 0xFFA500
	}

	description := truncate(run.Output, 3500)
	if description == "" {
		description = "*No output*"
	}

	embed := discordEmbed{
		Title:       fmt.Sprintf("Task: %s", run.Title),
		Description: description,
		Color:       color,
		Fields: []discordField{
			{Name: "Status", Value: string(run.Status), Inline: true},
			{Name: "Duration", Value: runDuration(run), Inline: true},
			{Name: "Backend", Value: fmt.Sprintf("%s (%s)", run.Backend, run.Model), Inline: true},
		},
		Timestamp: run.StartedAt.Format(time.RFC3339),
	}
	if run.Error != "" {
		embed.Fields = append(embed.Fields, discordField{
			Name:  "Error",
			Value: fmt.Sprintf("```\n%s\n```", truncate(run.Error, 500)),
		})
	}

	return n.post(n.discordURL, discordPayload{Embeds: []discordEmbed{embed}})
}

func (n *Notifier) post(webhookURL string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequest("POST", webhookURL, bytes.NewBuffer(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
