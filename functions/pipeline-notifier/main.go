// Pipeline notifier: posts a Discord embed whenever the delivery pipeline's
// execution state changes. Invoked asynchronously from an EventBridge rule,
// so a delivery failure here is logged and never affects the pipeline run
// it reports on.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
)

const (
	envWebhookURL   = "DISCORD_WEBHOOKS_URL"
	envPipelineName = "PIPELINE_NAME"

	// Webhook URLs prefixed with this are resolved from Secrets Manager at
	// cold start, so the URL need not sit in plaintext environment config.
	secretRefPrefix = "secretsmanager:"

	defaultColor = 0x95A5A6
)

// stateColors maps pipeline execution states to embed colors.
var stateColors = map[string]int{
	"SUCCEEDED": 0x2ECC71,
	"FAILED":    0xE74C3C,
	"STARTED":   0x3498DB,
	"STOPPING":  0xF39C12,
}

// stateChangeEvent is the EventBridge "CodePipeline Pipeline Execution
// State Change" detail shape, reduced to the fields the embed uses.
type stateChangeEvent struct {
	Time   string `json:"time"`
	Region string `json:"region"`
	Detail struct {
		Pipeline         string `json:"pipeline"`
		State            string `json:"state"`
		ExecutionTrigger struct {
			AuthorDisplayName string `json:"author-display-name"`
			AuthorID          string `json:"author-id"`
			CommitID          string `json:"commit-id"`
			CommitMessage     string `json:"commit-message"`
		} `json:"execution-trigger"`
	} `json:"detail"`
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Color       int          `json:"color"`
	Fields      []embedField `json:"fields"`
	Timestamp   string       `json:"timestamp,omitempty"`
}

type webhookPayload struct {
	Username string  `json:"username"`
	Content  string  `json:"content"`
	Embeds   []embed `json:"embeds"`
}

type notifier struct {
	webhookURL   string
	pipelineName string
	client       *http.Client
	log          *slog.Logger
}

// pipelineConsoleURL links the embed back to the pipeline's console page.
func pipelineConsoleURL(pipelineName, region string) string {
	return fmt.Sprintf("https://%s.console.aws.amazon.com/codesuite/codepipeline/pipelines/%s/view?region=%s", region, pipelineName, region)
}

// buildPayload shapes the Discord message for one state transition. Only
// the transition is reported, never error detail.
func buildPayload(event stateChangeEvent, pipelineName string) webhookPayload {
	state := event.Detail.State
	color, ok := stateColors[state]
	if !ok {
		color = defaultColor
	}

	trigger := event.Detail.ExecutionTrigger
	author := trigger.AuthorDisplayName
	if author == "" {
		author = trigger.AuthorID
	}
	if author == "" {
		author = "Unknown"
	}
	commitID := trigger.CommitID
	if commitID == "" {
		commitID = "N/A"
	}
	commitMessage := trigger.CommitMessage
	if commitMessage == "" {
		commitMessage = "N/A"
	}

	region := event.Region
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}

	return webhookPayload{
		Username: "AWS Pipelines",
		Content:  fmt.Sprintf("Pipeline **%s** status changed to **%s**", pipelineName, state),
		Embeds: []embed{
			{
				Title:       pipelineName,
				Description: fmt.Sprintf("State: **%s**", state),
				Color:       color,
				Fields: []embedField{
					{Name: "Author", Value: author, Inline: true},
					{Name: "Commit ID", Value: commitID, Inline: true},
					{Name: "Commit Message", Value: commitMessage, Inline: false},
					{Name: "Pipeline Link", Value: fmt.Sprintf("[View Pipeline](%s)", pipelineConsoleURL(pipelineName, region)), Inline: false},
				},
				Timestamp: event.Time,
			},
		},
	}
}

func (n *notifier) handle(ctx context.Context, event stateChangeEvent) error {
	if event.Detail.State == "" {
		n.log.Error("missing state in event detail")
		return fmt.Errorf("missing state in event detail")
	}

	payload := buildPayload(event, n.pipelineName)
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.log.Error("webhook delivery failed", slog.Any("error", err))
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		n.log.Error("webhook rejected", slog.Int("status", resp.StatusCode))
		return fmt.Errorf("webhook rejected with status %d", resp.StatusCode)
	}

	n.log.Info("sent webhook",
		slog.String("pipeline", n.pipelineName),
		slog.String("state", event.Detail.State),
	)
	return nil
}

// resolveWebhookURL returns the literal URL or, for secretsmanager:
// references, the secret's current value.
func resolveWebhookURL(raw string) (string, error) {
	if !strings.HasPrefix(raw, secretRefPrefix) {
		return raw, nil
	}
	secretID := strings.TrimPrefix(raw, secretRefPrefix)

	sess, err := session.NewSession()
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	out, err := secretsmanager.New(sess).GetSecretValue(&secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		return "", fmt.Errorf("resolve webhook secret %s: %w", secretID, err)
	}
	return aws.StringValue(out.SecretString), nil
}

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	rawURL := os.Getenv(envWebhookURL)
	pipelineName := os.Getenv(envPipelineName)
	if rawURL == "" || pipelineName == "" {
		log.Error("missing environment variables",
			slog.String("pipeline_name", pipelineName),
		)
		os.Exit(1)
	}

	webhookURL, err := resolveWebhookURL(rawURL)
	if err != nil {
		log.Error("resolving webhook url", slog.Any("error", err))
		os.Exit(1)
	}

	n := &notifier{
		webhookURL:   webhookURL,
		pipelineName: pipelineName,
		client:       &http.Client{Timeout: 5 * time.Second},
		log:          log,
	}
	lambda.Start(n.handle)
}
