// Package assistant wraps the conversational-AI provider's Assistants API:
// one thread per conversation, one run per reply, polled to completion.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	maxPollAttempts = 30
	pollInterval    = time.Second
)

var (
	// ErrNotConfigured means the API key or assistant id is missing.
	ErrNotConfigured = errors.New("assistant credentials are not configured")
	// ErrEmptyResponse means the run completed but produced no text.
	ErrEmptyResponse = errors.New("assistant returned an empty response")
)

// Responder is what the chat and devotional handlers depend on; tests stub
// it instead of the real API.
type Responder interface {
	Configured() bool
	Converse(ctx context.Context, threadID, prompt string) (reply string, resolvedThreadID string, err error)
}

type Client struct {
	api         openai.Client
	assistantID string
	configured  bool
}

func New(apiKey, assistantID string) *Client {
	return &Client{
		api:         openai.NewClient(option.WithAPIKey(apiKey)),
		assistantID: assistantID,
		configured:  apiKey != "" && assistantID != "",
	}
}

func (c *Client) Configured() bool {
	return c.configured
}

// Converse appends the prompt to the thread (creating one when threadID is
// empty), runs the assistant and returns its latest text reply. The run is
// polled at a fixed interval up to a fixed attempt count, so a hung run
// surfaces as an error after roughly thirty seconds.
func (c *Client) Converse(ctx context.Context, threadID, prompt string) (string, string, error) {
	if !c.configured {
		return "", "", ErrNotConfigured
	}

	if threadID == "" {
		thread, err := c.api.Beta.Threads.New(ctx, openai.BetaThreadNewParams{})
		if err != nil {
			return "", "", fmt.Errorf("creating thread: %w", err)
		}
		threadID = thread.ID
	}

	_, err := c.api.Beta.Threads.Messages.New(ctx, threadID, openai.BetaThreadMessageNewParams{
		Role: openai.BetaThreadMessageNewParamsRoleUser,
		Content: openai.BetaThreadMessageNewParamsContentUnion{
			OfString: openai.String(prompt),
		},
	})
	if err != nil {
		return "", threadID, fmt.Errorf("appending message: %w", err)
	}

	run, err := c.api.Beta.Threads.Runs.New(ctx, threadID, openai.BetaThreadRunNewParams{
		AssistantID: c.assistantID,
	})
	if err != nil {
		return "", threadID, fmt.Errorf("creating run: %w", err)
	}

	attempts := 0
	for (run.Status == openai.RunStatusQueued || run.Status == openai.RunStatusInProgress) && attempts < maxPollAttempts {
		select {
		case <-ctx.Done():
			return "", threadID, ctx.Err()
		case <-time.After(pollInterval):
		}

		run, err = c.api.Beta.Threads.Runs.Get(ctx, threadID, run.ID)
		if err != nil {
			return "", threadID, fmt.Errorf("polling run: %w", err)
		}
		attempts++
	}

	if run.Status != openai.RunStatusCompleted {
		return "", threadID, fmt.Errorf("assistant run failed with status %s", run.Status)
	}

	messages, err := c.api.Beta.Threads.Messages.List(ctx, threadID, openai.BetaThreadMessageListParams{
		Limit: openai.Int(5),
		Order: openai.BetaThreadMessageListParamsOrderDesc,
	})
	if err != nil {
		return "", threadID, fmt.Errorf("listing messages: %w", err)
	}

	for _, message := range messages.Data {
		if message.Role != openai.MessageRoleAssistant {
			continue
		}
		reply := joinTextBlocks(message.Content)
		if reply == "" {
			return "", threadID, ErrEmptyResponse
		}
		return reply, threadID, nil
	}

	return "", threadID, ErrEmptyResponse
}

func joinTextBlocks(blocks []openai.MessageContentUnion) string {
	var parts []string
	for _, block := range blocks {
		if block.Type == "text" && block.Text.Value != "" {
			parts = append(parts, block.Text.Value)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}
