package openai

import (
	"bufio"
	"context"
	"encoding/json"
	"strings"

	"github.com/mosarlab/graphrag/internal/core/ports"
)

type chatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Stream runs a streaming chat completion. Delta text arrives on the
// returned channel, which closes at end of stream or on the first
// transport error; cancelling ctx stops delivery. Stream setup is not
// retried: replaying a partially delivered answer would duplicate text.
func (c *Client) Stream(ctx context.Context, system, user string, opts ports.CompletionOptions) (<-chan string, error) {
	request := chatRequest{
		Model:       c.chatModel,
		Messages:    buildMessages(system, user),
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Stream:      true,
	}

	resp, err := c.postRaw(ctx, "/v1/chat/completions", request, "chat stream")
	if err != nil {
		return nil, wrapTemporaryIfNeeded("chat stream", err)
	}

	chunks := make(chan string)
	go func() {
		defer close(chunks)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "" || payload == "[DONE]" {
				if payload == "[DONE]" {
					return
				}
				continue
			}

			var chunk chatStreamChunk
			if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
				c.logger.Warn("skipping malformed stream chunk", "error", err)
				continue
			}
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
				continue
			}

			select {
			case chunks <- chunk.Choices[0].Delta.Content:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			c.logger.Error("chat stream aborted", "error", err)
		}
	}()
	return chunks, nil
}
