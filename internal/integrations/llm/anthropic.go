package llm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Anthropic adapts the Messages API to Transport. System messages are lifted
// into the request's system blocks.
type Anthropic struct {
	client anthropic.Client
}

func NewAnthropic(apiKey string) *Anthropic {
	return &Anthropic{
		client: anthropic.NewClient(
			option.WithAPIKey(apiKey),
			option.WithHTTPClient(externalHTTPClient),
			// Retries belong to the batch scheduler.
			option.WithMaxRetries(0),
		),
	}
}

func (a *Anthropic) Complete(ctx context.Context, req Request) (Response, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(req.Model),
		MaxTokens:   int64(req.MaxOutputTokens),
		Temperature: anthropic.Float(req.Temperature),
	}
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			params.System = append(params.System, anthropic.TextBlockParam{
				Text:         m.Content,
				CacheControl: anthropic.NewCacheControlEphemeralParam(),
			})
		case RoleAssistant:
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	message, err := a.client.Messages.New(ctx, params)
	if err != nil {
		log.Printf("llm anthropic error: %v", err)
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return Response{}, &StatusError{Provider: "Anthropic", StatusCode: apiErr.StatusCode, Body: apiErr.Error()}
		}
		return Response{}, fmt.Errorf("Anthropic API error: %w", err)
	}
	usage := Usage{
		InputTokens:              message.Usage.InputTokens,
		OutputTokens:             message.Usage.OutputTokens,
		CacheCreationInputTokens: message.Usage.CacheCreationInputTokens,
		CacheReadInputTokens:     message.Usage.CacheReadInputTokens,
	}

	var text strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return Response{Usage: usage}, fmt.Errorf("no text content in Anthropic response: %w", ErrEmptyResponse)
	}
	log.Printf("llm anthropic response size=%d tokens_in=%d tokens_out=%d cache_create=%d cache_read=%d stop=%s", text.Len(), usage.InputTokens, usage.OutputTokens, usage.CacheCreationInputTokens, usage.CacheReadInputTokens, message.StopReason)
	return Response{Content: text.String(), Usage: usage}, nil
}
