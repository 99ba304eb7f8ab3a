package classify

import (
	"context"
	"errors"
	"fmt"
	"log"

	"docstyler/internal/domain"
	"docstyler/internal/integrations/llm"
)

var (
	// ErrBatchFailed wraps every reason a single classification call produced nothing usable.
	ErrBatchFailed = errors.New("batch classification failed")
	// ErrUnrecoverable means the model answered but no element survived the recovery chain.
	ErrUnrecoverable = errors.New("model output could not be recovered")
)

// Outcome is what one classification call yields. Usage is filled in even when
// the call fails after the provider answered.
type Outcome struct {
	Patches  []Patch
	Usage    domain.Usage
	Recovery string
}

// Client turns a batch of records into patches with one model call.
type Client struct {
	transport llm.Transport
	styles    *domain.StyleSet
	vocab     *Vocabulary
	settings  Settings

	systemPrompt       string
	rescueSystemPrompt string
}

func NewClient(transport llm.Transport, styles *domain.StyleSet, settings Settings) *Client {
	return &Client{
		transport:          transport,
		styles:             styles,
		vocab:              NewVocabulary(styles),
		settings:           settings.withDefaults(),
		systemPrompt:       buildSystemPrompt(styles),
		rescueSystemPrompt: buildRescueSystemPrompt(styles),
	}
}

func (c *Client) Vocabulary() *Vocabulary {
	return c.vocab
}

// Classify sends one batch and returns a patch for every record in it. Any
// failure is returned as an error wrapping ErrBatchFailed.
func (c *Client) Classify(ctx context.Context, batch []domain.Paragraph) (Outcome, error) {
	req := llm.Request{
		Model: c.settings.Model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: c.systemPrompt},
			{Role: llm.RoleUser, Content: buildUserPrompt(batch)},
		},
		Temperature:     c.settings.Temperature,
		MaxOutputTokens: c.settings.MaxOutputTokens,
	}
	log.Printf("classify batch model=%s records=%d first=%d", c.settings.Model, len(batch), firstIndex(batch))
	return c.call(ctx, req, batch)
}

// Rescue classifies records that an earlier pass left unmarked, showing the
// model each record's neighbors.
func (c *Client) Rescue(ctx context.Context, batch []domain.Paragraph, lookup neighborLookup) (Outcome, error) {
	req := llm.Request{
		Model: c.settings.Model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: c.rescueSystemPrompt},
			{Role: llm.RoleUser, Content: buildRescueUserPrompt(batch, lookup)},
		},
		Temperature:     c.settings.RescueTemperature,
		MaxOutputTokens: c.settings.RescueMaxOutputTokens,
	}
	log.Printf("classify rescue model=%s records=%d first=%d", c.settings.Model, len(batch), firstIndex(batch))
	return c.call(ctx, req, batch)
}

func (c *Client) call(ctx context.Context, req llm.Request, batch []domain.Paragraph) (out Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = Outcome{Usage: out.Usage}, fmt.Errorf("%w: panic: %v", ErrBatchFailed, r)
		}
	}()

	callCtx, cancel := context.WithTimeout(ctx, c.settings.Timeout)
	defer cancel()

	resp, err := c.transport.Complete(callCtx, req)
	if err != nil {
		log.Printf("classify transport error records=%d err=%v", len(batch), err)
		return Outcome{}, fmt.Errorf("%w: %w", ErrBatchFailed, err)
	}
	out.Usage = resp.Usage

	entries, stage, err := decodeResponse(resp.Content)
	if err != nil {
		log.Printf("classify decode error records=%d err=%v", len(batch), err)
		return out, fmt.Errorf("%w: %w", ErrBatchFailed, err)
	}
	out.Patches = Merge(batch, entries, c.vocab)
	out.Recovery = string(stage)
	return out, nil
}

func firstIndex(batch []domain.Paragraph) int {
	if len(batch) == 0 {
		return -1
	}
	return batch[0].Index
}
