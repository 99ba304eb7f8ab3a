package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"docstyler/internal/domain"
	"docstyler/internal/integrations/llm"
)

var (
	batchIndexPattern  = regexp.MustCompile(`Parágrafo (\d+):`)
	rescueIndexPattern = regexp.MustCompile(`CONTEXTO DO PARÁGRAFO (\d+) ---`)
)

func testStyleSet() *domain.StyleSet {
	return &domain.StyleSet{
		Styles: []domain.StyleDefinition{
			{Name: "Questão", Marker: "[[QUESTAO]]", Prompt: "enunciado numerado", WordStyle: "Questao"},
			{Name: "Alternativa", Marker: "[[ALTERNATIVA]]", Prompt: "A) B) C)", WordStyle: "Alternativa"},
			{Name: "Marcador", Marker: "[[MARCADOR]]", Prompt: "marcador genérico", WordStyle: "Marcador"},
		},
		Removals: []domain.RemovalDefinition{
			{Name: "Comentário", Prompt: "comentários", StartMarker: "[[REMOVER_INICIO]]", EndMarker: "[[REMOVER_FIM]]"},
		},
	}
}

func makeParagraphs(n int) []domain.Paragraph {
	out := make([]domain.Paragraph, n)
	for i := range out {
		out[i] = domain.Paragraph{Index: i, Kind: domain.KindParagraph, Text: fmt.Sprintf("texto do parágrafo %d", i)}
	}
	return out
}

func testSettings() Settings {
	return Settings{Model: "test-model", RetryPause: -1, BatchPause: -1}
}

// scriptedTransport answers each call with the function registered for the
// call's ordinal, falling back to def. It records requests.
type scriptedTransport struct {
	mu       sync.Mutex
	calls    []llm.Request
	byCall   map[int]func(indices []int) (string, error)
	fallback func(indices []int) (string, error)
}

func (s *scriptedTransport) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	s.mu.Lock()
	n := len(s.calls)
	s.calls = append(s.calls, req)
	fn := s.byCall[n]
	s.mu.Unlock()
	if fn == nil {
		fn = s.fallback
	}
	content, err := fn(promptIndices(req))
	if err != nil {
		return llm.Response{}, err
	}
	return llm.Response{Content: content, Usage: llm.Usage{InputTokens: 10, OutputTokens: 2}}, nil
}

func (s *scriptedTransport) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func userPrompt(req llm.Request) string {
	for _, m := range req.Messages {
		if m.Role == llm.RoleUser {
			return m.Content
		}
	}
	return ""
}

func promptIndices(req llm.Request) []int {
	prompt := userPrompt(req)
	pattern := batchIndexPattern
	if strings.Contains(prompt, "CONTEXTO DO PARÁGRAFO") {
		pattern = rescueIndexPattern
	}
	var out []int
	for _, m := range pattern.FindAllStringSubmatch(prompt, -1) {
		n, _ := strconv.Atoi(m[1])
		out = append(out, n)
	}
	return out
}

// answer builds a well-formed response assigning marker to every index.
func answer(marker string) func(indices []int) (string, error) {
	return func(indices []int) (string, error) {
		type item struct {
			Index   int      `json:"index"`
			Markers []string `json:"markers"`
		}
		items := make([]item, 0, len(indices))
		for _, idx := range indices {
			markers := []string{}
			if marker != "" {
				markers = append(markers, marker)
			}
			items = append(items, item{Index: idx, Markers: markers})
		}
		data, err := json.Marshal(map[string]any{"paragraphs": items})
		return string(data), err
	}
}

func failWith(err error) func(indices []int) (string, error) {
	return func([]int) (string, error) { return "", err }
}

type pauseRecorder struct {
	pauses []time.Duration
}

func (p *pauseRecorder) sleep(ctx context.Context, d time.Duration) error {
	p.pauses = append(p.pauses, d)
	return ctx.Err()
}
