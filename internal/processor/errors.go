package processor

import (
	"context"
	"errors"
	"fmt"

	"docstyler/internal/classify"
	"docstyler/internal/docx"
	"docstyler/internal/integrations/llm"
)

const (
	StageReading      = "reading"
	StageAIProcessing = "ai_processing"
	StageStyling      = "styling"
	StageRemoval      = "removal"
	StageSaving       = "saving"
	StagePackaging    = "packaging"
	StageUnknown      = "unknown"
)

var (
	ErrUnsupportedFile = errors.New("only .docx files are supported")
	ErrFileTooLarge    = errors.New("file exceeds the maximum size")
	ErrEmptyDocument   = errors.New("document has no paragraphs")
	ErrNoStyles        = errors.New("no styles to detect")
)

// StageError tells the user where processing stopped and what to try next.
type StageError struct {
	Stage      string
	Suggestion string
	Err        error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageError(stage string, err error) *StageError {
	return &StageError{Stage: stage, Suggestion: Suggest(err), Err: err}
}

// StageOf returns the stage recorded in err, or StageUnknown.
func StageOf(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return StageUnknown
}

// Suggest maps a processing error to a remedy the user can act on. The
// transport cause takes precedence over ErrNoMarkers, which usually only
// reports its consequence.
func Suggest(err error) string {
	var statusErr *llm.StatusError
	switch {
	case errors.As(err, &statusErr) && statusErr.Unauthorized():
		return "Verifique se a API Key está correta e tem créditos disponíveis."
	case errors.As(err, &statusErr) && statusErr.RateLimited():
		return "Limite de requisições atingido. Aguarde alguns minutos e tente novamente."
	case errors.Is(err, context.DeadlineExceeded):
		return "Tempo limite excedido. Tente com um documento menor ou verifique sua conexão."
	case errors.Is(err, context.Canceled):
		return "Processamento cancelado."
	case errors.Is(err, classify.ErrNoMarkers):
		return "Verifique se os prompts de identificação estão corretos para o tipo de documento."
	case errors.Is(err, ErrFileTooLarge):
		return "Documento muito grande. Tente processar em partes menores."
	case errors.Is(err, ErrUnsupportedFile), errors.Is(err, docx.ErrNotDocx), errors.Is(err, docx.ErrMalformed):
		return "Verifique se o arquivo .docx é válido e não está corrompido."
	case errors.Is(err, ErrEmptyDocument):
		return "O documento não tem parágrafos para classificar."
	case errors.Is(err, ErrNoStyles):
		return "Defina ao menos um estilo no arquivo de estilos."
	default:
		return "Verifique os logs detalhados e tente novamente."
	}
}
