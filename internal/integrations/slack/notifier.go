package slackbot

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"docstyler/internal/httpx"
	"docstyler/internal/processor"

	"github.com/slack-go/slack"
)

// Notifier posts run outcomes to a Slack channel.
type Notifier struct {
	api       *slack.Client
	channelID string
}

func NewNotifier(token, channelID string, options ...slack.Option) *Notifier {
	options = append([]slack.Option{slack.OptionHTTPClient(httpx.ExternalHTTPClient())}, options...)
	return &Notifier{api: slack.New(token, options...), channelID: channelID}
}

// NotifySuccess posts the run summary and uploads the archive. A failed
// upload still leaves the summary in the channel.
func (n *Notifier) NotifySuccess(result *processor.Result) error {
	if _, _, err := n.api.PostMessage(n.channelID, slack.MsgOptionText(FormatSummary(result), false)); err != nil {
		return fmt.Errorf("post summary: %w", err)
	}
	if result.ArchivePath == "" {
		return nil
	}
	fi, err := os.Stat(result.ArchivePath)
	if err != nil {
		return fmt.Errorf("stat archive: %w", err)
	}
	_, err = n.api.UploadFileV2(slack.UploadFileV2Parameters{
		File:           result.ArchivePath,
		FileSize:       int(fi.Size()),
		Filename:       filepath.Base(result.ArchivePath),
		Channel:        n.channelID,
		Title:          fmt.Sprintf("%s (estilizado)", result.BookName),
		InitialComment: fmt.Sprintf("Arquivos gerados para *%s*", result.BookName),
	})
	if err != nil {
		return fmt.Errorf("upload archive: %w", err)
	}
	log.Printf("slack notified run=%s channel=%s archive=%s", result.RunID, n.channelID, filepath.Base(result.ArchivePath))
	return nil
}

func (n *Notifier) NotifyFailure(path string, err error) error {
	if _, _, postErr := n.api.PostMessage(n.channelID, slack.MsgOptionText(FormatFailure(path, err), false)); postErr != nil {
		return fmt.Errorf("post failure: %w", postErr)
	}
	return nil
}

func FormatSummary(r *processor.Result) string {
	s := r.Stats
	var b strings.Builder
	fmt.Fprintf(&b, ":white_check_mark: *%s* processado em %s\n", r.BookName, processor.FormatElapsed(r.Duration))
	ratio := 0.0
	if s.Total > 0 {
		ratio = float64(s.Marked) / float64(s.Total) * 100
	}
	fmt.Fprintf(&b, "• Elementos: %d (marcados %d, sem marcação %d, %.1f%%)\n", s.Total, s.Marked, s.Unmarked, ratio)
	fmt.Fprintf(&b, "• Chamadas à API: %d (segunda passada %d, lotes com falha %d)\n", s.APICalls, s.RescueCalls, s.FailedBatches)
	fmt.Fprintf(&b, "• Tokens: %s\n", formatTokenCount(s.Usage.TotalTokens()))
	if len(r.Applied.ByStyle) > 0 {
		names := make([]string, 0, len(r.Applied.ByStyle))
		for name := range r.Applied.ByStyle {
			names = append(names, name)
		}
		sort.Strings(names)
		parts := make([]string, 0, len(names))
		for _, name := range names {
			parts = append(parts, fmt.Sprintf("%s %d", name, r.Applied.ByStyle[name]))
		}
		fmt.Fprintf(&b, "• Estilos: %s\n", strings.Join(parts, ", "))
	}
	if len(r.Removals) > 0 {
		fmt.Fprintf(&b, "• Trechos removidos: %d\n", len(r.Removals))
	}
	return strings.TrimRight(b.String(), "\n")
}

func FormatFailure(path string, err error) string {
	msg := fmt.Sprintf(":x: Falha ao processar *%s* na etapa `%s`: %v", filepath.Base(path), processor.StageOf(err), err)
	if suggestion := processor.Suggest(err); suggestion != "" {
		msg += "\n" + suggestion
	}
	return msg
}

func formatTokenCount(tokens int64) string {
	if tokens < 1000 {
		return fmt.Sprintf("%d", tokens)
	}
	rounded := (tokens + 50) / 100
	whole := rounded / 10
	decimal := rounded % 10
	if decimal == 0 {
		return fmt.Sprintf("%dk", whole)
	}
	return fmt.Sprintf("%d.%dk", whole, decimal)
}
