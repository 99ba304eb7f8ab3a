package classify

import (
	"fmt"
	"strings"

	"docstyler/internal/domain"
)

const (
	rescueCurrentLimit  = 200
	rescueNeighborLimit = 100
	noMarkerLabel       = "SEM MARCAÇÃO"
	documentStartLabel  = "INÍCIO DO DOCUMENTO"
	documentEndLabel    = "FIM DO DOCUMENTO"
)

func buildSystemPrompt(set *domain.StyleSet) string {
	var b strings.Builder
	b.WriteString(`Você é um especialista em análise de documentos educacionais.
Sua tarefa é identificar e marcar estilos em TODOS os parágrafos do documento.

REGRA FUNDAMENTAL: analise e marque TODOS os parágrafos listados.
Não pule nenhum parágrafo. Se um parágrafo corresponde a algum estilo, marque-o.

REGRAS:
1. Se um parágrafo contém questão e alternativas juntas, marque como questão/enunciado
2. Alternativas começam com letras (A, B, C, D, E) seguidas de ) ou .
3. Um parágrafo só pode ter UM tipo de marcação
4. Se identificou um padrão, continue aplicando em todos os casos similares
5. Em caso de dúvida, marque com o estilo mais provável

ESTILOS A IDENTIFICAR:
`)
	for _, st := range set.Styles {
		fmt.Fprintf(&b, "\n- %s: %s\n  Marcador a usar: %s\n", st.Name, st.Prompt, st.Marker)
	}

	if len(set.Removals) > 0 {
		b.WriteString("\nCONTEÚDO PARA MARCAR REMOÇÃO:\n")
		b.WriteString("Só marque para remoção conteúdo que NÃO tem nenhum estilo aplicado.\n")
		b.WriteString("Se um parágrafo já tem um marcador de estilo, não adicione marcadores de remoção.\n")
		for _, r := range set.Removals {
			fmt.Fprintf(&b, "\n- %s: %s\n  Marcadores: %s (início) e %s (fim)\n", r.Name, r.Prompt, r.StartMarker, r.EndMarker)
		}
	}

	b.WriteString(`
FORMATO DE RESPOSTA OBRIGATÓRIO:
Retorne APENAS um objeto JSON válido e completo, sem truncar, exatamente neste formato:
{"paragraphs": [{"index": 0, "markers": ["[[MARCADOR]]"]}, {"index": 1, "markers": []}]}

- Use SEMPRE marcadores com colchetes DUPLOS: [[MARCADOR]]
- Não use colchetes simples: [MARCADOR]
- Cada parágrafo pode ter no máximo um marcador
- Se não tiver certeza, deixe sem marcação: "markers": []
- Use os marcadores exatamente como definidos acima
`)
	return b.String()
}

func buildUserPrompt(batch []domain.Paragraph) string {
	var b strings.Builder
	b.WriteString("Analise os seguintes parágrafos e retorne as marcações em formato JSON:\n\n")
	for _, p := range batch {
		fmt.Fprintf(&b, "Parágrafo %d:\n%s\n\n", p.Index, strings.TrimSpace(p.Text))
	}
	b.WriteString("\nRetorne o JSON COMPLETO para TODOS os parágrafos listados.")
	return b.String()
}

func buildRescueSystemPrompt(set *domain.StyleSet) string {
	var b strings.Builder
	b.WriteString(`Você DEVE marcar TODOS os parágrafos abaixo. Analise cuidadosamente cada um.

Use o CONTEXTO dos parágrafos anterior e posterior para decidir. Por exemplo:
- Entre uma questão e outra questão, o meio provavelmente são alternativas
- Entre duas alternativas, provavelmente é outra alternativa
- Depois de um título, texto comum provavelmente é o conteúdo principal

TODO parágrafo deve receber uma marcação se corresponder a algum estilo.

ESTILOS DISPONÍVEIS:
`)
	for _, st := range set.Styles {
		fmt.Fprintf(&b, "\n- %s: %s\n  Marcador: %s\n", st.Name, st.Prompt, st.Marker)
	}
	b.WriteString(`
Retorne APENAS JSON no formato:
{"paragraphs": [{"index": 0, "markers": ["[[MARCADOR]]"]}]}
`)
	return b.String()
}

// neighborLookup returns the record with the given index as currently known,
// including markers assigned earlier in the same pass.
type neighborLookup func(index int) (domain.Paragraph, bool)

func buildRescueUserPrompt(batch []domain.Paragraph, lookup neighborLookup) string {
	var b strings.Builder
	b.WriteString("ATENÇÃO: estes parágrafos não foram marcados. Eles aparecem com CONTEXTO:\n\n")
	for _, p := range batch {
		prev, next := documentStartLabel, documentEndLabel
		if n, ok := lookup(p.Index - 1); ok {
			prev = describeNeighbor(n)
		}
		if n, ok := lookup(p.Index + 1); ok {
			next = describeNeighbor(n)
		}
		fmt.Fprintf(&b, "\n--- CONTEXTO DO PARÁGRAFO %d ---\n", p.Index)
		fmt.Fprintf(&b, "ANTERIOR: %s\n", prev)
		fmt.Fprintf(&b, ">>> ATUAL [NÃO MARCADO]: %s\n", truncateRunes(strings.TrimSpace(p.Text), rescueCurrentLimit))
		fmt.Fprintf(&b, "PRÓXIMO: %s\n", next)
	}
	b.WriteString("\nCom base no CONTEXTO, marque cada parágrafo apropriadamente.")
	return b.String()
}

func describeNeighbor(p domain.Paragraph) string {
	marker := noMarkerLabel
	if len(p.Markers) > 0 {
		marker = p.Markers[0]
	}
	return fmt.Sprintf("%s [Marcado como: %s]", truncateRunes(p.Text, rescueNeighborLimit), marker)
}

// truncateRunes cuts s to at most n characters without splitting a UTF-8 sequence.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
