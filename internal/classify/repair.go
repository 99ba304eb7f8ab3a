package classify

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
)

// recovery names the stage of the decode chain that produced a result.
type recovery string

const (
	recoveryStrict   recovery = "strict"
	recoveryRepaired recovery = "repaired"
	recoverySalvaged recovery = "salvaged"
)

type response struct {
	Paragraphs []json.RawMessage `json:"paragraphs"`
}

// decodeResponse runs the recovery chain over raw model output:
// extract the object span, parse strictly, repair truncation, salvage elements.
func decodeResponse(text string) ([]entry, recovery, error) {
	span, ok := extractObject(text)
	if !ok {
		return nil, "", fmt.Errorf("%w: no JSON object in response", ErrUnrecoverable)
	}

	if entries, err := parseEntries(span); err == nil {
		return entries, recoveryStrict, nil
	}

	repaired := repairTruncated(span)
	if entries, err := parseEntries(repaired); err == nil {
		log.Printf("classify repaired truncated response size=%d", len(text))
		return entries, recoveryRepaired, nil
	}

	entries := salvageParagraphs(text)
	if len(entries) == 0 {
		return nil, "", fmt.Errorf("%w: response size=%d head=%q", ErrUnrecoverable, len(text), head(text, 120))
	}
	log.Printf("classify salvaged elements=%d from response size=%d", len(entries), len(text))
	return entries, recoverySalvaged, nil
}

func parseEntries(s string) ([]entry, error) {
	var resp response
	if err := json.Unmarshal([]byte(s), &resp); err != nil {
		return nil, err
	}
	if resp.Paragraphs == nil {
		return nil, errors.New(`response has no "paragraphs" array`)
	}
	entries := make([]entry, 0, len(resp.Paragraphs))
	for _, el := range resp.Paragraphs {
		e, err := decodeEntry(el)
		if err != nil {
			log.Printf("classify skipped element err=%v", err)
			continue
		}
		entries = append(entries, e)
	}
	if len(resp.Paragraphs) > 0 && len(entries) == 0 {
		return nil, errors.New("no element carries a valid index")
	}
	return entries, nil
}

// extractObject returns the span from the first '{' to its matching '}'. When
// the object never closes the span runs to the end of the text.
func extractObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return text[start:], true
}

type frame struct {
	closer byte
	// object frames only: true once a key's colon was seen and its value is pending
	afterColon bool
}

// repairTruncated completes a JSON text cut off mid-stream. It closes an open
// string, drops a dangling comma, fills a dangling key or colon with null and
// appends the missing closers in reverse nesting order. Closers that appear in
// strings are not counted.
func repairTruncated(s string) string {
	s = strings.TrimRight(s, " \t\r\n")
	var stack []frame
	inString, escaped, keyString := false, false, false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
			keyString = len(stack) > 0 && stack[len(stack)-1].closer == '}' && !stack[len(stack)-1].afterColon
		case '{':
			stack = append(stack, frame{closer: '}'})
		case '[':
			stack = append(stack, frame{closer: ']'})
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case ':':
			if len(stack) > 0 {
				stack[len(stack)-1].afterColon = true
			}
		case ',':
			if len(stack) > 0 {
				stack[len(stack)-1].afterColon = false
			}
		}
	}

	var b strings.Builder
	b.Grow(len(s) + len(stack) + 8)
	if inString {
		if escaped {
			s = s[:len(s)-1]
		}
		b.WriteString(s)
		b.WriteByte('"')
		if keyString {
			b.WriteString(":null")
		}
	} else {
		trimmed := strings.TrimRight(s, " \t\r\n,")
		b.WriteString(trimmed)
		switch {
		case strings.HasSuffix(trimmed, ":"):
			b.WriteString("null")
		case keyString && strings.HasSuffix(trimmed, `"`):
			b.WriteString(":null")
		}
	}
	for i := len(stack) - 1; i >= 0; i-- {
		b.WriteByte(stack[i].closer)
	}
	return b.String()
}

// salvageParagraphs carves one object per {"index" occurrence using
// string-aware brace tracking and keeps the elements that decode. When an
// element never closes or does not decode, the search resumes just past its
// opening brace, so a broken element cannot swallow the ones after it.
func salvageParagraphs(text string) []entry {
	from := 0
	if key := strings.Index(text, `"paragraphs"`); key >= 0 {
		from = key
	}
	var out []entry
	for {
		start := nextIndexAnchor(text, from)
		if start < 0 {
			return out
		}
		end := closingBrace(text, start)
		if end < 0 {
			from = start + 1
			continue
		}
		e, err := decodeEntry([]byte(text[start : end+1]))
		if err != nil {
			from = start + 1
			continue
		}
		out = append(out, e)
		from = end + 1
	}
}

// nextIndexAnchor returns the position of the next '{' at or after from that is
// followed, after optional whitespace, by the "index" key.
func nextIndexAnchor(text string, from int) int {
	for i := from; i < len(text); i++ {
		if text[i] != '{' {
			continue
		}
		rest := strings.TrimLeft(text[i+1:], " \t\r\n")
		if strings.HasPrefix(rest, `"index"`) {
			return i
		}
	}
	return -1
}

// closingBrace returns the position of the '}' balancing the '{' at start, or
// -1 when the text ends first.
func closingBrace(text string, start int) int {
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func head(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
