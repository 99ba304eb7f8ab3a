package classify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"

	"docstyler/internal/domain"
)

// Patch is one pass's explicit result for one record. Patches are applied
// centrally by ApplyPatches; passes never mutate the sequence they read.
type Patch struct {
	Index   int
	Markers []string
	Status  domain.Status
}

// entry is one decoded element of the "paragraphs" array.
type entry struct {
	Index   int
	Markers []string
}

type rawEntry struct {
	Index   *json.Number    `json:"index"`
	Markers json.RawMessage `json:"markers"`
}

func decodeEntry(data []byte) (entry, error) {
	var raw rawEntry
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return entry{}, err
	}
	if raw.Index == nil {
		return entry{}, fmt.Errorf("element has no index")
	}
	idx, err := raw.Index.Int64()
	if err != nil {
		return entry{}, fmt.Errorf("index %q is not an integer", raw.Index.String())
	}
	return entry{Index: int(idx), Markers: decodeMarkers(raw.Markers)}, nil
}

// decodeMarkers accepts a list of strings, a bare string or null. Non-string
// list items are skipped.
func decodeMarkers(data json.RawMessage) []string {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		return []string{single}
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil
	}
	var out []string
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			out = append(out, s)
		}
	}
	return out
}

// Merge reconciles decoded entries with the batch that was sent. It yields one
// patch per batch record, in batch order: records the model omitted get empty
// markers, unknown markers are dropped, duplicates collapse onto the first
// occurrence. Entries for indices outside the batch are ignored. Merge has no
// side effects, so merging the same input twice yields the same patches.
func Merge(batch []domain.Paragraph, entries []entry, vocab *Vocabulary) []Patch {
	byIndex := make(map[int][]string, len(entries))
	for _, e := range entries {
		if _, seen := byIndex[e.Index]; seen {
			continue
		}
		byIndex[e.Index] = resolveMarkers(e.Index, e.Markers, vocab)
	}

	patches := make([]Patch, 0, len(batch))
	for _, p := range batch {
		patches = append(patches, Patch{
			Index:   p.Index,
			Markers: byIndex[p.Index],
			Status:  domain.StatusClassified,
		})
	}
	return patches
}

func resolveMarkers(index int, raw []string, vocab *Vocabulary) []string {
	var out []string
	seen := make(map[string]bool, len(raw))
	for _, m := range raw {
		resolved, ok := vocab.Resolve(m)
		if !ok {
			log.Printf("classify discarded marker paragraph=%d marker=%q", index, m)
			continue
		}
		if seen[resolved] {
			continue
		}
		seen[resolved] = true
		out = append(out, resolved)
	}
	return out
}

// ApplyPatches writes patches into paragraphs in place, matching on Index.
// Patches for unknown indices are ignored. It returns how many records changed.
func ApplyPatches(paragraphs []domain.Paragraph, patches []Patch) int {
	if len(patches) == 0 {
		return 0
	}
	pos := indexPositions(paragraphs)
	applied := 0
	for _, patch := range patches {
		i, ok := pos[patch.Index]
		if !ok {
			continue
		}
		if patch.Status != domain.StatusFailed {
			paragraphs[i].Markers = append([]string(nil), patch.Markers...)
		}
		if patch.Status != "" {
			paragraphs[i].Status = patch.Status
		}
		applied++
	}
	return applied
}

func indexPositions(paragraphs []domain.Paragraph) map[int]int {
	pos := make(map[int]int, len(paragraphs))
	for i, p := range paragraphs {
		pos[p.Index] = i
	}
	return pos
}
