package domain

// Usage accumulates token counts reported by the LLM provider.
type Usage struct {
	InputTokens              int64
	OutputTokens             int64
	CacheCreationInputTokens int64
	CacheReadInputTokens     int64
}

func (u Usage) TotalTokens() int64 {
	return u.InputTokens + u.OutputTokens
}

func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CacheCreationInputTokens += other.CacheCreationInputTokens
	u.CacheReadInputTokens += other.CacheReadInputTokens
}

// Stats summarises one classification run. Marked and Unmarked are derived by
// rescanning the final sequence (see Recount).
type Stats struct {
	Total         int
	Processed     int
	Marked        int
	Unmarked      int
	APICalls      int
	FailedBatches int
	RescueCalls   int
	Rescued       int
	Usage         Usage
}

func (s *Stats) Recount(paragraphs []Paragraph) {
	s.Total = len(paragraphs)
	s.Marked, s.Unmarked = CountMarked(paragraphs)
}

// MarkedRatio is the share of marked records in [0,1].
func (s Stats) MarkedRatio() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Marked) / float64(s.Total)
}
