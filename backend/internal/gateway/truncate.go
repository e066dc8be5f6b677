package gateway

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"

	"papergraph/backend/pkg/logger"
)

// Truncator cuts text down to a token budget.
type Truncator interface {
	Truncate(text string, maxTokens int) string
}

// runesPerToken approximates English prose under BPE tokenizers.
const runesPerToken = 4

// RuneTruncator budgets by rune count.
type RuneTruncator struct{}

func (RuneTruncator) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return text
	}
	limit := maxTokens * runesPerToken
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}

// TiktokenTruncator budgets by cl100k_base tokens. The encoding is loaded on
// first use; if it cannot be loaded the rune budget is used instead.
type TiktokenTruncator struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
}

func (t *TiktokenTruncator) load() {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			logger.Get().Warn("tiktoken encoding unavailable, using rune budget", zap.Error(err))
			return
		}
		t.enc = enc
	})
}

func (t *TiktokenTruncator) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return text
	}
	t.load()
	if t.enc == nil {
		return RuneTruncator{}.Truncate(text, maxTokens)
	}
	tokens := t.enc.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	return t.enc.Decode(tokens[:maxTokens])
}
