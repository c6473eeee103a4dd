// Package explain attaches prose explanations to recommendations. The
// LLM is rate-controlled hard: at most two calls per annotation cycle,
// each covering a batch of ten. Anything the model fails to deliver
// falls back to a deterministic template over the key-factor tags, so
// annotation can never remove, reorder, or stall a result.
package explain

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/argusquant/argus/internal/clients/websearch"
	"github.com/argusquant/argus/internal/domain"
)

const (
	batchSize   = 10
	maxLLMCalls = 2

	// Headline lookups are budgeted separately from the LLM.
	maxSearches       = 3
	headlinesPerQuery = 2
)

// TextGenerator produces one completion for one prompt.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// HeadlineSource serves recent news headlines for prompt context.
type HeadlineSource interface {
	Search(ctx context.Context, query string, limit int) ([]websearch.Headline, error)
}

// Annotator fills Recommendation.Explanation in place.
type Annotator struct {
	llm  TextGenerator  // nil disables the model, fallback only
	news HeadlineSource // nil disables headline context
	log  zerolog.Logger
}

// New builds an annotator. Both dependencies are optional.
func New(llm TextGenerator, news HeadlineSource, log zerolog.Logger) *Annotator {
	return &Annotator{
		llm:  llm,
		news: news,
		log:  log.With().Str("service", "explain").Logger(),
	}
}

// Annotate explains every recommendation, best effort. The slice is
// never reordered and every element gets an explanation.
func (a *Annotator) Annotate(ctx context.Context, recs []*domain.Recommendation) {
	headlines := a.headlines(ctx, recs)

	calls := 0
	for start := 0; start < len(recs); start += batchSize {
		end := start + batchSize
		if end > len(recs) {
			end = len(recs)
		}
		batch := recs[start:end]

		if a.llm == nil || calls >= maxLLMCalls {
			fillFallback(batch)
			continue
		}
		calls++

		texts, err := a.generate(ctx, batch, headlines)
		if err != nil {
			a.log.Warn().Err(err).Int("batch", start/batchSize+1).Msg("llm annotation failed")
		}
		for i, rec := range batch {
			if i < len(texts) && strings.TrimSpace(texts[i]) != "" {
				rec.Explanation = strings.TrimSpace(texts[i])
			} else {
				rec.Explanation = fallbackFor(rec)
			}
		}
	}
}

// generate asks for a JSON array of short explanations, one per pick.
func (a *Annotator) generate(ctx context.Context, batch []*domain.Recommendation, headlines map[string][]string) ([]string, error) {
	var b strings.Builder
	b.WriteString("你是一位谨慎的投资分析助手。下面是今日量化模型选出的标的，")
	b.WriteString("请为每个标的写一句不超过50字的中文推荐理由。\n")
	fmt.Fprintf(&b, "只返回一个长度为%d的JSON字符串数组，不要任何其他文字。\n\n", len(batch))
	for i, rec := range batch {
		fmt.Fprintf(&b, "%d. %s %s 评分%.1f 关键因素: %s\n",
			i+1, rec.Code, rec.Name, rec.Score, strings.Join(rec.KeyFactors, "；"))
		for _, h := range headlines[rec.Code] {
			fmt.Fprintf(&b, "   近期新闻: %s\n", h)
		}
	}

	raw, err := a.llm.GenerateText(ctx, b.String())
	if err != nil {
		return nil, err
	}
	return parseExplanations(raw)
}

// parseExplanations tolerates markdown fences around the JSON array.
func parseExplanations(raw string) ([]string, error) {
	s := strings.TrimSpace(raw)
	if i := strings.IndexByte(s, '['); i >= 0 {
		if j := strings.LastIndexByte(s, ']'); j > i {
			s = s[i : j+1]
		}
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, fmt.Errorf("parse explanations: %w", err)
	}
	return out, nil
}

// headlines fetches news context for the first few picks, best effort.
func (a *Annotator) headlines(ctx context.Context, recs []*domain.Recommendation) map[string][]string {
	out := make(map[string][]string)
	if a.news == nil {
		return out
	}
	for i, rec := range recs {
		if i >= maxSearches {
			break
		}
		query := rec.Name
		if query == "" {
			query = rec.Code
		}
		hits, err := a.news.Search(ctx, query+" 股票", headlinesPerQuery)
		if err != nil {
			a.log.Debug().Err(err).Str("code", rec.Code).Msg("headline search failed")
			continue
		}
		for _, h := range hits {
			out[rec.Code] = append(out[rec.Code], h.Title)
		}
	}
	return out
}

func fillFallback(batch []*domain.Recommendation) {
	for _, rec := range batch {
		rec.Explanation = fallbackFor(rec)
	}
}

// fallbackFor builds the rule-based explanation from the key factors.
func fallbackFor(rec *domain.Recommendation) string {
	if len(rec.KeyFactors) == 0 {
		return fmt.Sprintf("综合评分%.1f，符合当前策略筛选条件。", rec.Score)
	}
	return fmt.Sprintf("综合评分%.1f：%s。", rec.Score, strings.Join(rec.KeyFactors, "，"))
}
