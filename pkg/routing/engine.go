// Package routing implements the keyword→tool scoring engine: suggest a
// tool for a set of keywords, learn from accept/reject feedback, and
// report aggregate accuracy (spec §4.5).
package routing

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/codeready-toolchain/dcm/ent"
	"github.com/codeready-toolchain/dcm/ent/keywordtoolscore"
	"github.com/codeready-toolchain/dcm/pkg/config"
	"github.com/codeready-toolchain/dcm/pkg/database"
)

// Engine scores tools against keywords and adjusts scores from feedback.
type Engine struct {
	db  *database.Client
	cfg *config.RoutingConfig
}

// NewEngine creates a new Engine.
func NewEngine(db *database.Client, cfg *config.RoutingConfig) *Engine {
	return &Engine{db: db, cfg: cfg}
}

// SplitKeywords lowercases, trims, and dedups a comma-separated keyword
// string into a non-empty token list.
func SplitKeywords(raw string) []string {
	parts := strings.Split(raw, ",")
	seen := map[string]bool{}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		k := strings.ToLower(strings.TrimSpace(p))
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

// SuggestFilters narrows a suggestion request.
type SuggestFilters struct {
	ToolTypeInclude []string
	ToolTypeExclude []string
	MinScore        float64
	Limit           int
}

// Suggestion is one scored candidate returned by Suggest.
type Suggestion struct {
	ToolName   string  `json:"tool_name"`
	ToolType   string  `json:"tool_type,omitempty"`
	Score      float64 `json:"score"`
	UsageCount int     `json:"usage_count"`
}

// Suggest scores every tool that matches at least one keyword by summing
// stored_score(keyword, tool) across matched keywords, breaking ties by
// higher usage_count then alphabetical tool_name.
func (e *Engine) Suggest(ctx context.Context, keywords []string, filters SuggestFilters) ([]Suggestion, error) {
	if len(keywords) == 0 {
		return nil, nil
	}

	rows, err := e.db.KeywordToolScore.Query().
		Where(keywordtoolscore.KeywordIn(keywords...)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query keyword tool scores: %w", err)
	}

	type agg struct {
		toolType   string
		score      float64
		usageCount int
	}
	byTool := map[string]*agg{}
	for _, r := range rows {
		a, ok := byTool[r.ToolName]
		if !ok {
			a = &agg{toolType: r.ToolType}
			byTool[r.ToolName] = a
		}
		a.score += r.Score
		a.usageCount += r.UsageCount
		if a.toolType == "" {
			a.toolType = r.ToolType
		}
	}

	include := toSet(filters.ToolTypeInclude)
	exclude := toSet(filters.ToolTypeExclude)

	out := make([]Suggestion, 0, len(byTool))
	for tool, a := range byTool {
		if len(include) > 0 && !include[a.toolType] {
			continue
		}
		if exclude[a.toolType] {
			continue
		}
		if a.score < filters.MinScore {
			continue
		}
		out = append(out, Suggestion{ToolName: tool, ToolType: a.toolType, Score: a.score, UsageCount: a.usageCount})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].UsageCount != out[j].UsageCount {
			return out[i].UsageCount > out[j].UsageCount
		}
		return out[i].ToolName < out[j].ToolName
	})

	limit := filters.Limit
	if limit <= 0 {
		limit = 10
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func toSet(in []string) map[string]bool {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]bool, len(in))
	for _, s := range in {
		out[s] = true
	}
	return out
}

// FeedbackRequest reports how an agent actually used a suggestion.
type FeedbackRequest struct {
	Keywords       []string
	SelectedTool   string
	SuggestedTools []string
	Accepted       bool
}

// Feedback upserts a (keyword, tool) row for every keyword x tool in
// suggested_tools ∪ {selected_tool}, nudging scores by the configured
// accept/reject constants and always incrementing usage_count and
// last_used.
func (e *Engine) Feedback(ctx context.Context, req FeedbackRequest) error {
	if req.SelectedTool == "" {
		return fmt.Errorf("selected_tool is required")
	}

	touched := map[string]bool{req.SelectedTool: true}
	for _, t := range req.SuggestedTools {
		touched[t] = true
	}

	now := time.Now()
	for _, keyword := range req.Keywords {
		for tool := range touched {
			isSelected := tool == req.SelectedTool
			if err := e.upsertFeedback(ctx, keyword, tool, isSelected, req.Accepted, now); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) upsertFeedback(ctx context.Context, keyword, tool string, isSelected, accepted bool, now time.Time) error {
	row, err := e.db.KeywordToolScore.Query().
		Where(keywordtoolscore.KeywordEQ(keyword), keywordtoolscore.ToolNameEQ(tool)).
		Only(ctx)
	if err != nil && !ent.IsNotFound(err) {
		return fmt.Errorf("failed to query keyword tool score: %w", err)
	}

	score := 0.0
	usageCount := 0
	successCount := 0
	if row != nil {
		score = row.Score
		usageCount = row.UsageCount
		successCount = row.SuccessCount
	}

	delta := e.nudge(score, isSelected, accepted)
	score = clamp(score+delta, 0, 10)
	usageCount++
	if isSelected && accepted {
		successCount++
	}

	if row == nil {
		_, err = e.db.KeywordToolScore.Create().
			SetKeyword(keyword).
			SetToolName(tool).
			SetScore(score).
			SetUsageCount(usageCount).
			SetSuccessCount(successCount).
			SetLastUsed(now).
			Save(ctx)
	} else {
		err = e.db.KeywordToolScore.UpdateOneID(row.ID).
			SetScore(score).
			SetUsageCount(usageCount).
			SetSuccessCount(successCount).
			SetLastUsed(now).
			Exec(ctx)
	}
	if err != nil {
		return fmt.Errorf("failed to upsert keyword tool score: %w", err)
	}
	return nil
}

// nudge computes the score delta for one (keyword, tool) touch.
//
//   - selected + accepted: positive nudge proportional to remaining headroom
//     (score' = score + acceptNudge * (1 - score/10)), so scores near the
//     ceiling move less.
//   - suggested-but-not-selected, when the agent accepted a different tool:
//     small negative nudge proportional to the tool's current score
//     (score' = score + rejectNudge * score/10), so a tool already near
//     zero has little left to lose.
//   - suggested-but-not-selected, when the agent rejected the suggestion set
//     outright: same proportional negative nudge — the tool was offered and
//     passed over.
//   - selected + not accepted: neutral, no score movement, only usage_count
//     increments (the agent used it but reported a bad outcome is treated as
//     an ambiguous signal rather than punished).
func (e *Engine) nudge(score float64, isSelected, accepted bool) float64 {
	if isSelected {
		if accepted {
			return e.cfg.AcceptNudge * (1 - score/10)
		}
		return 0
	}
	return e.cfg.RejectNudge * score / 10
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Stats aggregates routing KPIs for the dashboard.
type Stats struct {
	TotalKeywordTools int            `json:"total_keyword_tools"`
	TotalUsage        int            `json:"total_usage"`
	TopByUsage        []Suggestion   `json:"top_by_usage"`
	TopByScore        []Suggestion   `json:"top_by_score"`
	ByToolType        map[string]int `json:"by_tool_type"`
}

// Stats computes aggregate totals, top-N lists, and the tool-type
// distribution across all keyword→tool rows.
func (e *Engine) Stats(ctx context.Context) (*Stats, error) {
	rows, err := e.db.KeywordToolScore.Query().All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query keyword tool scores: %w", err)
	}

	out := &Stats{ByToolType: map[string]int{}}
	all := make([]Suggestion, 0, len(rows))
	for _, r := range rows {
		out.TotalUsage += r.UsageCount
		out.ByToolType[r.ToolType]++
		all = append(all, Suggestion{ToolName: r.ToolName, ToolType: r.ToolType, Score: r.Score, UsageCount: r.UsageCount})
	}
	out.TotalKeywordTools = len(rows)

	byUsage := append([]Suggestion(nil), all...)
	sort.Slice(byUsage, func(i, j int) bool { return byUsage[i].UsageCount > byUsage[j].UsageCount })
	out.TopByUsage = topN(byUsage, 10)

	byScore := append([]Suggestion(nil), all...)
	sort.Slice(byScore, func(i, j int) bool { return byScore[i].Score > byScore[j].Score })
	out.TopByScore = topN(byScore, 10)

	return out, nil
}

func topN(s []Suggestion, n int) []Suggestion {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// AccuracyStats reports the accept rate that Accuracy computes over the
// keyword/tool rows used within the configured accuracy window.
type AccuracyStats struct {
	Window   int64   `json:"window_seconds"`
	Accepted int     `json:"accepted"`
	Total    int     `json:"total"`
	Accuracy float64 `json:"accuracy"`
}

// Accuracy reports the accept rate among rows touched within
// AccuracyWindow, using success_count/usage_count as a per-row proxy for
// accept/total since individual feedback events are not separately logged.
func (e *Engine) Accuracy(ctx context.Context) (*AccuracyStats, error) {
	since := time.Now().Add(-e.cfg.AccuracyWindow.Std())
	rows, err := e.db.KeywordToolScore.Query().
		Where(keywordtoolscore.LastUsedGTE(since)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent keyword tool scores: %w", err)
	}

	var accepted, total int
	for _, r := range rows {
		accepted += r.SuccessCount
		total += r.UsageCount
	}

	accuracy := 0.0
	if total > 0 {
		accuracy = float64(accepted) / float64(total)
	}
	return &AccuracyStats{
		Window:   int64(e.cfg.AccuracyWindow.Std().Seconds()),
		Accepted: accepted,
		Total:    total,
		Accuracy: accuracy,
	}, nil
}
