package report

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/signalnine/agentarena/internal/catalog"
	"github.com/signalnine/agentarena/internal/leaderboard"
	"github.com/signalnine/agentarena/internal/submission"
)

// AgentSummary aggregates an agent's submissions across tasks.
type AgentSummary struct {
	AgentID     string  `json:"agent_id"`
	Name        string  `json:"name"`
	Submissions int     `json:"submissions"`
	PassRate    float64 `json:"pass_rate"`
	MeanScore   float64 `json:"mean_score"`
	MedianScore float64 `json:"median_score"`
	BestRank    int     `json:"best_rank"`
	MeanSteps   float64 `json:"mean_steps"`
	MeanTokens  float64 `json:"mean_tokens"`
	MeanCostUSD float64 `json:"mean_cost_usd"`
}

// Report is the full output of Generate.
type Report struct {
	Leaderboards map[string][]leaderboard.Entry `json:"leaderboards"`
	Agents       []AgentSummary                 `json:"agents"`
}

// Generate builds the leaderboard of every task and a per-agent summary,
// then writes them in format (table, markdown or json).
func Generate(ctx context.Context, cat catalog.Catalog, store submission.Store, eng *leaderboard.Engine, format string, w io.Writer) error {
	rep := &Report{Leaderboards: map[string][]leaderboard.Entry{}}
	for _, t := range cat.Tasks() {
		entries, err := eng.Build(ctx, t.ID)
		if err != nil {
			return fmt.Errorf("building leaderboard for %s: %w", t.ID, err)
		}
		rep.Leaderboards[t.ID] = entries
	}
	records, err := store.List(ctx)
	if err != nil {
		return fmt.Errorf("listing submissions: %w", err)
	}
	rep.Agents = Summarize(cat.Agents(), records, rep.Leaderboards)

	switch format {
	case "markdown":
		return writeMarkdown(rep, w)
	case "json":
		return writeJSON(rep, w)
	default:
		return writeTable(rep, w)
	}
}

// WriteLeaderboard renders a single task's leaderboard.
func WriteLeaderboard(entries []leaderboard.Entry, format string, w io.Writer) error {
	switch format {
	case "markdown":
		writeBoardMarkdown(entries, w)
		return nil
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	default:
		return writeBoardTable(entries, w)
	}
}

// Summarize aggregates records per agent. Scores and ranks come from the
// leaderboards; tokens and cost from live-run result data.
func Summarize(agents []*catalog.Agent, records []*submission.Record, boards map[string][]leaderboard.Entry) []AgentSummary {
	type accum struct {
		count  int
		passed int
		steps  float64
		tokens float64
		cost   float64
		scores []float64
		best   int
	}
	names := map[string]string{}
	for _, a := range agents {
		names[a.ID] = a.Name
	}
	byAgent := map[string]*accum{}
	get := func(id string) *accum {
		a, ok := byAgent[id]
		if !ok {
			a = &accum{}
			byAgent[id] = a
		}
		return a
	}

	for _, r := range records {
		if _, ok := names[r.AgentID]; !ok {
			continue
		}
		a := get(r.AgentID)
		a.count++
		if r.Status == submission.StatusCompleted {
			a.passed++
		}
		a.steps += float64(r.StepsTaken)
		tokens, cost := usageOf(r.ResultData)
		a.tokens += tokens
		a.cost += cost
	}
	for _, entries := range boards {
		for _, e := range entries {
			if _, ok := names[e.AgentID]; !ok {
				continue
			}
			a := get(e.AgentID)
			a.scores = append(a.scores, e.Score)
			if a.best == 0 || e.Rank < a.best {
				a.best = e.Rank
			}
		}
	}

	var summaries []AgentSummary
	for id, a := range byAgent {
		s := AgentSummary{AgentID: id, Name: names[id], Submissions: a.count, BestRank: a.best}
		if a.count > 0 {
			n := float64(a.count)
			s.PassRate = float64(a.passed) / n
			s.MeanSteps = a.steps / n
			s.MeanTokens = a.tokens / n
			s.MeanCostUSD = a.cost / n
		}
		if len(a.scores) > 0 {
			var total float64
			for _, v := range a.scores {
				total += v
			}
			s.MeanScore = total / float64(len(a.scores))
			s.MedianScore = leaderboard.MedianScore(a.scores)
		}
		summaries = append(summaries, s)
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].AgentID < summaries[j].AgentID
	})
	return summaries
}

// usageOf reads token usage and cost recorded by the live engine.
func usageOf(data map[string]any) (tokens, cost float64) {
	if u, ok := data["token_usage"].(map[string]any); ok {
		in, _ := toFloat(u["input_tokens"])
		out, _ := toFloat(u["output_tokens"])
		tokens = in + out
	}
	cost, _ = toFloat(data["estimated_cost_usd"])
	return tokens, cost
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func sortedTasks(boards map[string][]leaderboard.Entry) []string {
	ids := make([]string, 0, len(boards))
	for id := range boards {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func writeTable(rep *Report, w io.Writer) error {
	for _, id := range sortedTasks(rep.Leaderboards) {
		fmt.Fprintf(w, "Task %s\n", id)
		if err := writeBoardTable(rep.Leaderboards[id], w); err != nil {
			return err
		}
		fmt.Fprintln(w)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "AGENT\tSUBMISSIONS\tPASS RATE\tMEAN SCORE\tMEDIAN\tBEST RANK\tMEAN STEPS\tMEAN TOKENS\tMEAN COST")
	fmt.Fprintln(tw, strings.Repeat("-", 100))
	for _, s := range rep.Agents {
		fmt.Fprintf(tw, "%s\t%d\t%.0f%%\t%.1f\t%.1f\t%s\t%.1f\t%.0f\t$%.4f\n",
			s.Name, s.Submissions, s.PassRate*100, s.MeanScore, s.MedianScore, rankString(s.BestRank), s.MeanSteps, s.MeanTokens, s.MeanCostUSD)
	}
	return tw.Flush()
}

func writeBoardTable(entries []leaderboard.Entry, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tAGENT\tMODEL\tSCORE\tSUCCESS\tACCURACY\tTIME\tSTEPS\tSUBMISSION")
	fmt.Fprintln(tw, strings.Repeat("-", 100))
	for _, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%.1f\t%.0f%%\t%.2f\t%.1fs\t%d\t%s\n",
			e.Rank, e.AgentName, e.ModelID, e.Score, e.SuccessRate*100, e.Accuracy, e.TimeTaken, e.Metrics.StepsTaken, e.SubmissionID)
	}
	return tw.Flush()
}

func writeMarkdown(rep *Report, w io.Writer) error {
	for _, id := range sortedTasks(rep.Leaderboards) {
		fmt.Fprintf(w, "## %s\n\n", id)
		writeBoardMarkdown(rep.Leaderboards[id], w)
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w, "## Agents")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "| Agent | Submissions | Pass Rate | Mean Score | Median | Best Rank | Mean Steps | Mean Tokens | Mean Cost |")
	fmt.Fprintln(w, "|---|---|---|---|---|---|---|---|---|")
	for _, s := range rep.Agents {
		fmt.Fprintf(w, "| %s | %d | %.0f%% | %.1f | %.1f | %s | %.1f | %.0f | $%.4f |\n",
			s.Name, s.Submissions, s.PassRate*100, s.MeanScore, s.MedianScore, rankString(s.BestRank), s.MeanSteps, s.MeanTokens, s.MeanCostUSD)
	}
	return nil
}

func writeBoardMarkdown(entries []leaderboard.Entry, w io.Writer) {
	fmt.Fprintln(w, "| Rank | Agent | Model | Score | Success | Accuracy | Time | Steps |")
	fmt.Fprintln(w, "|---|---|---|---|---|---|---|---|")
	for _, e := range entries {
		fmt.Fprintf(w, "| %d | %s | %s | %.1f | %.0f%% | %.2f | %.1fs | %d |\n",
			e.Rank, e.AgentName, e.ModelID, e.Score, e.SuccessRate*100, e.Accuracy, e.TimeTaken, e.Metrics.StepsTaken)
	}
}

func writeJSON(rep *Report, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

func rankString(r int) string {
	if r == 0 {
		return "-"
	}
	return fmt.Sprintf("#%d", r)
}
