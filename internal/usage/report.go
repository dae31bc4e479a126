package usage

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"
)

// Periods accepted by [ParsePeriod].
var Periods = []string{"today", "yesterday", "week", "month", "all"}

// ParsePeriod converts a period name to a [start, end) range ending
// just after now.
func ParsePeriod(period string, now time.Time) (time.Time, time.Time, error) {
	end := now.Add(time.Minute)

	switch period {
	case "today":
		return startOfDay(now), end, nil
	case "yesterday":
		return startOfDay(now.AddDate(0, 0, -1)), startOfDay(now), nil
	case "week":
		return now.AddDate(0, 0, -7), end, nil
	case "month":
		return now.AddDate(0, -1, 0), end, nil
	case "", "all":
		return time.Time{}, end, nil
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("unknown period %q (want one of %v)", period, Periods)
	}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// FormatTokenCount formats a token count as a compact string (e.g.,
// "1.23M", "456.0K", "789").
func FormatTokenCount(n int64) string {
	if n >= 1_000_000 {
		return fmt.Sprintf("%.2fM", float64(n)/1_000_000.0)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.1fK", float64(n)/1_000.0)
	}
	return fmt.Sprintf("%d", n)
}

// Report is a period summary with an optional breakdown.
type Report struct {
	Period  string              `json:"period"`
	GroupBy string              `json:"group_by,omitempty"`
	Total   *Summary            `json:"total"`
	Groups  map[string]*Summary `json:"groups,omitempty"`
}

// BuildReport queries totals for period, grouped by "model",
// "directive", "session" or nothing.
func (s *Store) BuildReport(ctx context.Context, period, groupBy string, now time.Time) (*Report, error) {
	start, end, err := ParsePeriod(period, now)
	if err != nil {
		return nil, err
	}
	total, err := s.Summary(ctx, start, end)
	if err != nil {
		return nil, err
	}
	if period == "" {
		period = "all"
	}
	r := &Report{Period: period, GroupBy: groupBy, Total: total}

	switch groupBy {
	case "":
	case "model":
		r.Groups, err = s.SummaryByModel(ctx, start, end)
	case "directive":
		r.Groups, err = s.SummaryByDirective(ctx, start, end)
	case "session":
		r.Groups, err = s.SummaryBySession(ctx, start, end)
	default:
		return nil, fmt.Errorf("unknown grouping %q (want model, directive or session)", groupBy)
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// WriteText renders r for the terminal. Groups are listed by cost, then
// by token count, highest first.
func (r *Report) WriteText(w io.Writer) {
	fmt.Fprintf(w, "Usage (%s):\n", r.Period)
	fmt.Fprintf(w, "  Turns:          %d\n", r.Total.TotalRecords)
	fmt.Fprintf(w, "  Input tokens:   %s\n", FormatTokenCount(r.Total.TotalInputTokens))
	fmt.Fprintf(w, "  Output tokens:  %s\n", FormatTokenCount(r.Total.TotalOutputTokens))
	fmt.Fprintf(w, "  Estimated cost: $%.4f\n", r.Total.TotalCostUSD)

	if len(r.Groups) == 0 {
		return
	}
	keys := make([]string, 0, len(r.Groups))
	for k := range r.Groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := r.Groups[keys[i]], r.Groups[keys[j]]
		if a.TotalCostUSD != b.TotalCostUSD {
			return a.TotalCostUSD > b.TotalCostUSD
		}
		at, bt := a.TotalInputTokens+a.TotalOutputTokens, b.TotalInputTokens+b.TotalOutputTokens
		if at != bt {
			return at > bt
		}
		return keys[i] < keys[j]
	})

	fmt.Fprintf(w, "\nBy %s:\n", r.GroupBy)
	for _, k := range keys {
		sum := r.Groups[k]
		display := k
		if display == "" {
			display = "(none)"
		}
		fmt.Fprintf(w, "  %s: $%.4f (%d turns, %s in / %s out)\n",
			display, sum.TotalCostUSD, sum.TotalRecords,
			FormatTokenCount(sum.TotalInputTokens),
			FormatTokenCount(sum.TotalOutputTokens),
		)
	}
}
