package weather

import "time"

// SummarizeDays buckets forecast entries by local calendar day (using the
// provider's timezone offset) and aggregates each bucket. Temperatures are
// min/max/averaged; the condition is selected by majority, ties going to the
// condition seen first.
func SummarizeDays(timeline []ForecastEntry, tzOffset int) []DailySummary {
	if len(timeline) == 0 {
		return nil
	}

	zone := time.FixedZone("", tzOffset)

	type bucket struct {
		summary    DailySummary
		sum        float64
		counts     map[Condition]int
		firstIndex map[Condition]int
	}

	var (
		order   []string
		buckets = make(map[string]*bucket)
	)

	for i, e := range timeline {
		day := e.Time.In(zone).Format("2006-01-02")
		b, ok := buckets[day]
		if !ok {
			b = &bucket{
				summary: DailySummary{
					Date:    day,
					MinTemp: e.Temperature,
					MaxTemp: e.Temperature,
				},
				counts:     make(map[Condition]int),
				firstIndex: make(map[Condition]int),
			}
			buckets[day] = b
			order = append(order, day)
		}

		if e.Temperature < b.summary.MinTemp {
			b.summary.MinTemp = e.Temperature
		}
		if e.Temperature > b.summary.MaxTemp {
			b.summary.MaxTemp = e.Temperature
		}
		b.sum += e.Temperature
		b.summary.Entries++

		if _, seen := b.firstIndex[e.Condition]; !seen {
			b.firstIndex[e.Condition] = i
		}
		b.counts[e.Condition]++
	}

	out := make([]DailySummary, 0, len(order))
	for _, day := range order {
		b := buckets[day]
		b.summary.AvgTemp = b.sum / float64(b.summary.Entries)

		// Pick majority condition.
		best := ConditionUnknown
		bestCount, bestIndex := 0, 0
		for cond, count := range b.counts {
			idx := b.firstIndex[cond]
			if count > bestCount || (count == bestCount && idx < bestIndex) {
				best, bestCount, bestIndex = cond, count, idx
			}
		}
		b.summary.Condition = best

		out = append(out, b.summary)
	}
	return out
}
