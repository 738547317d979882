package report

import (
	"sort"

	"dungeonload/internal/stats"
)

// Bucket counts the requests that started in one second of the run.
type Bucket struct {
	Timestamp int64   `json:"timestamp"`
	Requests  int     `json:"requests"`
	Errors    int     `json:"errors"`
	AvgMs     float64 `json:"avg_ms"`
}

// Timeline groups samples into per-second buckets, oldest first.
func Timeline(samples []stats.RequestSample) []Bucket {
	buckets := make(map[int64]*Bucket)
	totals := make(map[int64]float64)
	for _, s := range samples {
		ts := s.Timestamp.Unix()
		b, ok := buckets[ts]
		if !ok {
			b = &Bucket{Timestamp: ts}
			buckets[ts] = b
		}
		b.Requests++
		if s.Failed {
			b.Errors++
		}
		totals[ts] += float64(s.Duration.Microseconds()) / 1000
	}

	timeline := make([]Bucket, 0, len(buckets))
	for ts, b := range buckets {
		b.AvgMs = totals[ts] / float64(b.Requests)
		timeline = append(timeline, *b)
	}
	sort.Slice(timeline, func(i, j int) bool {
		return timeline[i].Timestamp < timeline[j].Timestamp
	})
	return timeline
}

// TimelineFile names the timeline export for prefix.
func TimelineFile(prefix string) string {
	return prefix + "_timeline.json"
}

func ExportTimeline(samples []stats.RequestSample, filename string) error {
	return writeJSON(Timeline(samples), filename)
}
