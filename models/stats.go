package models

import (
	"fmt"
	"sync/atomic"
	"time"
)

type ReindexStats struct {
	Total   int64
	Indexed int64
	Failed  int64
}

type ReindexSnapshot struct {
	Total   int64 `json:"total"`
	Indexed int64 `json:"indexed"`
	Failed  int64 `json:"failed"`
}

func (s *ReindexStats) Snapshot() ReindexSnapshot {
	return ReindexSnapshot{
		Total:   atomic.LoadInt64(&s.Total),
		Indexed: atomic.LoadInt64(&s.Indexed),
		Failed:  atomic.LoadInt64(&s.Failed),
	}
}

func (s *ReindexStats) PrintSummary(executionTime time.Duration) {
	snap := s.Snapshot()

	fmt.Printf("\n📊 Skill Index Statistics:\n")
	fmt.Printf("   Total Skills: %d\n", snap.Total)
	fmt.Printf("   Indexed: %d\n", snap.Indexed)
	fmt.Printf("   Failed: %d\n", snap.Failed)

	if snap.Total > 0 {
		fmt.Printf("   Success Rate: %.1f%%\n", float64(snap.Indexed)/float64(snap.Total)*100)
	}

	fmt.Printf("   Execution Time: %.2f seconds\n", executionTime.Seconds())
	if executionTime.Seconds() > 0 {
		fmt.Printf("   Skills per Second: %.2f\n", float64(snap.Indexed)/executionTime.Seconds())
	}
}
