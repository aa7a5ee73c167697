package jobs

import (
	"time"

	"mixdown/internal/metrics"
)

// CleanupHistory deletes terminal jobs whose end time is older than
// the configured TTL so the job table does not grow without bound.
// Returns the number of jobs removed per kind. Jobs still referenced
// as unresolved dependencies of live jobs are kept.
func (s *Scheduler) CleanupHistory(now time.Time) map[Kind]int {
	ttl := s.opts.CompletedTTL
	if ttl <= 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := make(map[Kind]int)
	kept := s.order[:0]
	for _, id := range s.order {
		job := s.jobs[id]
		if job == nil {
			continue
		}
		expired := job.Status.Terminal() &&
			job.EndedAt != nil &&
			now.Sub(*job.EndedAt) >= ttl &&
			len(s.graph.directChildren(id)) == 0
		if !expired {
			kept = append(kept, id)
			continue
		}
		delete(s.jobs, id)
		s.graph.remove(id)
		s.queue.remove(id)
		if job.Status == StatusCompleted {
			s.dirty = true
		}
		removed[job.Kind]++
	}
	s.order = kept

	if len(removed) > 0 {
		for kind, n := range removed {
			metrics.RecordRetentionJobs(string(kind), int64(n))
		}
		s.log.Info("history cleanup removed jobs", "count", len(removed))
		s.notifyLocked()
	}
	return removed
}
