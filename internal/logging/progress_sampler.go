package logging

import "sync"

// ProgressSampler suppresses repetitive progress logs while preserving signal
// when a job crosses a percentage bucket.
type ProgressSampler struct {
	mu         sync.Mutex
	bucketSize float64
	lastBucket map[string]int
}

// NewProgressSampler constructs a sampler that emits when the percent crosses
// bucket boundaries (default 10%).
func NewProgressSampler(bucketSize float64) *ProgressSampler {
	if bucketSize <= 0 {
		bucketSize = 10
	}
	return &ProgressSampler{bucketSize: bucketSize, lastBucket: make(map[string]int)}
}

// ShouldLog reports whether a progress value (0-100) for key should be logged.
// Negative percent means unknown and only the first report logs.
func (s *ProgressSampler) ShouldLog(key string, percent float64) bool {
	if s == nil {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	last, seen := s.lastBucket[key]
	if percent < 0 {
		if seen {
			return false
		}
		s.lastBucket[key] = -1
		return true
	}
	bucket := int(percent / s.bucketSize)
	if percent >= 100 {
		bucket = int(100 / s.bucketSize)
	}
	if seen && bucket <= last {
		return false
	}
	s.lastBucket[key] = bucket
	return true
}

// Forget drops state for key (job finished or failed).
func (s *ProgressSampler) Forget(key string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	delete(s.lastBucket, key)
	s.mu.Unlock()
}
