package core

// upload_limiter.go bounds how many uploaded files are read and parsed at once.
//
// Parsing holds the whole file in memory, so the number of parallel parses is
// capped. When all slots are busy a request waits up to maxWait and then
// fails with ErrTooManyUploads. WaitForDrain lets shutdown wait for in-flight
// parses.

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrTooManyUploads is returned when no parse slot frees up within the wait time.
var ErrTooManyUploads = errors.New("too many uploads in progress, please try again later")

const (
	// DefaultMaxConcurrentUploads is used when the configured limit is not positive.
	DefaultMaxConcurrentUploads = 5

	// DefaultMaxWaitTime is used when the configured wait is not positive.
	DefaultMaxWaitTime = 30 * time.Second
)

// UploadLimiter is a counting semaphore over upload parses.
type UploadLimiter struct {
	sem     *semaphore.Weighted
	max     int
	maxWait time.Duration
	active  atomic.Int64
}

// UploadLimiterStatus is a point-in-time view of the limiter.
type UploadLimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// NewUploadLimiter allows at most maxConcurrent parses; callers wait up to maxWait for a slot.
func NewUploadLimiter(maxConcurrent int, maxWait time.Duration) *UploadLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentUploads
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}
	return &UploadLimiter{
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		max:     maxConcurrent,
		maxWait: maxWait,
	}
}

// Acquire takes a slot. The caller must Release it.
// Returns ctx.Err() if ctx ends first, ErrTooManyUploads if the wait expires.
func (l *UploadLimiter) Acquire(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	if err := l.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrTooManyUploads
	}
	l.active.Add(1)
	return nil
}

// Release returns a slot taken by Acquire.
func (l *UploadLimiter) Release() {
	l.active.Add(-1)
	l.sem.Release(1)
}

// ActiveCount returns the number of slots in use.
func (l *UploadLimiter) ActiveCount() int {
	return int(l.active.Load())
}

// Status returns the current limiter state for monitoring.
func (l *UploadLimiter) Status() UploadLimiterStatus {
	active := l.ActiveCount()
	return UploadLimiterStatus{
		Active:        active,
		Available:     l.max - active,
		MaxConcurrent: l.max,
	}
}

// WaitForDrain blocks until no slot is in use or ctx ends.
func (l *UploadLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
