// Package mock provides a test double for poller.Source.
package mock

import (
	"context"
	"sync"

	"github.com/maplecivic/hansardflow/internal/poller"
)

// Compile-time assertion that Source satisfies poller.Source.
var _ poller.Source = (*Source)(nil)

// Source is a configurable poller.Source for tests.
type Source struct {
	// CodeValue is returned by Code.
	CodeValue string

	// Sittings is returned by DetectSittings when Err is nil.
	Sittings []poller.Sitting

	// Err, when set, is returned by DetectSittings.
	Err error

	mu    sync.Mutex
	calls int
}

// Code implements poller.Source.
func (s *Source) Code() string { return s.CodeValue }

// DetectSittings implements poller.Source.
func (s *Source) DetectSittings(context.Context) ([]poller.Sitting, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Sittings, nil
}

// Calls reports how many times DetectSittings was invoked.
func (s *Source) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
