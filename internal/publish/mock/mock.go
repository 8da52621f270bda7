// Package mock provides a test double for the publish.Forum interface.
package mock

import (
	"context"
	"sync"

	"github.com/maplecivic/hansardflow/internal/publish"
)

// Compile-time assertion that Forum satisfies publish.Forum.
var _ publish.Forum = (*Forum)(nil)

// Forum is a mock forum client. Zero values for response fields cause
// CreateIssue to return a zero CreatedIssue; set Err to inject failures.
type Forum struct {
	mu sync.Mutex

	// Created is returned by CreateIssue.
	Created *publish.CreatedIssue

	// Err, if non-nil, is returned as the error from CreateIssue.
	Err error

	// Issues records every issue passed to CreateIssue, in order.
	Issues []publish.Issue
}

// CreateIssue records the issue and returns the configured response.
func (f *Forum) CreateIssue(ctx context.Context, issue publish.Issue) (*publish.CreatedIssue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Issues = append(f.Issues, issue)
	if f.Err != nil {
		return nil, f.Err
	}
	if f.Created != nil {
		return f.Created, nil
	}
	return &publish.CreatedIssue{}, nil
}
