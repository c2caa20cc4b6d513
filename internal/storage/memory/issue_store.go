// Package memory provides an in-process issue store for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/comic-crawler/internal/comic"
)

// IssueStore keeps issues in memory with the same contract as the Postgres store.
type IssueStore struct {
	mu     sync.RWMutex
	nextID int64
	issues map[int64]comic.Issue
	byURL  map[string]int64
	now    func() time.Time
}

var _ comic.Store = (*IssueStore)(nil)

// NewIssueStore constructs an empty IssueStore.
func NewIssueStore() *IssueStore {
	return &IssueStore{
		issues: make(map[int64]comic.Issue),
		byURL:  make(map[string]int64),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Insert stores the issue unless its URL is already present.
func (s *IssueStore) Insert(_ context.Context, issue comic.Issue) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byURL[issue.URL]; exists {
		return 0, false, nil
	}
	s.nextID++
	issue.ID = s.nextID
	issue.PanelURLs = append(comic.Panels{}, issue.PanelURLs...)
	issue.Text = nil
	issue.Processed = false
	issue.AddedAt = s.now()
	s.issues[issue.ID] = issue
	s.byURL[issue.URL] = issue.ID
	return issue.ID, true, nil
}

// Update applies the set fields of update.
func (s *IssueStore) Update(_ context.Context, id int64, update comic.IssueUpdate) error {
	if update.Empty() {
		return comic.ErrNoUpdateFields
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	issue, ok := s.issues[id]
	if !ok {
		return fmt.Errorf("update comic %d: %w", id, comic.ErrNotFound)
	}
	if update.Text != nil {
		text := append(comic.Panels{}, (*update.Text)...)
		issue.Text = &text
	}
	if update.Processed != nil {
		issue.Processed = *update.Processed
	}
	s.issues[id] = issue
	return nil
}

// Latest returns the most recently inserted issue, or nil when empty.
func (s *IssueStore) Latest(_ context.Context) (*comic.Issue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.nextID == 0 {
		return nil, nil
	}
	// IDs are assigned in insertion order and never deleted.
	issue := copyIssue(s.issues[s.nextID])
	return &issue, nil
}

// All returns every issue, newest publication first with undated issues last.
func (s *IssueStore) All(_ context.Context) ([]comic.Issue, error) {
	s.mu.RLock()
	out := make([]comic.Issue, 0, len(s.issues))
	for _, issue := range s.issues {
		out = append(out, copyIssue(issue))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].PublicationDate, out[j].PublicationDate
		switch {
		case a == nil && b == nil:
			return out[i].ID > out[j].ID
		case a == nil:
			return false
		case b == nil:
			return true
		case a.Equal(*b):
			return out[i].ID > out[j].ID
		default:
			return a.After(*b)
		}
	})
	return out, nil
}

// Ping always succeeds.
func (s *IssueStore) Ping(context.Context) error {
	return nil
}

// Migrate is a no-op.
func (s *IssueStore) Migrate(context.Context) error {
	return nil
}

// Close is a no-op.
func (s *IssueStore) Close() {}

func copyIssue(issue comic.Issue) comic.Issue {
	issue.PanelURLs = append(comic.Panels{}, issue.PanelURLs...)
	if issue.Text != nil {
		text := append(comic.Panels{}, (*issue.Text)...)
		issue.Text = &text
	}
	return issue
}
