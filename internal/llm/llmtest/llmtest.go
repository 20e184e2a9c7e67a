// Package llmtest provides a scripted llm.Generator for tests.
package llmtest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/tatianab/photo-game/internal/llm"
)

// Rule answers any request whose prompt contains Match.
type Rule struct {
	Match string
	Reply string
	Err   error
}

// Scripted replies with the first rule that matches a prompt. Rules with the
// same Match are consumed in order; the last one keeps answering.
type Scripted struct {
	mu       sync.Mutex
	rules    []Rule
	used     map[int]bool
	requests []llm.Request
	closed   bool
}

func New(rules ...Rule) *Scripted {
	return &Scripted{rules: rules, used: make(map[int]bool)}
}

func (s *Scripted) Generate(ctx context.Context, req llm.Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)

	last := -1
	for i, r := range s.rules {
		if !strings.Contains(req.Prompt, r.Match) {
			continue
		}
		last = i
		if s.used[i] {
			continue
		}
		if s.hasLaterMatch(i) {
			s.used[i] = true
		}
		return r.Reply, r.Err
	}
	if last >= 0 {
		return s.rules[last].Reply, s.rules[last].Err
	}
	return "", fmt.Errorf("llmtest: no rule for prompt %.60q", req.Prompt)
}

func (s *Scripted) hasLaterMatch(i int) bool {
	for _, r := range s.rules[i+1:] {
		if r.Match == s.rules[i].Match {
			return true
		}
	}
	return false
}

func (s *Scripted) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Requests returns every request seen so far.
func (s *Scripted) Requests() []llm.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]llm.Request(nil), s.requests...)
}

// Count returns how many prompts contained substr.
func (s *Scripted) Count(substr string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.requests {
		if strings.Contains(r.Prompt, substr) {
			n++
		}
	}
	return n
}

func (s *Scripted) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
