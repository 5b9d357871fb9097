// Package query normalizes free-text finance questions into the canonical
// request shape the federation engine dispatches on.
package query

import (
	"fmt"
	"strings"

	"github.com/tickerlens/tickerlens/internal/finance"
)

// Coverage chooses between first-success and union-merge federation.
type Coverage string

const (
	CoverageDefault       Coverage = "default"
	CoverageComprehensive Coverage = "comprehensive"
)

// ParseCoverage maps a user-supplied coverage name; empty means default.
func ParseCoverage(s string) (Coverage, error) {
	switch Coverage(strings.ToLower(strings.TrimSpace(s))) {
	case "", CoverageDefault:
		return CoverageDefault, nil
	case CoverageComprehensive:
		return CoverageComprehensive, nil
	}
	return "", fmt.Errorf("unsupported coverage %q", s)
}

const (
	// DefaultLimit applies when the caller does not bound result counts.
	DefaultLimit = 10
	MinLimit     = 1
	MaxLimit     = 50
)

// Query is a normalized finance request.
type Query struct {
	Ticker   string         `json:"ticker"`
	Intent   finance.Intent `json:"intent"`
	Form     string         `json:"form,omitempty"`
	Coverage Coverage       `json:"coverage"`
	Limit    int            `json:"limit"`
	Source   string         `json:"source,omitempty"`
	Refresh  bool           `json:"refresh,omitempty"`
}

// CacheKey renders the canonical cache key:
// TICKER:intent:coverage:source:form:limit.
func (q Query) CacheKey() string {
	coverage := string(q.Coverage)
	if coverage == "" {
		coverage = string(CoverageDefault)
	}
	source := q.Source
	if source == "" {
		source = "auto"
	}
	return fmt.Sprintf("%s:%s:%s:%s:%s:%d", q.Ticker, q.Intent, coverage, source, q.Form, q.Limit)
}

// Canonical renders the normalized query back to text. Parsing the
// canonical text (with the same options) reproduces the query.
func (q Query) Canonical() string {
	parts := []string{"$" + q.Ticker, string(q.Intent)}
	if q.Form != "" {
		parts = append(parts, q.Form)
	}
	return strings.Join(parts, " ")
}
