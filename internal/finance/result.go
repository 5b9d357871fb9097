package finance

import "time"

// Attribution credits one upstream source for data in an envelope.
type Attribution struct {
	Publisher string `json:"publisher"`
	Domain    string `json:"domain"`
	URL       string `json:"url"`
}

// DedupeAttribution removes repeats of the full (publisher, domain, url)
// triple, preserving first-seen order.
func DedupeAttribution(in []Attribution) []Attribution {
	if len(in) == 0 {
		return in
	}
	seen := make(map[Attribution]struct{}, len(in))
	out := make([]Attribution, 0, len(in))
	for _, a := range in {
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}

// Result is the canonical answer envelope. Source is a single provider id
// or a comma-joined list when multiple providers contributed. Errors holds
// human-readable per-provider failures and never causes the envelope itself
// to be an error.
type Result struct {
	Source      string        `json:"source"`
	Timestamp   time.Time     `json:"timestamp"`
	Attribution []Attribution `json:"attribution,omitempty"`
	Data        Payload       `json:"data"`
	Errors      []string      `json:"errors,omitempty"`
}

// NewResult builds a single-source envelope stamped now.
func NewResult(source string, data Payload) *Result {
	return &Result{Source: source, Timestamp: time.Now().UTC(), Data: data}
}

// Empty builds the no-data envelope for an intent, carrying the collected
// failures.
func Empty(intent Intent, symbol, source string, errs []string) *Result {
	return &Result{
		Source:    source,
		Timestamp: time.Now().UTC(),
		Data:      EmptyPayload(intent, symbol),
		Errors:    errs,
	}
}
