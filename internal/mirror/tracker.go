// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package mirror tracks which mirrored document hosts have served a
// document during the current run. Known-good mirrors are preferred but a
// mirror is never excluded; health is not persisted across runs.
package mirror

import (
	"math/rand/v2"
	"strings"
	"sync"
)

// Tracker holds the mirror registry and its known-good subset.
type Tracker struct {
	mu        sync.Mutex
	mirrors   []string
	known     map[string]bool
	knownList []string
}

// NewTracker returns a tracker over mirrors. Trailing slashes are trimmed;
// blanks and duplicates are dropped; configured order is kept.
func NewTracker(mirrors []string) *Tracker {
	seen := make(map[string]bool, len(mirrors))
	var list []string
	for _, m := range mirrors {
		m = strings.TrimRight(strings.TrimSpace(m), "/")
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		list = append(list, m)
	}
	return &Tracker{mirrors: list, known: make(map[string]bool)}
}

// Candidates returns every mirror: known-good ones first in the order they
// proved themselves, then the rest in configured order.
func (t *Tracker) Candidates() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]string, 0, len(t.mirrors))
	out = append(out, t.knownList...)
	for _, m := range t.mirrors {
		if !t.known[m] {
			out = append(out, m)
		}
	}
	return out
}

// ReportSuccess marks mirror as known-good. Mirrors outside the registry
// are ignored.
func (t *Tracker) ReportSuccess(mirror string) {
	mirror = strings.TrimRight(mirror, "/")
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.known[mirror] {
		return
	}
	for _, m := range t.mirrors {
		if m == mirror {
			t.known[mirror] = true
			t.knownList = append(t.knownList, mirror)
			return
		}
	}
}

// KnownGood returns the mirrors that have served a document, in discovery order.
func (t *Tracker) KnownGood() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.knownList...)
}

// Mirrors returns the full registry in configured order.
func (t *Tracker) Mirrors() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.mirrors...)
}

// Shuffle returns a shuffled copy of mirrors.
func Shuffle(mirrors []string, r *rand.Rand) []string {
	out := append([]string(nil), mirrors...)
	r.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}
