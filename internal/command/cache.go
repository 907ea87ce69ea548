package command

import (
	"sync"

	"github.com/groblegark/payd/internal/assess"
)

// resultCache is an in-process front for the durable request_cache table:
// hot duplicate submissions are answered without a database round-trip.
// Eviction is FIFO; the durable table remains the source of truth.
type resultCache struct {
	mu      sync.Mutex
	max     int
	order   []string
	results map[string]Result
}

func newResultCache(max int) *resultCache {
	return &resultCache{
		max:     max,
		results: make(map[string]Result, max),
	}
}

func (c *resultCache) get(requestID string) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.results[requestID]
	return r, ok
}

func (c *resultCache) put(requestID string, r Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.results[requestID]; exists {
		return
	}
	if len(c.order) >= c.max {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.results, oldest)
	}
	c.order = append(c.order, requestID)
	c.results[requestID] = r
}

// assessmentCache remembers the last successful assessments per aggregate.
// Commands whose circuit-open policy allows a fallback consult it when an
// evaluator's circuit is open.
type assessmentCache struct {
	mu    sync.Mutex
	max   int
	order []string
	last  map[string]map[string]assess.Assessment
}

func newAssessmentCache(max int) *assessmentCache {
	return &assessmentCache{
		max:  max,
		last: make(map[string]map[string]assess.Assessment, max),
	}
}

// cacheSizes for the two in-process caches.
const (
	resultCacheSize     = 1024
	assessmentCacheSize = 1024
)

func (c *assessmentCache) get(aggregateID string) (map[string]assess.Assessment, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.last[aggregateID]
	return m, ok
}

func (c *assessmentCache) put(aggregateID string, m map[string]assess.Assessment) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.last[aggregateID]; !exists {
		if len(c.order) >= c.max {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.last, oldest)
		}
		c.order = append(c.order, aggregateID)
	}
	c.last[aggregateID] = m
}
