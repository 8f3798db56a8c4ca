package dispatch

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/agrimesh-platform/edge-gateway/pkg/logging"
	"github.com/agrimesh-platform/edge-gateway/pkg/metrics"
)

// BranchRequest names one branch of a fan-out
type BranchRequest struct {
	Name    string
	Target  *Target
	Request *Request
}

// BranchResult is the outcome of one branch. An unavailable branch carries
// its failure class and error; the aggregate as a whole still succeeds.
type BranchResult struct {
	Name         string
	Value        []byte
	Cached       bool
	Available    bool
	FailureClass string
	Err          error
	Duration     time.Duration
}

// Aggregator fans one logical request out to several targets in parallel and
// assembles whatever arrived. Branch failures degrade the response rather
// than fail it; refusing the whole aggregate is the caller's decision.
type Aggregator struct {
	dispatcher *Dispatcher
	sem        *semaphore.Weighted
	logger     *logging.Logger
	metrics    *metrics.Metrics
}

// NewAggregator creates a new aggregator. A positive maxConcurrent caps the
// number of branches in flight at once; zero means unbounded.
func NewAggregator(dispatcher *Dispatcher, maxConcurrent int, logger *logging.Logger, m *metrics.Metrics) *Aggregator {
	var sem *semaphore.Weighted
	if maxConcurrent > 0 {
		sem = semaphore.NewWeighted(int64(maxConcurrent))
	}

	return &Aggregator{
		dispatcher: dispatcher,
		sem:        sem,
		logger:     logger,
		metrics:    m,
	}
}

// Build runs all branches and returns their results in input order
func (a *Aggregator) Build(ctx context.Context, aggregate string, branches []BranchRequest) []BranchResult {
	start := time.Now()
	results := make([]BranchResult, len(branches))

	var wg sync.WaitGroup
	for i, branch := range branches {
		wg.Add(1)
		go func(index int, br BranchRequest) {
			defer wg.Done()
			results[index] = a.runBranch(ctx, br)
		}(i, branch)
	}
	wg.Wait()

	degraded := false
	for i := range results {
		outcome := "ok"
		if !results[i].Available {
			outcome = results[i].FailureClass
			degraded = true
		}
		if a.metrics != nil {
			a.metrics.RecordAggregatorBranch(aggregate, outcome)
		}
	}

	if a.metrics != nil {
		a.metrics.RecordAggregate(aggregate, degraded, time.Since(start))
	}
	if degraded {
		a.logger.WithContext(ctx).Warn("Aggregate degraded",
			"aggregate", aggregate,
			"unavailable", UnavailableBranches(results),
		)
	}

	return results
}

// runBranch executes one branch through the dispatcher
func (a *Aggregator) runBranch(ctx context.Context, branch BranchRequest) BranchResult {
	if a.sem != nil {
		if err := a.sem.Acquire(ctx, 1); err != nil {
			return BranchResult{
				Name:         branch.Name,
				Available:    false,
				FailureClass: FailureClass(err),
				Err:          err,
			}
		}
		defer a.sem.Release(1)
	}

	start := time.Now()
	resp, err := a.dispatcher.Call(ctx, branch.Target, branch.Request)
	duration := time.Since(start)

	if err != nil {
		class := FailureClass(err)
		a.logger.WithContext(ctx).WithError(err).Warn("Aggregation branch unavailable",
			"branch", branch.Name,
			"target", branch.Target.Name,
			"class", class,
		)
		return BranchResult{
			Name:         branch.Name,
			Available:    false,
			FailureClass: class,
			Err:          err,
			Duration:     duration,
		}
	}

	return BranchResult{
		Name:      branch.Name,
		Value:     resp.Body,
		Cached:    resp.Cached,
		Available: true,
		Duration:  duration,
	}
}

// Degraded reports whether any branch is unavailable
func Degraded(results []BranchResult) bool {
	for i := range results {
		if !results[i].Available {
			return true
		}
	}
	return false
}

// AllUnavailable reports whether every branch failed. Callers typically turn
// this into a service-unavailable response instead of serving an empty
// aggregate.
func AllUnavailable(results []BranchResult) bool {
	for i := range results {
		if results[i].Available {
			return false
		}
	}
	return len(results) > 0
}

// UnavailableBranches returns the names of failed branches
func UnavailableBranches(results []BranchResult) []string {
	var names []string
	for i := range results {
		if !results[i].Available {
			names = append(names, results[i].Name)
		}
	}
	return names
}
