package assess

import (
	"context"
	"sync"

	"github.com/groblegark/payd/internal/breaker"
	"github.com/groblegark/payd/internal/model"
)

// Check pairs an evaluator with the circuit protecting it.
type Check struct {
	Name     string
	Breaker  *breaker.Breaker
	Assessor Assessor
}

// Run fans the checks out concurrently, each inside its breaker, and joins
// them with a real synchronization primitive. A failing check's error
// always reaches the join; when several fail, the error of the earliest
// check in the slice wins so the outcome is deterministic.
func Run(ctx context.Context, acct *model.Account, in Input, checks []Check) (map[string]Assessment, error) {
	results := make([]Assessment, len(checks))
	errs := make([]error, len(checks))

	var wg sync.WaitGroup
	for i, c := range checks {
		wg.Add(1)
		go func(i int, c Check) {
			defer wg.Done()
			errs[i] = c.Breaker.Execute(ctx, func(cctx context.Context) error {
				a, err := c.Assessor.Assess(cctx, acct, in)
				if err != nil {
					return err
				}
				results[i] = a
				return nil
			})
		}(i, c)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	out := make(map[string]Assessment, len(checks))
	for i, c := range checks {
		out[c.Name] = results[i]
	}
	return out, nil
}
