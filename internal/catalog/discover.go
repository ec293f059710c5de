package catalog

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/launchwatch/monitor/internal/errkind"
	"github.com/launchwatch/monitor/internal/model"
)

// DiscoverProject loops at pollInterval, merging createdAt:desc and
// launchedAt:desc listings and applying the selection policy, until
// a candidate is selected or ctx is cancelled. It returns a fatal
// error after discoverMaxFails consecutive fetch failures.
func (c *Client) DiscoverProject(ctx context.Context, pollInterval time.Duration, taxWindow time.Duration) (*model.ProjectDescriptor, error) {
	consecutiveFails := 0
	delay := discoverBaseDelay

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		candidates, err := c.fetchDiscoveryCandidates(ctx)
		if err != nil {
			consecutiveFails++
			c.log.Warn().Err(err).Int("consecutiveFails", consecutiveFails).Msg("catalog discovery fetch failed")
			if consecutiveFails >= discoverMaxFails {
				return nil, errkind.NewExhausted(fmt.Errorf("catalog discovery failed %d times in a row: %w", consecutiveFails, err))
			}
			if !sleepOrDone(ctx, delay) {
				return nil, ctx.Err()
			}
			delay *= 2
			if delay > discoverMaxDelay {
				delay = discoverMaxDelay
			}
			continue
		}
		consecutiveFails = 0
		delay = discoverBaseDelay

		if selected := c.selectCandidate(candidates, taxWindow); selected != nil {
			return selected, nil
		}

		if !sleepOrDone(ctx, pollInterval) {
			return nil, ctx.Err()
		}
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (c *Client) fetchDiscoveryCandidates(ctx context.Context) ([]model.ProjectDescriptor, error) {
	type result struct {
		page Page
		err  error
	}
	createdCh := make(chan result, 1)
	launchedCh := make(chan result, 1)

	go func() {
		p, err := c.ListBySort(ctx, SortCreatedAtDesc, 1, 50)
		createdCh <- result{p, err}
	}()
	go func() {
		p, err := c.ListBySort(ctx, SortLaunchedAtDesc, 1, 50)
		launchedCh <- result{p, err}
	}()

	created := <-createdCh
	launched := <-launchedCh
	if created.err != nil {
		return nil, created.err
	}
	if launched.err != nil {
		return nil, launched.err
	}

	merged := make(map[int64]model.ProjectDescriptor)
	var order []int64
	for _, p := range [][]model.ProjectDescriptor{created.page.Items, launched.page.Items} {
		for _, d := range p {
			if _, seen := merged[d.ID]; !seen {
				merged[d.ID] = d
				order = append(order, d.ID)
			}
		}
	}
	out := make([]model.ProjectDescriptor, 0, len(order))
	for _, id := range order {
		out = append(out, merged[id])
	}
	return out, nil
}

// selectCandidate implements the discover_project selection policy:
//  1. keep status=undergrad, preTokenPair present, lpAddress absent
//  2. compute T0, drop candidates with a zero anchor time
//  3. prefer candidates where now is within [T0, T0+taxWindow], sorted
//     by T0 descending; fall back to the full set with the same sort
//  4. within the chosen set, a preferredTicker match wins, else the
//     first by the sort above
func (c *Client) selectCandidate(candidates []model.ProjectDescriptor, taxWindow time.Duration) *model.ProjectDescriptor {
	var eligible []model.ProjectDescriptor
	for _, d := range candidates {
		if d.Status != model.StatusUndergrad {
			continue
		}
		if d.PreTokenPair == nil || *d.PreTokenPair == "" {
			continue
		}
		if d.LPAddress != nil && *d.LPAddress != "" {
			continue
		}
		if d.AnchorTime().IsZero() {
			continue
		}
		eligible = append(eligible, d)
	}
	if len(eligible) == 0 {
		return nil
	}

	now := time.Now()
	var preferred []model.ProjectDescriptor
	for _, d := range eligible {
		t0 := d.AnchorTime()
		if !t0.After(now) && !now.After(t0.Add(taxWindow)) {
			preferred = append(preferred, d)
		}
	}
	pool := preferred
	if len(pool) == 0 {
		pool = eligible
	}

	sort.Slice(pool, func(i, j int) bool {
		return pool[i].AnchorTime().After(pool[j].AnchorTime())
	})

	if c.preferredTicker != "" {
		for i := range pool {
			if pool[i].Symbol == c.preferredTicker {
				return &pool[i]
			}
		}
	}
	return &pool[0]
}
