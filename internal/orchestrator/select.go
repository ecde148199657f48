package orchestrator

import (
	"voicebridge/internal/flow"
)

// selectProvider picks the backend for a new call. A healthy preferred
// provider wins; otherwise scoring-based selection runs, unless
// intelligent routing is disabled, in which case the pick is uniformly
// random among registered providers.
func (o *Orchestrator) selectProvider(preferred string) (string, error) {
	if preferred != "" {
		if _, ok := o.registry.Get(preferred); ok && o.engine.IsProviderHealthy(preferred) {
			return preferred, nil
		}
	}
	if o.cfg.DisableIntelligentRouting {
		return o.selectRandomProvider()
	}
	return o.selectIntelligentProvider(nil)
}

// selectFallbackProvider re-selects among healthy providers other than
// the one that just exhausted its retries.
func (o *Orchestrator) selectFallbackProvider(exclude string) (string, error) {
	return o.selectIntelligentProvider(func(name string) bool { return name != exclude })
}

// selectIntelligentProvider scores every healthy provider and returns
// the best one. Scoring starts at 100, rewards historical success rate,
// and penalizes slow and failing providers:
//
//	score = 100 + successRate*50 - (avgDurationMs/1000)*0.1 - failureRate*100
//
// Ties resolve in registration order.
func (o *Orchestrator) selectIntelligentProvider(keep func(string) bool) (string, error) {
	health := o.engine.Health()

	var candidates []string
	for _, name := range o.registry.Names() {
		if keep != nil && !keep(name) {
			continue
		}
		if h, ok := health[name]; ok && !h.IsHealthy {
			continue
		}
		candidates = append(candidates, name)
	}
	if len(candidates) == 0 {
		return "", ErrNoHealthyProviders
	}

	metrics := o.engine.AllMetrics()

	best := ""
	bestScore := 0.0
	for _, name := range candidates {
		score := 100.0

		var total, successes int
		var totalDuration float64
		for _, m := range metrics {
			if m.Provider != name {
				continue
			}
			total++
			if m.Outcome == flow.OutcomeSuccess {
				successes++
			}
			totalDuration += float64(m.Duration.Milliseconds())
		}
		if total > 0 {
			successRate := float64(successes) / float64(total)
			avgDuration := totalDuration / float64(total)
			score += successRate * 50
			score -= (avgDuration / 1000) * 0.1
		}
		if h, ok := health[name]; ok {
			score -= h.FailureRate * 100
		}

		if best == "" || score > bestScore {
			best = name
			bestScore = score
		}
	}
	return best, nil
}

func (o *Orchestrator) selectRandomProvider() (string, error) {
	names := o.registry.Names()
	if len(names) == 0 {
		return "", ErrNoProviders
	}
	o.mu.Lock()
	i := o.rng.Intn(len(names))
	o.mu.Unlock()
	return names[i], nil
}
