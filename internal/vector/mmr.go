package vector

import "math"

// MaxMarginalRelevance greedily picks k candidates balancing similarity to the query
// against similarity to already picked ones:
//
//	lambda*sim(query, d) - (1-lambda)*max(sim(d, s) for s in selected)
//
// Candidates must carry vectors. Selection order is preserved in the result and
// each hit keeps its query similarity as Score.
func MaxMarginalRelevance(query []float32, candidates []ScoredPoint, k int, lambda float64) []ScoredPoint {
	if k <= 0 || len(candidates) == 0 {
		return nil
	}
	if k > len(candidates) {
		k = len(candidates)
	}

	querySim := make([]float64, len(candidates))
	for i, c := range candidates {
		querySim[i] = CosineSimilarity(query, c.Vector)
	}

	selected := make([]int, 0, k)
	used := make([]bool, len(candidates))
	// maxSim[i] tracks the highest similarity of candidate i to any selected candidate.
	maxSim := make([]float64, len(candidates))
	for i := range maxSim {
		maxSim[i] = math.Inf(-1)
	}

	for len(selected) < k {
		best, bestScore := -1, math.Inf(-1)
		for i := range candidates {
			if used[i] {
				continue
			}
			redundancy := 0.0
			if len(selected) > 0 {
				redundancy = maxSim[i]
			}
			score := lambda*querySim[i] - (1-lambda)*redundancy
			if score > bestScore {
				best, bestScore = i, score
			}
		}
		used[best] = true
		selected = append(selected, best)
		for i := range candidates {
			if used[i] {
				continue
			}
			if s := CosineSimilarity(candidates[i].Vector, candidates[best].Vector); s > maxSim[i] {
				maxSim[i] = s
			}
		}
	}

	out := make([]ScoredPoint, len(selected))
	for i, idx := range selected {
		out[i] = candidates[idx]
		out[i].Score = querySim[idx]
	}
	return out
}
