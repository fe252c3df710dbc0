package retrieval

import "github.com/raskolnikoff/noesisnoema/chunk"

// MMR greedily selects up to k candidates maximizing
//
//	λ·cos(queryEmbedding, c) − (1−λ)·max_{s∈selected} cos(c, s)
//
// where the diversity term is 0 while selected is empty. Ties are broken
// by the candidate's position in the input slice. Selection stops at k
// items or when candidates are exhausted. λ is clamped to [0,1].
func MMR(queryEmbedding []float32, candidates []chunk.Chunk, k int, lambda float32) []chunk.Chunk {
	if lambda < 0 {
		lambda = 0
	}
	if lambda > 1 {
		lambda = 1
	}
	if k <= 0 || len(candidates) == 0 {
		return nil
	}
	if k > len(candidates) {
		k = len(candidates)
	}

	remaining := make([]int, len(candidates))
	for i := range candidates {
		remaining[i] = i
	}

	selected := make([]chunk.Chunk, 0, k)

	for len(selected) < k && len(remaining) > 0 {
		bestPos := -1
		var bestScore float64 = -1e18

		for pos, idx := range remaining {
			relevance := chunk.Cosine(queryEmbedding, candidates[idx].Embedding)

			diversity := 0.0
			for _, sel := range selected {
				sim := chunk.Cosine(candidates[idx].Embedding, sel.Embedding)
				if sim > diversity {
					diversity = sim
				}
			}

			score := float64(lambda)*relevance - float64(1-lambda)*diversity
			if score > bestScore {
				bestScore = score
				bestPos = pos
			}
		}

		chosenIdx := remaining[bestPos]
		selected = append(selected, candidates[chosenIdx])
		remaining = append(remaining[:bestPos], remaining[bestPos+1:]...)
	}

	return selected
}
