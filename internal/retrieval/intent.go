// Copyright (C) 2026 ragserve contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package retrieval is the Retrieval Pipeline: it turns a user query
// string into a ranked, citation-bearing passage list, composing the
// Cache Layer, the Embedding Client, and the Vector Store Gateway.
package retrieval

import (
	"strings"

	"github.com/ragserve/ragserve/internal/domain"
)

type cue struct {
	phrase string
	weight float64
}

var intentCues = map[domain.Intent][]cue{
	domain.IntentFactual: {
		{"what is", 1}, {"what are", 1}, {"when", 0.6}, {"who", 0.6}, {"define", 1},
	},
	domain.IntentConceptual: {
		{"why", 1}, {"explain", 1}, {"how does", 1}, {"relate", 0.7}, {"relationship", 0.7},
	},
	domain.IntentProcedural: {
		{"how to", 1}, {"steps", 0.8}, {"implement", 0.8}, {"build", 0.6}, {"set up", 0.8}, {"configure", 0.6},
	},
}

// DetectIntent classifies query by lexical cues into one of the four
// intents. Deterministic and side-effect free: each matched cue adds
// its weight to that intent's score, scores are normalized to a
// distribution, and the argmax wins. A query that matches no cue is
// balanced; a tie between intents goes to the first of factual,
// conceptual, procedural, in that order.
func DetectIntent(query string) domain.Intent {
	lower := strings.ToLower(query)

	scores := make(map[domain.Intent]float64, len(intentCues))
	var total float64
	for intent, cues := range intentCues {
		for _, c := range cues {
			if strings.Contains(lower, c.phrase) {
				scores[intent] += c.weight
				total += c.weight
			}
		}
	}

	if total == 0 {
		return domain.IntentBalanced
	}

	best := domain.IntentBalanced
	var bestScore float64
	// Iterate in a fixed order so a genuine tie is resolved
	// deterministically rather than by map iteration order.
	for _, intent := range []domain.Intent{domain.IntentFactual, domain.IntentConceptual, domain.IntentProcedural} {
		score := scores[intent] / total
		if score > bestScore {
			bestScore = score
			best = intent
		}
	}
	return best
}

// HybridWeights maps an intent to its (w_vec, w_text) fusion weights
// for hybrid search.
func HybridWeights(intent domain.Intent) (wVec, wText float64) {
	switch intent {
	case domain.IntentFactual:
		return 0.4, 0.6
	case domain.IntentConceptual:
		return 0.8, 0.2
	case domain.IntentProcedural:
		return 0.6, 0.4
	default:
		return 0.7, 0.3
	}
}
