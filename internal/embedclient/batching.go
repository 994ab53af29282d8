// Copyright (C) 2026 ragserve contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package embedclient

// Batch size bounds. BaseBatch is configurable (EMBED_BASE_BATCH);
// MinBatch and MaxBatch floor/ceiling whatever the dynamic sizing
// computes.
const (
	MinBatch = 10
	MaxBatch = 200

	shortTextThreshold = 500
	longTextThreshold  = 2000
)

// dynamicBatchSize computes the effective batch size for a set of
// input texts based on their mean length, per spec: short inputs
// (<500 chars) get up to 2x the base, medium get the base, long
// inputs (>2000 chars) get base/2. If nearRateLimit is true (the
// recent request rate is within 80% of the per-minute limit) the
// result is halved again, then the Min/MaxBatch bounds are enforced
// last.
func dynamicBatchSize(base int, texts []string, nearRateLimit bool) int {
	if base <= 0 {
		base = 100
	}
	size := base

	if len(texts) > 0 {
		total := 0
		for _, t := range texts {
			total += len(t)
		}
		mean := total / len(texts)
		switch {
		case mean < shortTextThreshold:
			size = base * 2
		case mean > longTextThreshold:
			size = base / 2
		default:
			size = base
		}
	}

	if nearRateLimit {
		size /= 2
	}

	if size < MinBatch {
		size = MinBatch
	}
	if size > MaxBatch {
		size = MaxBatch
	}
	return size
}

// partition splits texts into batches of at most size items each,
// preserving order. A size <= 0 returns a single batch containing all
// of texts.
func partition(texts []string, size int) [][]string {
	if size <= 0 || len(texts) <= size {
		return [][]string{texts}
	}
	var batches [][]string
	for i := 0; i < len(texts); i += size {
		end := i + size
		if end > len(texts) {
			end = len(texts)
		}
		batches = append(batches, texts[i:end])
	}
	return batches
}

// truncate clips text to maxChars, reporting whether truncation
// occurred so the caller can record a warning (spec: a single warning
// per truncated text, not per character).
func truncate(text string, maxChars int) (string, bool) {
	if maxChars <= 0 || len(text) <= maxChars {
		return text, false
	}
	return text[:maxChars], true
}
