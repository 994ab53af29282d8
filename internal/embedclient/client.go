// Copyright (C) 2026 ragserve contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package embedclient implements the Embedding Client: a pooled,
// batched, rate-limited, retrying HTTP client over a remote
// text-to-vector provider. It is the component the Retrieval Pipeline
// calls (through the Cache Layer) to turn query text into a vector.
//
// # Architecture
//
// A single Embedder interface (Embed, EmbedOne, Dimension, Close) is
// implemented by Client. Cross-cutting behavior — pooling, batching,
// rate limiting, bounded concurrency, retries — lives inside Client
// rather than as a stack of decorators, so there is exactly one place
// to read to understand a call's full behavior.
//
// # Thread Safety
//
// Client is safe for concurrent use. Its only mutable state is the
// shared HTTP client (process-wide, guarded by a sync.Once), a
// semaphore, and the rate limiter's timestamp slice (mutex-guarded).
package embedclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/ragserve/ragserve/internal/apierr"
	"github.com/ragserve/ragserve/internal/concurrency"
	"github.com/ragserve/ragserve/internal/domain"
)

// MaxTokens bounds a single input text; MaxChars is the character
// equivalent used for truncation (≈ MaxTokens × 4).
const (
	MaxTokens       = 8000
	MaxChars        = MaxTokens * 4
	defaultRetries  = 3
	defaultBaseWait = 200 * time.Millisecond
)

// Embedder is the capability the rest of ragserve depends on: convert
// text to vectors. Provider-specific behavior (auth, wire format) is
// hidden behind Client; selection happens at construction time via
// Config, not via a class hierarchy of provider subtypes.
type Embedder interface {
	// Embed converts texts to vectors, preserving order: result[i]
	// corresponds to texts[i]. An empty input returns an empty result
	// with no HTTP call.
	Embed(ctx context.Context, texts []string) (Result, error)
	// EmbedOne is a convenience wrapper around Embed for a single text.
	EmbedOne(ctx context.Context, text string) ([]float32, error)
	// Dimension returns the fixed vector length this embedder produces.
	Dimension() int
	// Provider returns the embedding provider tag this embedder's
	// vectors are filed under in the Vector Store Gateway.
	Provider() domain.EmbeddingProvider
	// Model returns the provider-specific model identifier, used by
	// callers (the Cache Layer's embedding key) to key cached vectors
	// so switching models never serves a stale one.
	Model() string
	// Close releases pooled resources. Idempotent.
	Close() error
}

// Result is the output of Embed: vectors in input order, plus
// degradation signals so callers can detect a partially-failed batch
// without treating the whole call as an error.
type Result struct {
	Vectors  [][]float32
	Warnings []string
	// ErrorCount is the number of input slots that were filled with a
	// zero vector after retries were exhausted for their batch.
	ErrorCount int
}

// Config configures a Client.
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	Dim        int
	Provider   domain.EmbeddingProvider
	RatePerMin int
	Concurrency int
	BaseBatch  int
	Retries    int
	BaseWait   time.Duration
}

// Client is the default Embedder implementation: one HTTP client
// shared across all calls (see pool.go), a counting semaphore
// bounding in-flight provider requests, and a sliding-window rate
// limiter.
type Client struct {
	cfg     Config
	http    *http.Client
	sem     *concurrency.Semaphore
	limiter *slidingWindow
	closed  bool
}

// New constructs a Client. The shared HTTP client is initialized
// lazily on first use (not here), matching the teacher's one-time
// init-guard pattern.
func New(cfg Config) *Client {
	if cfg.Retries <= 0 {
		cfg.Retries = defaultRetries
	}
	if cfg.BaseWait <= 0 {
		cfg.BaseWait = defaultBaseWait
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 3
	}
	if cfg.BaseBatch <= 0 {
		cfg.BaseBatch = 100
	}
	return &Client{
		cfg:     cfg,
		http:    sharedHTTPClient(),
		sem:     concurrency.NewSemaphore(cfg.Concurrency),
		limiter: newSlidingWindow(cfg.RatePerMin),
	}
}

func (c *Client) Dimension() int                     { return c.cfg.Dim }
func (c *Client) Provider() domain.EmbeddingProvider { return c.cfg.Provider }
func (c *Client) Model() string                      { return c.cfg.Model }

// Close marks the client closed. Idempotent; the shared HTTP
// transport itself is process-wide and is not torn down here (it is
// reused by any Client constructed later in the same process).
func (c *Client) Close() error {
	c.closed = true
	return nil
}

// EmbedOne embeds a single text.
func (c *Client) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	res, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(res.Vectors) == 0 {
		return nil, apierr.UpstreamUnavailable("embedding provider returned no vectors", nil)
	}
	return res.Vectors[0], nil
}

// Embed converts texts to vectors in input order. Empty input short
// circuits with no HTTP call. Inputs longer than MaxChars are
// truncated with a recorded warning. If the input fits in one
// dynamically-sized batch, a single HTTP call is made; otherwise
// batches are dispatched concurrently (bounded by cfg.Concurrency)
// and reassembled in order. A batch that exhausts retries contributes
// zero vectors and increments Result.ErrorCount rather than failing
// the whole call, so downstream ranking code can still proceed.
func (c *Client) Embed(ctx context.Context, texts []string) (Result, error) {
	if c.closed {
		return Result{}, apierr.ErrClientClosed
	}
	if len(texts) == 0 {
		return Result{}, nil
	}

	prepared := make([]string, len(texts))
	var warnings []string
	for i, t := range texts {
		if t == "" {
			return Result{}, apierr.Validation("embedding input text must not be empty", nil)
		}
		truncated, didTruncate := truncate(t, MaxChars)
		prepared[i] = truncated
		if didTruncate {
			warnings = append(warnings, fmt.Sprintf("input %d truncated to %d characters", i, MaxChars))
		}
	}

	size := dynamicBatchSize(c.cfg.BaseBatch, prepared, c.limiter.NearLimit())
	batches := partition(prepared, size)

	if len(batches) == 1 {
		vecs, err := c.embedBatchWithRetry(ctx, batches[0])
		if err != nil {
			return Result{}, err
		}
		return Result{Vectors: vecs, Warnings: warnings}, nil
	}

	results, errs := concurrency.MapOrdered(ctx, concurrency.NewSemaphore(c.cfg.Concurrency), batches, func(ctx context.Context, batch []string) ([][]float32, error) {
		return c.embedBatchWithRetry(ctx, batch)
	})

	out := make([][]float32, 0, len(prepared))
	errCount := 0
	for i, batch := range batches {
		if errs[i] != nil {
			errCount += len(batch)
			for range batch {
				out = append(out, make([]float32, c.cfg.Dim))
			}
			warnings = append(warnings, fmt.Sprintf("batch %d failed after retries: %v", i, errs[i]))
			continue
		}
		out = append(out, results[i]...)
	}

	return Result{Vectors: out, Warnings: warnings, ErrorCount: errCount}, nil
}

// embedBatchWithRetry issues one provider call per batch, retrying
// transport errors, 5xx, and 429 with exponential backoff and jitter.
// 4xx other than 429 is returned immediately without retrying.
func (c *Client) embedBatchWithRetry(ctx context.Context, batch []string) ([][]float32, error) {
	if err := c.sem.Acquire(ctx); err != nil {
		return nil, apierr.Cancelled(err)
	}
	defer c.sem.Release()

	var lastErr error
	for attempt := 1; attempt <= c.cfg.Retries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, apierr.Cancelled(err)
		}

		vecs, retryAfter, err := c.callProvider(ctx, batch)
		if err == nil {
			return vecs, nil
		}

		lastErr = err
		var apiErr *apierr.Error
		if e, ok := apierr.As(err); ok {
			apiErr = e
			if apiErr.Kind == apierr.KindUpstreamPermanent {
				return nil, err
			}
		}
		if attempt == c.cfg.Retries {
			break
		}

		wait := retryAfter
		if wait <= 0 {
			wait = backoff(c.cfg.BaseWait, attempt)
		}
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, apierr.Cancelled(ctx.Err())
		}
	}
	return nil, apierr.UpstreamUnavailable("embedding provider unavailable after retries", lastErr)
}

// backoff computes base * 2^(attempt-1) with +/-25% jitter.
func backoff(base time.Duration, attempt int) time.Duration {
	exp := base << (attempt - 1)
	jitter := time.Duration(rand.Int63n(int64(exp)/2+1)) - exp/4
	d := exp + jitter
	if d < 0 {
		d = base
	}
	return d
}

type providerRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type providerResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// callProvider issues one HTTP call to the embedding provider. It
// returns a non-zero retryAfter when the provider sent a Retry-After
// header on a 429.
func (c *Client) callProvider(ctx context.Context, batch []string) (vecs [][]float32, retryAfter time.Duration, err error) {
	// Deliberately does not set "encoding_format": some providers
	// reject that field with 422.
	reqBody := providerRequest{Model: c.cfg.Model, Input: batch}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, 0, apierr.Validation("marshal embedding request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, 0, apierr.Validation("build embedding request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, apierr.Cancelled(ctx.Err())
		}
		return nil, 0, apierr.UpstreamUnavailable("embedding transport error", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		ra := parseRetryAfter(resp.Header.Get("Retry-After"))
		payload, _ := io.ReadAll(resp.Body)
		return nil, ra, apierr.RateLimited("embedding provider rate limited", fmt.Errorf("%s", payload))
	}
	if resp.StatusCode >= 500 {
		payload, _ := io.ReadAll(resp.Body)
		return nil, 0, apierr.UpstreamUnavailable("embedding provider server error", fmt.Errorf("status %d: %s", resp.StatusCode, payload))
	}
	if resp.StatusCode >= 400 {
		payload, _ := io.ReadAll(resp.Body)
		return nil, 0, apierr.UpstreamPermanent("embedding provider rejected request", fmt.Errorf("status %d: %s", resp.StatusCode, payload))
	}

	var parsed providerResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, 0, apierr.UpstreamUnavailable("decode embedding response", err)
	}

	vecs = make([][]float32, len(parsed.Data))
	for i, d := range parsed.Data {
		vecs[i] = d.Embedding
	}
	return vecs, 0, nil
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil {
		return time.Duration(secs) * time.Second
	}
	if when, err := http.ParseTime(header); err == nil {
		return time.Until(when)
	}
	return 0
}
