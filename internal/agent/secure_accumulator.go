// Copyright (C) 2026 ragserve contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agent

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/awnumar/memguard"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

// answerBufferSize bounds one streamed answer's accumulated size. 256 KB
// covers long RAG answers with citation-heavy prose; ChatStream's token
// callback returns an error once the buffer fills rather than growing it,
// so a single runaway turn can't hold the buffer open indefinitely.
const answerBufferSize = 256 * 1024

// minMlockLimitKB is the minimum RLIMIT_MEMLOCK, in kilobytes, RunStream
// requires before it will mlock a streamed answer. Below it, RunStream
// fails the turn unless RAGSERVE_INSECURE_MEMORY=true selects a plain
// buffer instead.
const minMlockLimitKB = 512

var (
	memguardInitOnce    sync.Once
	mlockSufficient     bool
	currentMlockLimitKB int64
)

// answerAccumulator collects the tokens RunStream receives from one
// streamed CallModel round. Tokens are hashed incrementally so the
// persisted assistant Message carries an integrity hash of exactly what
// was streamed to the client, not a recomputation after the fact.
type answerAccumulator interface {
	Write(token string) error
	Finalize() (answer string, sha256Hex string, err error)
	Destroy()
}

// securedAccumulator stores the streamed answer in an mlocked
// memguard.LockedBuffer so it is never paged to swap while in flight.
type securedAccumulator struct {
	id        string
	createdAt time.Time
	mu        sync.Mutex
	buffer    *memguard.LockedBuffer
	offset    int
	hasher    hash.Hash
	overflow  bool
	destroyed bool
}

// plainAccumulator is the fallback used when the host's mlock limit is
// too low to guarantee the buffer stays resident and
// RAGSERVE_INSECURE_MEMORY=true opts out of the guarantee explicitly.
type plainAccumulator struct {
	id        string
	createdAt time.Time
	mu        sync.Mutex
	data      []byte
	hasher    hash.Hash
	overflow  bool
	destroyed bool
}

// newAnswerAccumulator returns a securedAccumulator when the host's
// mlock limit is sufficient. On a host with a tight mlock ulimit it
// returns an error, unless RAGSERVE_INSECURE_MEMORY=true, in which case
// it returns a plainAccumulator that streams the answer without the
// swap guarantee.
func newAnswerAccumulator() (answerAccumulator, error) {
	memguardInitOnce.Do(func() {
		memguard.CatchInterrupt()
		mlockSufficient, currentMlockLimitKB = checkMlockLimit()
		logMlockStatus()
	})

	if !mlockSufficient {
		if os.Getenv("RAGSERVE_INSECURE_MEMORY") != "true" {
			return nil, fmt.Errorf("agent: mlock limit %dKB below required %dKB; set RAGSERVE_INSECURE_MEMORY=true to accumulate streamed answers unlocked", currentMlockLimitKB, minMlockLimitKB)
		}
		id := accumulatorID()
		slog.Warn("agent: accumulating streamed answer unlocked", "accumulator_id", id)
		return &plainAccumulator{id: id, createdAt: time.Now(), data: make([]byte, 0, answerBufferSize), hasher: sha256.New()}, nil
	}

	buf := memguard.NewBuffer(answerBufferSize)
	if buf == nil {
		return nil, fmt.Errorf("agent: failed to allocate %d-byte secure answer buffer", answerBufferSize)
	}
	buf.Melt()
	id := accumulatorID()
	slog.Debug("agent: accumulating streamed answer in mlocked buffer", "accumulator_id", id)
	return &securedAccumulator{id: id, createdAt: time.Now(), buffer: buf, hasher: sha256.New()}, nil
}

func checkMlockLimit() (bool, int64) {
	var rlimit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_MEMLOCK, &rlimit); err != nil {
		slog.Warn("agent: could not read mlock limit, assuming sufficient", "error", err)
		return true, -1
	}
	if rlimit.Cur == unix.RLIM_INFINITY {
		return true, -1
	}
	limitKB := int64(rlimit.Cur / 1024)
	return limitKB >= minMlockLimitKB, limitKB
}

func logMlockStatus() {
	if mlockSufficient {
		return
	}
	slog.Warn("agent: mlock limit insufficient for secure answer accumulation",
		"mlock_limit_kb", currentMlockLimitKB,
		"required_kb", minMlockLimitKB,
	)
}

func (a *securedAccumulator) Write(token string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.destroyed {
		return fmt.Errorf("agent: accumulator destroyed")
	}
	if a.overflow {
		return fmt.Errorf("agent: answer buffer overflow")
	}

	b := []byte(token)
	if a.offset+len(b) > answerBufferSize {
		a.overflow = true
		return fmt.Errorf("agent: answer exceeds %d-byte buffer", answerBufferSize)
	}

	copy(a.buffer.Bytes()[a.offset:], b)
	a.offset += len(b)
	a.hasher.Write(b)
	return nil
}

func (a *securedAccumulator) Finalize() (string, string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.destroyed {
		return "", "", fmt.Errorf("agent: accumulator destroyed")
	}
	if a.overflow {
		a.wipe()
		return "", "", fmt.Errorf("agent: answer overflowed accumulator")
	}

	answer := string(a.buffer.Bytes()[:a.offset])
	sum := hex.EncodeToString(a.hasher.Sum(nil))
	a.wipe()
	slog.Debug("agent: finalized secure answer accumulator", "accumulator_id", a.id, "answer_bytes", len(answer), "age", time.Since(a.createdAt))
	return answer, sum, nil
}

func (a *securedAccumulator) Destroy() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.destroyed {
		return
	}
	a.wipe()
}

func (a *securedAccumulator) wipe() {
	if a.buffer != nil {
		a.buffer.Destroy()
	}
	a.destroyed = true
}

func (a *plainAccumulator) Write(token string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.destroyed {
		return fmt.Errorf("agent: accumulator destroyed")
	}
	if a.overflow {
		return fmt.Errorf("agent: answer buffer overflow")
	}

	b := []byte(token)
	if len(a.data)+len(b) > answerBufferSize {
		a.overflow = true
		return fmt.Errorf("agent: answer exceeds %d-byte buffer", answerBufferSize)
	}

	a.data = append(a.data, b...)
	a.hasher.Write(b)
	return nil
}

func (a *plainAccumulator) Finalize() (string, string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.destroyed {
		return "", "", fmt.Errorf("agent: accumulator destroyed")
	}
	if a.overflow {
		a.wipe()
		return "", "", fmt.Errorf("agent: answer overflowed accumulator")
	}

	answer := string(a.data)
	sum := hex.EncodeToString(a.hasher.Sum(nil))
	a.wipe()
	slog.Debug("agent: finalized unlocked answer accumulator", "accumulator_id", a.id, "answer_bytes", len(answer), "age", time.Since(a.createdAt))
	return answer, sum, nil
}

func (a *plainAccumulator) Destroy() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.destroyed {
		return
	}
	a.wipe()
}

func (a *plainAccumulator) wipe() {
	for i := range a.data {
		a.data[i] = 0
	}
	a.data = nil
	a.destroyed = true
}

// accumulatorID exists only so log lines can correlate a destroyed
// accumulator back to the turn that created it without exposing any of
// its contents.
func accumulatorID() string {
	return uuid.New().String()
}
