// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Package ferrors defines the error taxonomy shared by every driver family
// in flashcore: a single Code enum plus a wrapping Error type, and a small
// process-wide counter table keyed by Code.
package ferrors

import (
	"fmt"
	"sync"
)

// Code identifies the kind of failure a driver operation returned.
type Code int

const (
	InvalidCfg Code = iota
	InvalidLowParams
	InvalidUnitNbr
	InvalidOp
	InvalidIoCtl
	IO
	Timeout
	MemAlloc
	EccCorr
	EccCriticalCorr
	EccUncorr
	WrProt
	OpFailed
)

func (c Code) String() string {
	switch c {
	case InvalidCfg:
		return "invalid configuration"
	case InvalidLowParams:
		return "invalid low-level parameters"
	case InvalidUnitNbr:
		return "invalid unit number"
	case InvalidOp:
		return "operation not supported"
	case InvalidIoCtl:
		return "invalid io-ctl opcode"
	case IO:
		return "bus/command I/O fault"
	case Timeout:
		return "operation timed out"
	case MemAlloc:
		return "allocation failed"
	case EccCorr:
		return "ECC corrected"
	case EccCriticalCorr:
		return "ECC critically corrected"
	case EccUncorr:
		return "ECC uncorrectable"
	case WrProt:
		return "device is write protected"
	case OpFailed:
		return "device reported operation failure"
	default:
		return fmt.Sprintf("ferrors.Code(%d)", int(c))
	}
}

// Error wraps a Code with the operation name and, optionally, an underlying
// cause. It satisfies the standard error interface and supports errors.Is /
// errors.As via Unwrap.
type Error struct {
	Code Code
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error for operation op with the given code, optionally
// wrapping cause (nil is fine).
func New(code Code, op string, cause error) *Error {
	return &Error{Code: code, Op: op, Err: cause}
}

// Is reports whether err (or any error it wraps) is a flashcore *Error with
// the given code.
func Is(err error, code Code) bool {
	for err != nil {
		if fe, ok := err.(*Error); ok {
			if fe.Code == code {
				return true
			}
			err = fe.Err
			continue
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// statsTable is a process-wide, mutex-guarded counter table, one counter per
// Code, incremented whenever a driver surfaces that Code to its caller.
type statsTable struct {
	mu     sync.Mutex
	counts map[Code]uint64
}

var globalStats = statsTable{counts: make(map[Code]uint64)}

// Incr bumps the counter for code by one.
func Incr(code Code) {
	globalStats.mu.Lock()
	defer globalStats.mu.Unlock()
	globalStats.counts[code]++
}

// Snapshot returns a copy of the current counter table.
func Snapshot() map[Code]uint64 {
	globalStats.mu.Lock()
	defer globalStats.mu.Unlock()
	out := make(map[Code]uint64, len(globalStats.counts))
	for k, v := range globalStats.counts {
		out[k] = v
	}
	return out
}

// Reset clears all counters. Intended for test isolation.
func Reset() {
	globalStats.mu.Lock()
	defer globalStats.mu.Unlock()
	globalStats.counts = make(map[Code]uint64)
}
