// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package nand

import (
	"fmt"
	"sync"

	"github.com/dswarbrick/flashcore/ferrors"
)

// EccStatus classifies the outcome of an ECC check.
type EccStatus int

const (
	EccOK EccStatus = iota
	EccCorrected
	EccCriticalCorrected
	EccUncorrectable
)

func (s EccStatus) String() string {
	switch s {
	case EccOK:
		return "ok"
	case EccCorrected:
		return "corrected"
	case EccCriticalCorrected:
		return "critically corrected"
	case EccUncorrectable:
		return "uncorrectable"
	default:
		return fmt.Sprintf("EccStatus(%d)", int(s))
	}
}

// ToErrorCode maps a non-OK EccStatus onto the matching ferrors.Code.
func (s EccStatus) ToErrorCode() (ferrors.Code, bool) {
	switch s {
	case EccCorrected:
		return ferrors.EccCorr, true
	case EccCriticalCorrected:
		return ferrors.EccCriticalCorr, true
	case EccUncorrectable:
		return ferrors.EccUncorr, true
	default:
		return 0, false
	}
}

// worseEcc returns the more severe of two EccStatus values in the hierarchy
// ok < corrected < critical-corrected < uncorrectable.
func worseEcc(a, b EccStatus) EccStatus {
	if b > a {
		return b
	}
	return a
}

// ExtData is the opaque per-controller state an Extension's Open returns.
type ExtData interface{}

// Extension is the ECC/read-status capability set a part family may supply
// to the generic controller. Only Init is mandatory; every other member is
// optional and detected via the small interfaces below, since "any member
// may be absent" per the controller's extension contract.
type Extension interface {
	Init() error
}

// ExtOpener opens per-controller extension state.
type ExtOpener interface {
	Open(cfg any) (ExtData, error)
}

// ExtCloser releases per-controller extension state.
type ExtCloser interface {
	Close(ExtData) error
}

// ExtSetuper reserves octets of each sector's OOS area for ECC metadata.
type ExtSetuper interface {
	Setup(ExtData) (reservedOctets uint32, err error)
}

// ExtStatusChecker reads the device's own ECC/status indication, if the
// part family exposes one independent of ECC_Verify.
type ExtStatusChecker interface {
	RdStatusChk(ExtData) (EccStatus, error)
}

// ExtEccCalculator computes ECC parity over a sector and its OOS, writing
// the parity into the reserved portion of oosBuf.
type ExtEccCalculator interface {
	ECCCalc(data ExtData, secBuf, oosBuf []byte) error
}

// ExtEccVerifier checks a sector's ECC parity against its data, returning
// the worst ECC outcome found.
type ExtEccVerifier interface {
	ECCVerify(data ExtData, secBuf, oosBuf []byte) (EccStatus, error)
}

// maxExtensions bounds the process-wide extension registry.
const maxExtensions = 8

type extensionRegistry struct {
	mu      sync.Mutex
	entries []Extension
}

var globalExtensions extensionRegistry

// RegisterExtension adds ext to the process-wide registry, calling its
// Init exactly once. Re-registering the same Extension value is a no-op,
// matching the "is this pointer already registered?" idempotence the
// registry enforces.
func RegisterExtension(ext Extension) error {
	globalExtensions.mu.Lock()
	defer globalExtensions.mu.Unlock()

	for _, e := range globalExtensions.entries {
		if e == ext {
			return nil
		}
	}
	if len(globalExtensions.entries) >= maxExtensions {
		return ferrors.New(ferrors.MemAlloc, "RegisterExtension", fmt.Errorf("extension registry full (max %d)", maxExtensions))
	}
	if err := ext.Init(); err != nil {
		return ferrors.New(ferrors.InvalidCfg, "RegisterExtension", err)
	}
	globalExtensions.entries = append(globalExtensions.entries, ext)
	return nil
}

// resetExtensionRegistry clears the registry. Test-only.
func resetExtensionRegistry() {
	globalExtensions.mu.Lock()
	defer globalExtensions.mu.Unlock()
	globalExtensions.entries = nil
}
