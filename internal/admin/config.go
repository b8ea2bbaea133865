package admin

import (
	"errors"
	"sync"

	"clob/internal/fixed"
)

var (
	ErrInvalidFeeRate    = errors.New("admin: fee rate out of range")
	ErrPairAlreadyExists = errors.New("admin: pair already supported")
	ErrPairNotSupported  = errors.New("admin: pair not supported")
)

// Pair identifies a tradable (base, quote) market.
type Pair struct {
	Base  string
	Quote string
}

// FeeConfig holds the mutable maker/taker fee rates and the fee recipient.
// Only a held PrincipalSet member may change it.
type FeeConfig struct {
	mu         sync.RWMutex
	makerBps   fixed.Bps
	takerBps   fixed.Bps
	recipient  string
	principals *PrincipalSet
}

func NewFeeConfig(principals *PrincipalSet, makerBps, takerBps fixed.Bps, recipient string) (*FeeConfig, error) {
	if makerBps > fixed.BpsDenominator || takerBps > fixed.BpsDenominator {
		return nil, ErrInvalidFeeRate
	}
	return &FeeConfig{
		makerBps:   makerBps,
		takerBps:   takerBps,
		recipient:  recipient,
		principals: principals,
	}, nil
}

func (f *FeeConfig) Rates() (makerBps, takerBps fixed.Bps) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.makerBps, f.takerBps
}

func (f *FeeConfig) Recipient() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.recipient
}

// SetRates updates the maker/taker rates, gated on the caller holding the
// admin capability. It does not publish FeeRateUpdated itself; FeeConfig
// has no events.Sink of its own, since nothing in this engine calls
// SetRates yet (fee rates are fixed at wiring time — see cmd/server).
func (f *FeeConfig) SetRates(caller Principal, makerBps, takerBps fixed.Bps) error {
	if !f.principals.IsAdmin(caller) {
		return ErrUnauthorized
	}
	if makerBps > fixed.BpsDenominator || takerBps > fixed.BpsDenominator {
		return ErrInvalidFeeRate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.makerBps, f.takerBps = makerBps, takerBps
	return nil
}

// PairSet is a supported-pair allow-list, mutable only through an admin
// principal, mirroring FeeConfig. The order path does not consult it: each
// Facade serves one pair, and the server rejects a request for a pair it
// has no Facade for.
type PairSet struct {
	mu         sync.RWMutex
	pairs      map[Pair]struct{}
	principals *PrincipalSet
}

func NewPairSet(principals *PrincipalSet, initial ...Pair) *PairSet {
	s := &PairSet{pairs: make(map[Pair]struct{}, len(initial)), principals: principals}
	for _, p := range initial {
		s.pairs[p] = struct{}{}
	}
	return s
}

func (s *PairSet) IsSupported(p Pair) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.pairs[p]
	return ok
}

func (s *PairSet) Add(caller Principal, p Pair) error {
	if !s.principals.IsAdmin(caller) {
		return ErrUnauthorized
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pairs[p]; ok {
		return ErrPairAlreadyExists
	}
	s.pairs[p] = struct{}{}
	return nil
}

func (s *PairSet) Remove(caller Principal, p Pair) error {
	if !s.principals.IsAdmin(caller) {
		return ErrUnauthorized
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pairs[p]; !ok {
		return ErrPairNotSupported
	}
	delete(s.pairs, p)
	return nil
}
