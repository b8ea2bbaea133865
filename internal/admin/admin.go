// Package admin models the engine's authorization surface: the capability
// token that lets the Vault and Facade mutate the Registry, and the
// administrative state (fee configuration, supported pairs, admin
// principals) that only a held principal may change.
//
// This replaces the cyclic "owner" back-reference pattern the teacher wires
// up after construction (internal/engine.Engine holding a *Server that is
// itself constructed with the engine) with explicit capability tokens
// handed out once at construction time, per the redesign notes: no
// component mutates another's state by reaching through a runtime-mutable
// back-reference.
package admin

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

var ErrUnauthorized = errors.New("admin: unauthorized")

// Token is an unforgeable capability. Only code that was handed the same
// Token value the Registry was constructed with may call its mutating
// methods. Tokens compare by value; the embedded uuid makes a zero Token
// (accidentally constructed, never minted) always distinct from a minted
// one.
type Token struct {
	id uuid.UUID
}

// NewToken mints a fresh capability. Call exactly once per Registry at
// wiring time and hand the same Token to every component (Vault, Facade)
// that needs write access.
func NewToken() Token {
	return Token{id: uuid.New()}
}

func (t Token) valid() bool { return t.id != uuid.Nil }

// Authorize returns ErrUnauthorized unless held equals granted and both are
// valid (minted) tokens.
func Authorize(granted, held Token) error {
	if !granted.valid() || granted != held {
		return ErrUnauthorized
	}
	return nil
}

// Principal identifies a human or service account allowed to perform
// administrative configuration changes (fee rates, supported pairs).
type Principal string

// PrincipalSet is the mutable set of administrators. It is deliberately not
// a single "owner" field: the design notes call out that a single mutable
// owner field does not anticipate multi-principal operation.
type PrincipalSet struct {
	mu         sync.RWMutex
	principals map[Principal]struct{}
}

// NewPrincipalSet seeds the set with its initial administrators.
func NewPrincipalSet(initial ...Principal) *PrincipalSet {
	s := &PrincipalSet{principals: make(map[Principal]struct{}, len(initial))}
	for _, p := range initial {
		s.principals[p] = struct{}{}
	}
	return s
}

func (s *PrincipalSet) Add(caller, new Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.principals[caller]; !ok {
		return ErrUnauthorized
	}
	s.principals[new] = struct{}{}
	return nil
}

func (s *PrincipalSet) Remove(caller, target Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.principals[caller]; !ok {
		return ErrUnauthorized
	}
	delete(s.principals, target)
	return nil
}

// Transfer atomically removes `from` and adds `to`, as a single admin
// handoff rather than two separately-observable operations.
func (s *PrincipalSet) Transfer(caller, from, to Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.principals[caller]; !ok {
		return ErrUnauthorized
	}
	delete(s.principals, from)
	s.principals[to] = struct{}{}
	return nil
}

func (s *PrincipalSet) IsAdmin(p Principal) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.principals[p]
	return ok
}
