// Package ledger models the host surface that the blood-unit registry,
// cold-chain monitor, and access-control state machines are built on: a
// clock, caller authorization, tiered key/value storage, and an event bus.
// None of the three domain packages talk to Postgres or Redis directly —
// they talk to this package, the way a Soroban contract only ever talks to
// env.storage() / env.events() / env.ledger().
package ledger

import (
	"context"
	"errors"
)

// Address is a value-typed principal identifier (a Stellar/Soroban address
// in the original contracts). It is never a pointer or reference type.
type Address string

// Tier selects one of the host's three storage lifetimes.
type Tier int

const (
	// Persistent entries survive indefinitely and are billed accordingly —
	// used for all domain entities (units, readings, role grants).
	Persistent Tier = iota
	// Instance entries live alongside the contract instance itself — used
	// only for the cold-chain admin singleton.
	Instance
	// Temporary entries expire after a bounded TTL. Unused by the three
	// cores today but part of the host surface they could call into.
	Temporary
)

// ErrUnauthorized is returned by RequireAuth when the caller does not match
// the address being authorized.
var ErrUnauthorized = errors.New("ledger: caller not authorized for address")

// Clock supplies the current host time, in Unix seconds.
type Clock interface {
	Now() uint64
}

// EventBus publishes domain events to off-chain observers. Topic is a
// two-part name, mirroring Soroban's symbol_short! topic tuples.
type EventBus interface {
	Publish(ctx context.Context, topic [2]string, payload any) error
}

// Store is the host's key/value storage surface, split by lifetime tier.
// Values are opaque bytes; domain packages encode/decode their own types.
type Store interface {
	Get(ctx context.Context, tier Tier, key string) ([]byte, bool, error)
	Set(ctx context.Context, tier Tier, key string, value []byte) error
	Has(ctx context.Context, tier Tier, key string) (bool, error)
	Remove(ctx context.Context, tier Tier, key string) error
}

// Env is the full host surface consumed by a single contract operation. A
// new Env is constructed per HTTP request (per "transaction") and never
// shared across goroutines, so no locking is required at this layer.
type Env struct {
	Clock    Clock
	Store    Store
	Events   EventBus
	Caller   Address // the authenticated caller of the current operation, "" if none
	SelfAddr Address // the contract's own address, attributed to system-driven writes
}

// Now returns the current host time.
func (e *Env) Now() uint64 {
	return e.Clock.Now()
}

// RequireAuth fails unless addr matches the operation's authenticated
// caller, mirroring Soroban's Address::require_auth().
func (e *Env) RequireAuth(addr Address) error {
	if e.Caller == "" || e.Caller != addr {
		return ErrUnauthorized
	}
	return nil
}

// SelfAddress returns the address attributed to system-driven writes (e.g.
// time-based expiry), mirroring env.current_contract_address().
func (e *Env) SelfAddress() Address {
	return e.SelfAddr
}

// Publish forwards to Events.Publish with the caller's ctx, and does nothing
// when no event bus is configured. Event publication in this codebase is
// best-effort: callers log a failed publish rather than failing the operation.
func (e *Env) Publish(ctx context.Context, topic [2]string, payload any) error {
	if e.Events == nil {
		return nil
	}
	return e.Events.Publish(ctx, topic, payload)
}
