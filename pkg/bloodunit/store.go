package bloodunit

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/wisbric/lifebank/internal/ledger"
	"github.com/wisbric/lifebank/internal/lifebankconst"
)

// Storage keys. The unit inventory lives under a single BLOOD_UNITS map
// entry and a NEXT_ID counter, matching the host's key schema; each unit's
// audit trail is split across numbered pages of at most MaxEventsPerPage
// records so one append never rewrites an unbounded list.
const (
	keyBloodUnits = "BLOOD_UNITS"
	keyNextID     = "NEXT_ID"
)

func statusPageKey(unitID uint64, page uint32) string {
	return fmt.Sprintf("StatusPage(%d,%d)", unitID, page)
}

// loadUnits reads the full inventory map. A missing entry is an empty map.
func loadUnits(ctx context.Context, env *ledger.Env) (map[uint64]BloodUnit, error) {
	raw, ok, err := env.Store.Get(ctx, ledger.Persistent, keyBloodUnits)
	if err != nil {
		return nil, fmt.Errorf("bloodunit: loading units: %w", err)
	}
	if !ok {
		return map[uint64]BloodUnit{}, nil
	}
	// JSON object keys are strings; decode through a string-keyed map.
	var byKey map[string]BloodUnit
	if err := json.Unmarshal(raw, &byKey); err != nil {
		return nil, fmt.Errorf("bloodunit: decoding units: %w", err)
	}
	units := make(map[uint64]BloodUnit, len(byKey))
	for k, u := range byKey {
		id, err := strconv.ParseUint(k, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bloodunit: corrupt unit key %q: %w", k, err)
		}
		units[id] = u
	}
	return units, nil
}

func saveUnits(ctx context.Context, env *ledger.Env, units map[uint64]BloodUnit) error {
	byKey := make(map[string]BloodUnit, len(units))
	for id, u := range units {
		byKey[strconv.FormatUint(id, 10)] = u
	}
	raw, err := json.Marshal(byKey)
	if err != nil {
		return fmt.Errorf("bloodunit: encoding units: %w", err)
	}
	if err := env.Store.Set(ctx, ledger.Persistent, keyBloodUnits, raw); err != nil {
		return fmt.Errorf("bloodunit: saving units: %w", err)
	}
	return nil
}

// nextID allocates a fresh unit id and advances the counter. Ids start at 1
// and are never reused.
func nextID(ctx context.Context, env *ledger.Env) (uint64, error) {
	raw, ok, err := env.Store.Get(ctx, ledger.Persistent, keyNextID)
	if err != nil {
		return 0, fmt.Errorf("bloodunit: loading next id: %w", err)
	}
	var id uint64 = 1
	if ok {
		id, err = strconv.ParseUint(string(raw), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("bloodunit: corrupt next id: %w", err)
		}
	}
	next := strconv.FormatUint(id+1, 10)
	if err := env.Store.Set(ctx, ledger.Persistent, keyNextID, []byte(next)); err != nil {
		return 0, fmt.Errorf("bloodunit: saving next id: %w", err)
	}
	return id, nil
}

func loadStatusPage(ctx context.Context, env *ledger.Env, unitID uint64, page uint32) ([]StatusChangeEvent, bool, error) {
	raw, ok, err := env.Store.Get(ctx, ledger.Persistent, statusPageKey(unitID, page))
	if err != nil {
		return nil, false, fmt.Errorf("bloodunit: loading status page %d for unit %d: %w", page, unitID, err)
	}
	if !ok {
		return nil, false, nil
	}
	var events []StatusChangeEvent
	if err := json.Unmarshal(raw, &events); err != nil {
		return nil, false, fmt.Errorf("bloodunit: decoding status page %d for unit %d: %w", page, unitID, err)
	}
	return events, true, nil
}

func saveStatusPage(ctx context.Context, env *ledger.Env, unitID uint64, page uint32, events []StatusChangeEvent) error {
	raw, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("bloodunit: encoding status page %d for unit %d: %w", page, unitID, err)
	}
	if err := env.Store.Set(ctx, ledger.Persistent, statusPageKey(unitID, page), raw); err != nil {
		return fmt.Errorf("bloodunit: saving status page %d for unit %d: %w", page, unitID, err)
	}
	return nil
}

// appendStatusEvent writes one audit record to the unit's first non-full
// page, allocating a new page on overflow. Pages are numbered from 0.
func appendStatusEvent(ctx context.Context, env *ledger.Env, event StatusChangeEvent) error {
	var page uint32
	for {
		events, ok, err := loadStatusPage(ctx, env, event.UnitID, page)
		if err != nil {
			return err
		}
		if !ok || len(events) < lifebankconst.MaxEventsPerPage {
			events = append(events, event)
			return saveStatusPage(ctx, env, event.UnitID, page, events)
		}
		page = saturatingAddU32(page, 1)
	}
}

// loadStatusHistory replays every audit page for a unit, in order.
func loadStatusHistory(ctx context.Context, env *ledger.Env, unitID uint64) ([]StatusChangeEvent, error) {
	var history []StatusChangeEvent
	var page uint32
	for {
		events, ok, err := loadStatusPage(ctx, env, unitID, page)
		if err != nil {
			return nil, err
		}
		if !ok {
			return history, nil
		}
		history = append(history, events...)
		page = saturatingAddU32(page, 1)
	}
}

func saturatingAddU32(a, b uint32) uint32 {
	if a > ^uint32(0)-b {
		return ^uint32(0)
	}
	return a + b
}
