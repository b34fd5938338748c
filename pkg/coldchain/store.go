package coldchain

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/wisbric/lifebank/internal/ledger"
)

// Storage keys. The admin singleton lives in the instance tier; everything
// else is persistent. Each reading page carries a separate explicit length
// entry — the page's stored slice may contain default-valued padding slots
// (a real 0.00°C reading is indistinguishable from an empty slot), so the
// length counter is the sole authority on how many slots are valid.
const keyAdmin = "Admin"

func thresholdKey(unitID uint64) string {
	return fmt.Sprintf("Threshold(%d)", unitID)
}

func tempPageKey(unitID uint64, page uint32) string {
	return fmt.Sprintf("TempPage(%d,%d)", unitID, page)
}

func tempPageLenKey(unitID uint64, page uint32) string {
	return fmt.Sprintf("TempPageLen(%d,%d)", unitID, page)
}

func streakKey(unitID uint64) string {
	return fmt.Sprintf("ConsecutiveViolationStreak(%d)", unitID)
}

func compromisedKey(unitID uint64) string {
	return fmt.Sprintf("IsCompromised(%d)", unitID)
}

func loadAdmin(ctx context.Context, env *ledger.Env) (ledger.Address, bool, error) {
	raw, ok, err := env.Store.Get(ctx, ledger.Instance, keyAdmin)
	if err != nil {
		return "", false, fmt.Errorf("coldchain: loading admin: %w", err)
	}
	if !ok {
		return "", false, nil
	}
	return ledger.Address(raw), true, nil
}

func saveAdmin(ctx context.Context, env *ledger.Env, admin ledger.Address) error {
	if err := env.Store.Set(ctx, ledger.Instance, keyAdmin, []byte(admin)); err != nil {
		return fmt.Errorf("coldchain: saving admin: %w", err)
	}
	return nil
}

func loadThreshold(ctx context.Context, env *ledger.Env, unitID uint64) (TemperatureThreshold, bool, error) {
	raw, ok, err := env.Store.Get(ctx, ledger.Persistent, thresholdKey(unitID))
	if err != nil {
		return TemperatureThreshold{}, false, fmt.Errorf("coldchain: loading threshold for unit %d: %w", unitID, err)
	}
	if !ok {
		return TemperatureThreshold{}, false, nil
	}
	var th TemperatureThreshold
	if err := json.Unmarshal(raw, &th); err != nil {
		return TemperatureThreshold{}, false, fmt.Errorf("coldchain: decoding threshold for unit %d: %w", unitID, err)
	}
	return th, true, nil
}

func saveThreshold(ctx context.Context, env *ledger.Env, unitID uint64, th TemperatureThreshold) error {
	raw, err := json.Marshal(th)
	if err != nil {
		return fmt.Errorf("coldchain: encoding threshold for unit %d: %w", unitID, err)
	}
	if err := env.Store.Set(ctx, ledger.Persistent, thresholdKey(unitID), raw); err != nil {
		return fmt.Errorf("coldchain: saving threshold for unit %d: %w", unitID, err)
	}
	return nil
}

// loadTempPage returns the raw page slice, padding slots included. Callers
// must bound iteration by the page's stored length, never len(page).
func loadTempPage(ctx context.Context, env *ledger.Env, unitID uint64, page uint32) ([]TemperatureReading, error) {
	raw, ok, err := env.Store.Get(ctx, ledger.Persistent, tempPageKey(unitID, page))
	if err != nil {
		return nil, fmt.Errorf("coldchain: loading page %d for unit %d: %w", page, unitID, err)
	}
	if !ok {
		return nil, nil
	}
	var readings []TemperatureReading
	if err := json.Unmarshal(raw, &readings); err != nil {
		return nil, fmt.Errorf("coldchain: decoding page %d for unit %d: %w", page, unitID, err)
	}
	return readings, nil
}

func saveTempPage(ctx context.Context, env *ledger.Env, unitID uint64, page uint32, readings []TemperatureReading) error {
	raw, err := json.Marshal(readings)
	if err != nil {
		return fmt.Errorf("coldchain: encoding page %d for unit %d: %w", page, unitID, err)
	}
	if err := env.Store.Set(ctx, ledger.Persistent, tempPageKey(unitID, page), raw); err != nil {
		return fmt.Errorf("coldchain: saving page %d for unit %d: %w", page, unitID, err)
	}
	return nil
}

func loadTempPageLen(ctx context.Context, env *ledger.Env, unitID uint64, page uint32) (uint32, error) {
	raw, ok, err := env.Store.Get(ctx, ledger.Persistent, tempPageLenKey(unitID, page))
	if err != nil {
		return 0, fmt.Errorf("coldchain: loading page length %d for unit %d: %w", page, unitID, err)
	}
	if !ok {
		return 0, nil
	}
	n, err := strconv.ParseUint(string(raw), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("coldchain: corrupt page length %d for unit %d: %w", page, unitID, err)
	}
	return uint32(n), nil
}

func saveTempPageLen(ctx context.Context, env *ledger.Env, unitID uint64, page uint32, length uint32) error {
	raw := []byte(strconv.FormatUint(uint64(length), 10))
	if err := env.Store.Set(ctx, ledger.Persistent, tempPageLenKey(unitID, page), raw); err != nil {
		return fmt.Errorf("coldchain: saving page length %d for unit %d: %w", page, unitID, err)
	}
	return nil
}

func loadStreak(ctx context.Context, env *ledger.Env, unitID uint64) (uint32, error) {
	raw, ok, err := env.Store.Get(ctx, ledger.Persistent, streakKey(unitID))
	if err != nil {
		return 0, fmt.Errorf("coldchain: loading streak for unit %d: %w", unitID, err)
	}
	if !ok {
		return 0, nil
	}
	n, err := strconv.ParseUint(string(raw), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("coldchain: corrupt streak for unit %d: %w", unitID, err)
	}
	return uint32(n), nil
}

func saveStreak(ctx context.Context, env *ledger.Env, unitID uint64, streak uint32) error {
	raw := []byte(strconv.FormatUint(uint64(streak), 10))
	if err := env.Store.Set(ctx, ledger.Persistent, streakKey(unitID), raw); err != nil {
		return fmt.Errorf("coldchain: saving streak for unit %d: %w", unitID, err)
	}
	return nil
}

func loadCompromised(ctx context.Context, env *ledger.Env, unitID uint64) (bool, error) {
	raw, ok, err := env.Store.Get(ctx, ledger.Persistent, compromisedKey(unitID))
	if err != nil {
		return false, fmt.Errorf("coldchain: loading compromised flag for unit %d: %w", unitID, err)
	}
	if !ok {
		return false, nil
	}
	return string(raw) == "true", nil
}

func saveCompromised(ctx context.Context, env *ledger.Env, unitID uint64, compromised bool) error {
	raw := []byte(strconv.FormatBool(compromised))
	if err := env.Store.Set(ctx, ledger.Persistent, compromisedKey(unitID), raw); err != nil {
		return fmt.Errorf("coldchain: saving compromised flag for unit %d: %w", unitID, err)
	}
	return nil
}
