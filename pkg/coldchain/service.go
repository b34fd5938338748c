package coldchain

import (
	"context"
	"log/slog"
	"math"

	"github.com/wisbric/lifebank/internal/ledger"
	"github.com/wisbric/lifebank/internal/lifebankconst"
	"github.com/wisbric/lifebank/internal/telemetry"
)

// Service implements the cold-chain monitor state machine. It holds no
// per-request state; every method takes the ledger.Env for the current
// transaction.
type Service struct {
	logger *slog.Logger
}

// NewService creates a cold-chain Service.
func NewService(logger *slog.Logger) *Service {
	return &Service{logger: logger}
}

// Initialize records the admin principal. A second call fails.
func (s *Service) Initialize(ctx context.Context, env *ledger.Env, admin ledger.Address) error {
	if err := env.RequireAuth(admin); err != nil {
		return err
	}

	has, err := env.Store.Has(ctx, ledger.Instance, keyAdmin)
	if err != nil {
		return err
	}
	if has {
		return ErrAlreadyInitialized
	}

	if err := saveAdmin(ctx, env, admin); err != nil {
		return err
	}

	s.logger.Info("cold-chain monitor initialized", "admin", admin)
	return nil
}

// SetThreshold stores a unit's allowed temperature range. Only the stored
// admin may call it; min must be strictly below max.
func (s *Service) SetThreshold(ctx context.Context, env *ledger.Env, admin ledger.Address, unitID uint64, minX100, maxX100 int32) error {
	if err := env.RequireAuth(admin); err != nil {
		return err
	}
	if err := s.requireAdmin(ctx, env, admin); err != nil {
		return err
	}

	if minX100 >= maxX100 {
		return ErrInvalidThreshold
	}

	th := TemperatureThreshold{MinCelsiusX100: minX100, MaxCelsiusX100: maxX100}
	if err := saveThreshold(ctx, env, unitID, th); err != nil {
		return err
	}

	s.logger.Info("threshold set", "unit_id", unitID, "min_x100", minX100, "max_x100", maxX100)
	return nil
}

// LogReading appends one measurement to the unit's paged log and updates
// the consecutive-violation streak. The violation verdict is frozen against
// the threshold in effect now; changing the threshold later does not
// reclassify past readings.
func (s *Service) LogReading(ctx context.Context, env *ledger.Env, unitID uint64, tempX100 int32, timestamp uint64) error {
	threshold, ok, err := loadThreshold(ctx, env, unitID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrThresholdNotFound
	}

	isViolation := tempX100 < threshold.MinCelsiusX100 || tempX100 > threshold.MaxCelsiusX100

	reading := TemperatureReading{
		TemperatureCelsiusX100: tempX100,
		Timestamp:              timestamp,
		IsViolation:            isViolation,
	}

	streak, err := loadStreak(ctx, env, unitID)
	if err != nil {
		return err
	}
	var newStreak uint32
	if isViolation {
		newStreak = saturatingAddU32(streak, 1)
	} else {
		newStreak = 0
	}
	if err := saveStreak(ctx, env, unitID, newStreak); err != nil {
		return err
	}

	if newStreak >= lifebankconst.CompromiseStreakThreshold {
		already, err := loadCompromised(ctx, env, unitID)
		if err != nil {
			return err
		}
		if err := saveCompromised(ctx, env, unitID, true); err != nil {
			return err
		}
		if !already {
			telemetry.UnitsCompromisedTotal.Inc()
			s.logger.Warn("unit compromised", "unit_id", unitID, "streak", newStreak)
		}
	}

	// Find the append frontier: the first page with room. A page with
	// stored length 0 past page 0 is the fresh frontier (page 0 can only
	// be empty when the unit has no readings at all).
	var pageNum uint32
	var position uint32
	for {
		length, err := loadTempPageLen(ctx, env, unitID, pageNum)
		if err != nil {
			return err
		}
		if length == 0 && pageNum > 0 {
			position = 0
			break
		}
		if length < lifebankconst.PageSize {
			position = length
			break
		}
		pageNum = saturatingAddU32(pageNum, 1)
	}

	page, err := loadTempPage(ctx, env, unitID, pageNum)
	if err != nil {
		return err
	}

	// Pad up to the write position with default slots, then write. The
	// explicit length entry keeps padding unobservable to readers.
	for uint32(len(page)) < position {
		page = append(page, TemperatureReading{})
	}
	if uint32(len(page)) == position {
		page = append(page, reading)
	} else {
		page[position] = reading
	}

	if err := saveTempPage(ctx, env, unitID, pageNum, page); err != nil {
		return err
	}
	if err := saveTempPageLen(ctx, env, unitID, pageNum, saturatingAddU32(position, 1)); err != nil {
		return err
	}

	telemetry.TemperatureReadingsTotal.Inc()
	if isViolation {
		telemetry.TemperatureViolationsTotal.Inc()
	}
	s.logger.Info("temperature reading logged",
		"unit_id", unitID,
		"temp_x100", tempX100,
		"timestamp", timestamp,
		"violation", isViolation,
		"streak", newStreak,
	)

	return nil
}

// GetReadings returns every reading for a unit, in log order. Iteration is
// bounded by each page's stored length so padding slots never leak out.
func (s *Service) GetReadings(ctx context.Context, env *ledger.Env, unitID uint64) ([]TemperatureReading, error) {
	var all []TemperatureReading
	err := s.forEachReading(ctx, env, unitID, func(r TemperatureReading) {
		all = append(all, r)
	})
	return all, err
}

// GetViolations returns only the readings that violated the threshold in
// effect when they were logged.
func (s *Service) GetViolations(ctx context.Context, env *ledger.Env, unitID uint64) ([]TemperatureReading, error) {
	var violations []TemperatureReading
	err := s.forEachReading(ctx, env, unitID, func(r TemperatureReading) {
		if r.IsViolation {
			violations = append(violations, r)
		}
	})
	return violations, err
}

// GetTemperatureSummary aggregates the unit's full log. The sum accumulates
// in int64 so extreme centidegree values cannot overflow across millions of
// readings; the average divides before narrowing back to int32.
func (s *Service) GetTemperatureSummary(ctx context.Context, env *ledger.Env, unitID uint64) (TemperatureSummary, error) {
	var (
		count          uint32
		sum            int64
		minTemp        int32 = math.MaxInt32
		maxTemp        int32 = math.MinInt32
		violationCount uint32
	)

	err := s.forEachReading(ctx, env, unitID, func(r TemperatureReading) {
		sum += int64(r.TemperatureCelsiusX100)
		count = saturatingAddU32(count, 1)
		if r.TemperatureCelsiusX100 < minTemp {
			minTemp = r.TemperatureCelsiusX100
		}
		if r.TemperatureCelsiusX100 > maxTemp {
			maxTemp = r.TemperatureCelsiusX100
		}
		if r.IsViolation {
			violationCount = saturatingAddU32(violationCount, 1)
		}
	})
	if err != nil {
		return TemperatureSummary{}, err
	}

	if count == 0 {
		return TemperatureSummary{}, ErrUnitNotFound
	}

	return TemperatureSummary{
		Count:          count,
		AvgCelsiusX100: int32(sum / int64(count)),
		MinCelsiusX100: minTemp,
		MaxCelsiusX100: maxTemp,
		ViolationCount: violationCount,
	}, nil
}

// GetConsecutiveViolationStreak returns the unit's current streak counter.
func (s *Service) GetConsecutiveViolationStreak(ctx context.Context, env *ledger.Env, unitID uint64) (uint32, error) {
	return loadStreak(ctx, env, unitID)
}

// IsCompromised reports the unit's sticky compromise flag. The flag stays
// set when the streak resets — contamination needs human review — and only
// ResetCompromisedStatus clears it.
func (s *Service) IsCompromised(ctx context.Context, env *ledger.Env, unitID uint64) (bool, error) {
	return loadCompromised(ctx, env, unitID)
}

// ResetCompromisedStatus clears both the streak and the compromise flag.
// Admin only.
func (s *Service) ResetCompromisedStatus(ctx context.Context, env *ledger.Env, admin ledger.Address, unitID uint64) error {
	if err := env.RequireAuth(admin); err != nil {
		return err
	}
	if err := s.requireAdmin(ctx, env, admin); err != nil {
		return err
	}

	if err := saveStreak(ctx, env, unitID, 0); err != nil {
		return err
	}
	if err := saveCompromised(ctx, env, unitID, false); err != nil {
		return err
	}

	s.logger.Info("compromised status reset", "unit_id", unitID, "admin", admin)
	return nil
}

// forEachReading walks the paged log in order, visiting only the slots the
// per-page length counter vouches for. The scan stops at the first empty
// page past page 0; an empty page 0 just means no readings exist yet.
func (s *Service) forEachReading(ctx context.Context, env *ledger.Env, unitID uint64, visit func(TemperatureReading)) error {
	var pageNum uint32
	for {
		length, err := loadTempPageLen(ctx, env, unitID, pageNum)
		if err != nil {
			return err
		}
		if length == 0 && pageNum > 0 {
			return nil
		}
		if length == 0 {
			pageNum = saturatingAddU32(pageNum, 1)
			continue
		}

		page, err := loadTempPage(ctx, env, unitID, pageNum)
		if err != nil {
			return err
		}
		for i := uint32(0); i < length; i++ {
			var r TemperatureReading
			if i < uint32(len(page)) {
				r = page[i]
			}
			visit(r)
		}

		pageNum = saturatingAddU32(pageNum, 1)
	}
}

func (s *Service) requireAdmin(ctx context.Context, env *ledger.Env, caller ledger.Address) error {
	admin, ok, err := loadAdmin(ctx, env)
	if err != nil {
		return err
	}
	if !ok || caller != admin {
		return ErrUnauthorized
	}
	return nil
}

func saturatingAddU32(a, b uint32) uint32 {
	if a > math.MaxUint32-b {
		return math.MaxUint32
	}
	return a + b
}
