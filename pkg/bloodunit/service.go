package bloodunit

import (
	"context"
	"log/slog"
	"sort"

	"github.com/wisbric/lifebank/internal/ledger"
	"github.com/wisbric/lifebank/internal/lifebankconst"
	"github.com/wisbric/lifebank/internal/telemetry"
)

// Service implements the registry state machine. It holds no per-request
// state; every method takes the ledger.Env for the current transaction.
type Service struct {
	logger *slog.Logger
}

// NewService creates a registry Service.
func NewService(logger *slog.Logger) *Service {
	return &Service{logger: logger}
}

// RegisterUnit validates quantity and the expiration window, allocates a
// fresh id, persists the unit with status Available, records the genesis
// audit entry, and publishes a blood/register event. Requires the
// registering bank's caller proof.
func (s *Service) RegisterUnit(ctx context.Context, env *ledger.Env, bankID ledger.Address, bloodType BloodType, quantityML uint32, expirationTS uint64, donorID *string) (uint64, error) {
	if err := env.RequireAuth(bankID); err != nil {
		return 0, err
	}

	if quantityML < lifebankconst.MinQuantityML || quantityML > lifebankconst.MaxQuantityML {
		return 0, ErrInvalidQuantity
	}

	now := env.Now()
	minExpiration := now + lifebankconst.MinShelfLifeDays*lifebankconst.SecondsPerDay
	maxExpiration := now + lifebankconst.MaxShelfLifeDays*lifebankconst.SecondsPerDay

	if expirationTS <= now || expirationTS < minExpiration {
		return 0, ErrInvalidExpiration
	}
	if expirationTS > maxExpiration {
		return 0, ErrInvalidExpiration
	}

	unitID, err := nextID(ctx, env)
	if err != nil {
		return 0, err
	}

	donor := lifebankconst.AnonDonor
	if donorID != nil {
		donor = *donorID
	}

	unit := BloodUnit{
		ID:                    unitID,
		BloodType:             bloodType,
		QuantityML:            quantityML,
		ExpirationDate:        expirationTS,
		DonorID:               donor,
		Location:              "BANK",
		BankID:                string(bankID),
		RegistrationTimestamp: now,
		Status:                StatusAvailable,
	}

	units, err := loadUnits(ctx, env)
	if err != nil {
		return 0, err
	}
	units[unitID] = unit
	if err := saveUnits(ctx, env, units); err != nil {
		return 0, err
	}

	// Genesis marker: a new unit has no prior status, so the first audit
	// record is Available→Available with the registering bank as actor.
	if err := s.recordStatusChange(ctx, env, unitID, StatusAvailable, StatusAvailable, string(bankID)); err != nil {
		return 0, err
	}

	event := BloodRegisteredEvent{
		UnitID:                unitID,
		BloodType:             bloodType,
		QuantityML:            quantityML,
		BankID:                string(bankID),
		ExpirationTimestamp:   expirationTS,
		RegistrationTimestamp: now,
		DonorID:               donorID,
	}
	if err := env.Publish(ctx, [2]string{"blood", "register"}, event); err != nil {
		s.logger.Warn("publishing register event failed", "unit_id", unitID, "error", err)
	}

	telemetry.UnitsRegisteredTotal.Inc()
	s.logger.Info("blood unit registered",
		"unit_id", unitID,
		"blood_type", bloodType,
		"quantity_ml", quantityML,
		"bank_id", bankID,
		"expiration", expirationTS,
	)

	return unitID, nil
}

// UpdateStatus records an old→new transition and persists it. Transition
// legality is the caller layer's responsibility; the registry records
// faithfully. Requires the acting principal's caller proof.
func (s *Service) UpdateStatus(ctx context.Context, env *ledger.Env, unitID uint64, newStatus BloodStatus, actor ledger.Address) error {
	if err := env.RequireAuth(actor); err != nil {
		return err
	}

	units, err := loadUnits(ctx, env)
	if err != nil {
		return err
	}
	unit, ok := units[unitID]
	if !ok {
		return ErrUnitNotFound
	}

	oldStatus := unit.Status
	unit.Status = newStatus
	units[unitID] = unit
	if err := saveUnits(ctx, env, units); err != nil {
		return err
	}

	if err := s.recordStatusChange(ctx, env, unitID, oldStatus, newStatus, string(actor)); err != nil {
		return err
	}

	s.logger.Info("blood unit status updated",
		"unit_id", unitID,
		"old_status", oldStatus,
		"new_status", newStatus,
		"actor", actor,
	)

	return nil
}

// ExpireUnit force-marks a unit Expired once its expiration date has
// passed. Calling it on an already-Expired unit is a no-op. The transition
// is attributed to the contract's own address.
func (s *Service) ExpireUnit(ctx context.Context, env *ledger.Env, unitID uint64) error {
	units, err := loadUnits(ctx, env)
	if err != nil {
		return err
	}
	unit, ok := units[unitID]
	if !ok {
		return ErrUnitNotFound
	}

	if env.Now() < unit.ExpirationDate {
		return ErrInvalidExpiration
	}

	if unit.Status == StatusExpired {
		return nil
	}

	oldStatus := unit.Status
	unit.Status = StatusExpired
	units[unitID] = unit
	if err := saveUnits(ctx, env, units); err != nil {
		return err
	}

	if err := s.recordStatusChange(ctx, env, unitID, oldStatus, StatusExpired, string(env.SelfAddress())); err != nil {
		return err
	}

	telemetry.UnitsExpiredTotal.Inc()
	s.logger.Info("blood unit expired", "unit_id", unitID, "old_status", oldStatus)

	return nil
}

// CheckAndExpireBatch attempts ExpireUnit on each id in order and returns
// the ids that actually expired. Individual failures (unknown id, not yet
// past expiry) are skipped; callers diff the input against the returned
// list to detect them.
func (s *Service) CheckAndExpireBatch(ctx context.Context, env *ledger.Env, unitIDs []uint64) ([]uint64, error) {
	if len(unitIDs) > lifebankconst.MaxBatchExpirySize {
		return nil, ErrBatchSizeExceeded
	}

	expired := make([]uint64, 0, len(unitIDs))
	for _, id := range unitIDs {
		if err := s.ExpireUnit(ctx, env, id); err == nil {
			expired = append(expired, id)
		}
	}

	return expired, nil
}

// GetUnit retrieves a single unit by id.
func (s *Service) GetUnit(ctx context.Context, env *ledger.Env, unitID uint64) (BloodUnit, error) {
	units, err := loadUnits(ctx, env)
	if err != nil {
		return BloodUnit{}, err
	}
	unit, ok := units[unitID]
	if !ok {
		return BloodUnit{}, ErrUnitNotFound
	}
	return unit, nil
}

// GetUnitsByBank full-scans the inventory and returns every unit registered
// by bankID, ordered by id.
func (s *Service) GetUnitsByBank(ctx context.Context, env *ledger.Env, bankID ledger.Address) ([]BloodUnit, error) {
	units, err := loadUnits(ctx, env)
	if err != nil {
		return nil, err
	}
	var out []BloodUnit
	for _, u := range units {
		if u.BankID == string(bankID) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetUnitsByDonor full-scans the inventory and returns every unit donated
// under donorID, ordered by id. Anonymous units carry the ANON sentinel and
// are only returned when the caller explicitly asks for ANON.
func (s *Service) GetUnitsByDonor(ctx context.Context, env *ledger.Env, donorID string) ([]BloodUnit, error) {
	units, err := loadUnits(ctx, env)
	if err != nil {
		return nil, err
	}
	var out []BloodUnit
	for _, u := range units {
		if u.DonorID != donorID {
			continue
		}
		if u.DonorID == lifebankconst.AnonDonor && donorID != lifebankconst.AnonDonor {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// IsExpired reports whether the unit's expiration date has passed or it has
// already been marked Expired.
func (s *Service) IsExpired(ctx context.Context, env *ledger.Env, unitID uint64) (bool, error) {
	unit, err := s.GetUnit(ctx, env, unitID)
	if err != nil {
		return false, err
	}
	return unit.ExpirationDate <= env.Now() || unit.Status == StatusExpired, nil
}

// GetStatusHistory replays a unit's full audit trail in causal order.
func (s *Service) GetStatusHistory(ctx context.Context, env *ledger.Env, unitID uint64) ([]StatusChangeEvent, error) {
	units, err := loadUnits(ctx, env)
	if err != nil {
		return nil, err
	}
	if _, ok := units[unitID]; !ok {
		return nil, ErrUnitNotFound
	}
	return loadStatusHistory(ctx, env, unitID)
}

func (s *Service) recordStatusChange(ctx context.Context, env *ledger.Env, unitID uint64, oldStatus, newStatus BloodStatus, actor string) error {
	event := StatusChangeEvent{
		UnitID:    unitID,
		OldStatus: oldStatus,
		NewStatus: newStatus,
		Actor:     actor,
		Timestamp: env.Now(),
	}
	if err := appendStatusEvent(ctx, env, event); err != nil {
		return err
	}
	telemetry.StatusTransitionsTotal.WithLabelValues(oldStatus.String(), newStatus.String()).Inc()
	return nil
}
