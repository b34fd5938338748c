// Package bloodunit is the authoritative blood-unit inventory: lifecycle
// state, registration validation, and an append-only, paged audit trail of
// status transitions. Business-level transition legality (who may move a
// unit from Available to Reserved) is deliberately NOT enforced here — the
// caller layer (internal/callerauth consulting pkg/accesscontrol) gates
// that; the registry records transitions faithfully.
package bloodunit

import "fmt"

// BloodType is one of the eight ABO/Rh combinations.
type BloodType int

const (
	OPos BloodType = iota
	ONeg
	APos
	ANeg
	BPos
	BNeg
	ABPos
	ABNeg
)

// String renders the blood type in its clinical notation.
func (t BloodType) String() string {
	switch t {
	case OPos:
		return "O+"
	case ONeg:
		return "O-"
	case APos:
		return "A+"
	case ANeg:
		return "A-"
	case BPos:
		return "B+"
	case BNeg:
		return "B-"
	case ABPos:
		return "AB+"
	case ABNeg:
		return "AB-"
	default:
		return fmt.Sprintf("BloodType(%d)", int(t))
	}
}

// ParseBloodType maps clinical notation back to a BloodType.
func ParseBloodType(s string) (BloodType, error) {
	switch s {
	case "O+":
		return OPos, nil
	case "O-":
		return ONeg, nil
	case "A+":
		return APos, nil
	case "A-":
		return ANeg, nil
	case "B+":
		return BPos, nil
	case "B-":
		return BNeg, nil
	case "AB+":
		return ABPos, nil
	case "AB-":
		return ABNeg, nil
	default:
		return 0, fmt.Errorf("bloodunit: unknown blood type %q", s)
	}
}

// MarshalJSON renders the blood type in clinical notation.
func (t BloodType) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

// UnmarshalJSON parses the blood type from clinical notation.
func (t *BloodType) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	bt, err := ParseBloodType(s)
	if err != nil {
		return err
	}
	*t = bt
	return nil
}

// BloodStatus is a unit's lifecycle state. Used, Discarded, and Expired are
// terminal; Expired is reachable from any non-terminal state via the time
// check in ExpireUnit.
type BloodStatus int

const (
	StatusAvailable BloodStatus = iota
	StatusReserved
	StatusInTransit
	StatusDelivered
	StatusExpired
	StatusUsed
	StatusDiscarded
)

// String renders the status name.
func (s BloodStatus) String() string {
	switch s {
	case StatusAvailable:
		return "Available"
	case StatusReserved:
		return "Reserved"
	case StatusInTransit:
		return "InTransit"
	case StatusDelivered:
		return "Delivered"
	case StatusExpired:
		return "Expired"
	case StatusUsed:
		return "Used"
	case StatusDiscarded:
		return "Discarded"
	default:
		return fmt.Sprintf("BloodStatus(%d)", int(s))
	}
}

// ParseBloodStatus maps a status name back to a BloodStatus.
func ParseBloodStatus(s string) (BloodStatus, error) {
	switch s {
	case "Available":
		return StatusAvailable, nil
	case "Reserved":
		return StatusReserved, nil
	case "InTransit":
		return StatusInTransit, nil
	case "Delivered":
		return StatusDelivered, nil
	case "Expired":
		return StatusExpired, nil
	case "Used":
		return StatusUsed, nil
	case "Discarded":
		return StatusDiscarded, nil
	default:
		return 0, fmt.Errorf("bloodunit: unknown status %q", s)
	}
}

// MarshalJSON renders the status as its name.
func (s BloodStatus) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON parses the status from its name.
func (s *BloodStatus) UnmarshalJSON(data []byte) error {
	str := string(data)
	if len(str) >= 2 && str[0] == '"' && str[len(str)-1] == '"' {
		str = str[1 : len(str)-1]
	}
	st, err := ParseBloodStatus(str)
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// BloodUnit is the inventory entity. Units are created by RegisterUnit,
// mutated only by UpdateStatus / ExpireUnit, and never destroyed — the audit
// trail requires every unit's history to remain replayable.
type BloodUnit struct {
	ID                    uint64      `json:"id"`
	BloodType             BloodType   `json:"blood_type"`
	QuantityML            uint32      `json:"quantity_ml"`
	ExpirationDate        uint64      `json:"expiration_date"`
	DonorID               string      `json:"donor_id"`
	Location              string      `json:"location"`
	BankID                string      `json:"bank_id"`
	RegistrationTimestamp uint64      `json:"registration_timestamp"`
	Status                BloodStatus `json:"status"`
	RecipientHospital     *string     `json:"recipient_hospital,omitempty"`
	AllocationTimestamp   *uint64     `json:"allocation_timestamp,omitempty"`
	TransferTimestamp     *uint64     `json:"transfer_timestamp,omitempty"`
	DeliveryTimestamp     *uint64     `json:"delivery_timestamp,omitempty"`
}

// StatusChangeEvent is one append-only audit record. For any unit the
// recorded sequence replays its entire status history in causal order; the
// first record is always the synthetic Available→Available genesis marker
// written at registration.
type StatusChangeEvent struct {
	UnitID    uint64      `json:"unit_id"`
	OldStatus BloodStatus `json:"old_status"`
	NewStatus BloodStatus `json:"new_status"`
	Actor     string      `json:"actor"`
	Timestamp uint64      `json:"timestamp"`
}

// BloodRegisteredEvent is the payload published under topic ("blood",
// "register") on successful registration.
type BloodRegisteredEvent struct {
	UnitID                uint64    `json:"unit_id"`
	BloodType             BloodType `json:"blood_type"`
	QuantityML            uint32    `json:"quantity_ml"`
	BankID                string    `json:"bank_id"`
	ExpirationTimestamp   uint64    `json:"expiration_timestamp"`
	RegistrationTimestamp uint64    `json:"registration_timestamp"`
	DonorID               *string   `json:"donor_id,omitempty"`
}

// Error is the registry's flat error enum, surfaced verbatim to callers.
type Error int

const (
	ErrUnitNotFound Error = iota + 1
	ErrInvalidQuantity
	ErrInvalidExpiration
	ErrBatchSizeExceeded
)

func (e Error) Error() string {
	switch e {
	case ErrUnitNotFound:
		return "bloodunit: unit not found"
	case ErrInvalidQuantity:
		return "bloodunit: quantity outside allowed range"
	case ErrInvalidExpiration:
		return "bloodunit: expiration outside allowed window"
	case ErrBatchSizeExceeded:
		return "bloodunit: batch size exceeded"
	default:
		return "bloodunit: unknown error"
	}
}
