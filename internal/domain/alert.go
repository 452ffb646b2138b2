package domain

import "time"

// Kind classifies one fault category. The set is open: built-in kinds cover the
// standard protection faults and the taxonomy can be extended through config.
// Params: lower-case snake_case fault identifier.
// Returns: taxonomy entry used in the dedup key.
type Kind string

const (
	// KindCommFailure indicates lost communication with a monitored device.
	KindCommFailure Kind = "comm_failure"
	// KindTrip indicates a breaker trip.
	KindTrip Kind = "trip"
	// KindOverCurrent indicates current above the protection threshold.
	KindOverCurrent Kind = "over_current"
	// KindOverVoltage indicates voltage above the protection threshold.
	KindOverVoltage Kind = "over_voltage"
	// KindUnderVoltage indicates voltage below the protection threshold.
	KindUnderVoltage Kind = "under_voltage"
	// KindOverTemperature indicates temperature above the protection threshold.
	KindOverTemperature Kind = "over_temperature"
	// KindPhaseLoss indicates a missing phase.
	KindPhaseLoss Kind = "phase_loss"
)

// BuiltinKinds returns the fault kinds known without configuration.
// Params: none.
// Returns: built-in taxonomy entries.
func BuiltinKinds() []Kind {
	return []Kind{
		KindCommFailure,
		KindTrip,
		KindOverCurrent,
		KindOverVoltage,
		KindUnderVoltage,
		KindOverTemperature,
		KindPhaseLoss,
	}
}

// Alert is one persisted fault alert and its acknowledgment state.
// Params: store-assigned id, dedup dimensions, and lifecycle timestamps.
// Returns: durable alert record.
//
// Lifecycle is absent -> active -> acknowledged. An acknowledged alert never
// returns to active; a recurring fault creates a fresh row with a new id.
type Alert struct {
	ID             int64      `json:"id" db:"id"`
	SourceID       string     `json:"sourceId" db:"source_id"`
	Kind           Kind       `json:"kind" db:"kind"`
	Message        string     `json:"message" db:"message"`
	RaisedAt       time.Time  `json:"raisedAt" db:"raised_at"`
	Acknowledged   bool       `json:"acknowledged" db:"acknowledged"`
	AcknowledgedBy string     `json:"acknowledgedBy,omitempty" db:"acknowledged_by"`
	AcknowledgedAt *time.Time `json:"acknowledgedAt,omitempty" db:"acknowledged_at"`
}

// Active reports whether the alert still awaits acknowledgment.
// Params: none.
// Returns: true for an unacknowledged alert.
func (a Alert) Active() bool {
	return !a.Acknowledged
}
