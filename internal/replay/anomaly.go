package replay

import "time"

// AnomalyKind classifies recoverable problems met during a replay.
type AnomalyKind string

const (
	AnomalyUnmappedField    AnomalyKind = "unmapped_field"
	AnomalyUnresolvedPerson AnomalyKind = "unresolved_person"
	AnomalyCoercionFailure  AnomalyKind = "coercion_failure"
)

// Anomaly is one recoverable problem. Raw carries the uncoerced text.
type Anomaly struct {
	Kind      AnomalyKind `json:"kind"`
	Field     string      `json:"field"`
	Attribute string      `json:"attribute,omitempty"`
	Raw       string      `json:"raw,omitempty"`
	At        time.Time   `json:"at,omitempty"`
	Err       error       `json:"-"`
}
