package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	ierr "github.com/shahin-grc/serialcode/internal/errors"
)

// Metadata is the open key/value bag attached to a serial code record.
// Values are restricted to JSON primitives: string, bool and number.
type Metadata map[string]any

// Validate rejects nested structures and nulls so that metadata never carries
// untyped payloads past the request boundary.
func (m Metadata) Validate() error {
	for k, v := range m {
		if k == "" {
			return ierr.NewError("metadata keys must not be empty").
				WithHint("Metadata keys must not be empty").
				Mark(ierr.ErrValidation)
		}
		switch v.(type) {
		case string, bool, float64, float32, int, int32, int64, json.Number:
		default:
			return ierr.NewError(fmt.Sprintf("metadata value for %q must be a string, number or boolean", k)).
				WithHintf("Metadata value for %q must be a string, number or boolean", k).
				WithReportableDetails(map[string]any{"key": k}).
				Mark(ierr.ErrValidation)
		}
	}
	return nil
}

// Scan implements the sql.Scanner interface for Metadata
func (m *Metadata) Scan(value interface{}) error {
	if value == nil {
		*m = make(Metadata)
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("failed to unmarshal JSONB value: %v", value)
	}

	result := make(Metadata)
	err := json.Unmarshal(bytes, &result)
	*m = result
	return err
}

// Value implements the driver.Valuer interface for Metadata
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return json.Marshal(make(Metadata))
	}
	return json.Marshal(m)
}
