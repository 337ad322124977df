package model

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

// ErrMalformed marks input that cannot be read as machine telemetry.
var ErrMalformed = errors.New("malformed telemetry")

var jsonFast = jsoniter.ConfigFastest

// ParseNumber converts a JSON number or numeric string to float64.
// NaN and infinities are rejected along with anything non-numeric.
func ParseNumber(v any) (float64, error) {
	var f float64
	switch val := v.(type) {
	case float64:
		f = val
	case float32:
		f = float64(val)
	case int:
		f = float64(val)
	case int64:
		f = float64(val)
	case jsoniter.Number:
		parsed, err := val.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not a number", ErrMalformed, val.String())
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: cannot parse %q to float64", ErrMalformed, val)
		}
		f = parsed
	default:
		return 0, fmt.Errorf("%w: value of type %T is not a number", ErrMalformed, v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: non-finite value", ErrMalformed)
	}
	return f, nil
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// DecodeRecord reads one record, unwrapping a {"payload": "..."} envelope when present.
func DecodeRecord(b []byte) (MachineRecord, error) {
	var wrapper KafkaWrapper
	if err := jsonFast.Unmarshal(b, &wrapper); err == nil && wrapper.Payload != "" {
		b = []byte(wrapper.Payload)
	}

	var rec MachineRecord
	if err := jsonFast.Unmarshal(b, &rec); err != nil {
		return MachineRecord{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return rec, nil
}

// RecordError is a batch element that could not be decoded.
type RecordError struct {
	Index int
	Err   error
}

func (e RecordError) Error() string {
	return fmt.Sprintf("record %d: %v", e.Index, e.Err)
}

func (e RecordError) Unwrap() error { return e.Err }

// DecodeBatch reads a list of records, either a bare JSON array or {"machines": [...]}.
// Elements are decoded one at a time; a bad element is reported and skipped.
// Only a body that is not a list at all is an error.
func DecodeBatch(body []byte) ([]MachineRecord, []RecordError, error) {
	var elements []jsoniter.RawMessage
	if err := jsonFast.Unmarshal(body, &elements); err != nil {
		var envelope struct {
			Machines []jsoniter.RawMessage `json:"machines"`
		}
		if envErr := jsonFast.Unmarshal(body, &envelope); envErr != nil || envelope.Machines == nil {
			return nil, nil, fmt.Errorf("%w: expected a list of machines: %v", ErrMalformed, err)
		}
		elements = envelope.Machines
	}

	records := make([]MachineRecord, 0, len(elements))
	var rejected []RecordError
	for i, el := range elements {
		var rec MachineRecord
		if err := jsonFast.Unmarshal(el, &rec); err != nil {
			rejected = append(rejected, RecordError{Index: i, Err: fmt.Errorf("%w: %v", ErrMalformed, err)})
			continue
		}
		records = append(records, rec)
	}
	return records, rejected, nil
}
