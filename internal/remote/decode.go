package remote

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// DecodeError reports a row that could not be decoded into its typed struct.
type DecodeError struct {
	Table string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("remote: decode %s row: %v", e.Table, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// DecodeRow parses a loosely-typed row into dst, which must be a pointer to
// a struct with json tags. Type mismatches fail fast with a DecodeError
// instead of propagating untyped maps through the store layer.
func DecodeRow(table string, row Row, dst any) error {
	raw, err := json.Marshal(row)
	if err != nil {
		return &DecodeError{Table: table, Err: err}
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(dst); err != nil {
		return &DecodeError{Table: table, Err: err}
	}
	return nil
}

// DecodeRows parses a result set into typed structs, failing on the first
// bad row.
func DecodeRows[T any](table string, rows []Row) ([]T, error) {
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		var item T
		if err := DecodeRow(table, row, &item); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

// EncodeRow converts a typed struct back into a loosely-typed row, the
// shape the platform write API accepts.
func EncodeRow(v any) (Row, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var row Row
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, err
	}
	return row, nil
}

// TimestampLayout is the fixed-width RFC 3339 layout platform rows carry
// timestamps in. Fixed-width fractions keep string order equal to time
// order, which the mongo backend's sort relies on.
const TimestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Timestamp formats a time the way platform rows carry it.
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
