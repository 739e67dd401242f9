package models

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// JSON stores any JSON-serialisable value in a jsonb column.
// A value that marshals to null is written as SQL NULL.
type JSON[T any] struct {
	Data T
}

// NewJSON wraps a value for storage
func NewJSON[T any](v T) JSON[T] {
	return JSON[T]{Data: v}
}

// Value implements driver.Valuer interface for GORM to write to JSONB
func (j JSON[T]) Value() (driver.Value, error) {
	b, err := json.Marshal(j.Data)
	if err != nil {
		return nil, err
	}
	if bytes.Equal(b, []byte("null")) {
		return nil, nil
	}
	return string(b), nil
}

// Scan implements sql.Scanner interface for GORM to read from JSONB
func (j *JSON[T]) Scan(value interface{}) error {
	var zero T
	if value == nil {
		j.Data = zero
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errors.New("failed to scan JSON column: unsupported type")
	}

	if len(raw) == 0 {
		j.Data = zero
		return nil
	}
	return json.Unmarshal(raw, &j.Data)
}
