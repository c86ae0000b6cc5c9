package resource

import (
	"database/sql"
	"fmt"

	"github.com/roach88/cdlcore/internal/ir"
)

// marshalElementValue converts a value to JSON TEXT for storage.
func marshalElementValue(v ir.Value) (string, error) {
	data, err := ir.MarshalValue(v)
	if err != nil {
		return "", fmt.Errorf("marshal value: %w", err)
	}
	return string(data), nil
}

// marshalLogValue is marshalElementValue with deletions stored as SQL NULL.
func marshalLogValue(v ir.Value) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	s, err := marshalElementValue(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: s, Valid: true}, nil
}

func unmarshalElementValue(data string) (ir.Value, error) {
	v, err := ir.UnmarshalValue([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal value: %w", err)
	}
	return v, nil
}

func unmarshalLogValue(data sql.NullString) (ir.Value, error) {
	if !data.Valid {
		return nil, nil
	}
	return unmarshalElementValue(data.String)
}
