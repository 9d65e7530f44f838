// Package codec converts annotation payloads to and from their stored
// string form.
package codec

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tovian/tovian/pkg/core"
)

// AllowedValuesSeparator joins allowed values in the attribute table.
const AllowedValuesSeparator = "|"

// Encode serialises p as the stored string form of data type t.
func Encode(p core.Payload, t core.DataType) (string, error) {
	if p == nil {
		return "", fmt.Errorf("encode %s: nil payload: %w", t, core.ErrInvalidValue)
	}
	switch t {
	case core.DataInt:
		v, ok := p.(core.Int)
		if !ok {
			return "", mismatch(p, t)
		}
		return strconv.FormatInt(int64(v), 10), nil
	case core.DataFloat:
		v, ok := p.(core.Float)
		if !ok {
			return "", mismatch(p, t)
		}
		return strconv.FormatFloat(float64(v), 'f', -1, 64), nil
	case core.DataBool:
		v, ok := p.(core.Bool)
		if !ok {
			return "", mismatch(p, t)
		}
		if v {
			return "1", nil
		}
		return "0", nil
	case core.DataText:
		v, ok := p.(core.Text)
		if !ok {
			return "", mismatch(p, t)
		}
		return string(v), nil
	case core.DataRectangle:
		v, ok := p.(core.Rectangle)
		if !ok {
			return "", mismatch(p, t)
		}
		v = v.Normalize()
		return fmt.Sprintf("%d,%d,%d,%d", v.X1, v.Y1, v.X2, v.Y2), nil
	case core.DataCircle:
		v, ok := p.(core.Circle)
		if !ok {
			return "", mismatch(p, t)
		}
		return fmt.Sprintf("%d,%d,%.2f", v.X, v.Y, v.R), nil
	case core.DataPoint:
		v, ok := p.(core.Point)
		if !ok {
			return "", mismatch(p, t)
		}
		return fmt.Sprintf("%d,%d", v.X, v.Y), nil
	case core.DataNonVisual:
		if _, ok := p.(core.NonVisual); !ok {
			return "", mismatch(p, t)
		}
		return "", nil
	}
	return "", fmt.Errorf("encode %s: %w", t, core.ErrUnsupportedType)
}

// Decode parses the stored string form of data type t.
func Decode(s string, t core.DataType) (core.Payload, error) {
	switch t {
	case core.DataInt:
		v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return nil, invalid(s, t, err)
		}
		return core.Int(v), nil
	case core.DataFloat:
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, invalid(s, t, err)
		}
		return core.Float(v), nil
	case core.DataBool:
		switch strings.TrimSpace(s) {
		case "1":
			return core.Bool(true), nil
		case "0":
			return core.Bool(false), nil
		}
		return nil, invalid(s, t, nil)
	case core.DataText:
		return core.Text(s), nil
	case core.DataRectangle:
		n, err := ints(s, 4)
		if err != nil {
			return nil, invalid(s, t, err)
		}
		return core.Rectangle{X1: n[0], Y1: n[1], X2: n[2], Y2: n[3]}.Normalize(), nil
	case core.DataCircle:
		parts := strings.Split(s, ",")
		if len(parts) != 3 {
			return nil, invalid(s, t, nil)
		}
		n, err := ints(strings.Join(parts[:2], ","), 2)
		if err != nil {
			return nil, invalid(s, t, err)
		}
		r, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
		if err != nil {
			return nil, invalid(s, t, err)
		}
		return core.Circle{X: n[0], Y: n[1], R: r}, nil
	case core.DataPoint:
		n, err := ints(s, 2)
		if err != nil {
			return nil, invalid(s, t, err)
		}
		return core.Point{X: n[0], Y: n[1]}, nil
	case core.DataNonVisual:
		return core.NonVisual{}, nil
	}
	return nil, fmt.Errorf("decode %s: %w", t, core.ErrUnsupportedType)
}

// CheckAllowed verifies an encoded value against the attribute's allowed
// values. Attributes without allowed values accept anything.
func CheckAllowed(encoded string, attr core.Attribute) error {
	if len(attr.AllowedValues) == 0 {
		return nil
	}
	for _, allowed := range attr.AllowedValues {
		if allowed == encoded {
			return nil
		}
	}
	return fmt.Errorf("attribute %s: %q not in allowed values %v: %w",
		attr.Name, encoded, attr.AllowedValues, core.ErrInvalidValue)
}

// SplitAllowedValues parses the stored allowed values column.
func SplitAllowedValues(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, AllowedValuesSeparator)
}

// JoinAllowedValues renders allowed values for storage.
func JoinAllowedValues(values []string) string {
	return strings.Join(values, AllowedValuesSeparator)
}

// FromJSON converts a value decoded by encoding/json into a payload of
// data type t. Numbers arrive as float64, positions as []any. Integer
// fields reject fractional numbers instead of truncating them.
func FromJSON(raw any, t core.DataType) (core.Payload, error) {
	switch t {
	case core.DataInt:
		f, ok := raw.(float64)
		if !ok {
			return nil, invalid(fmt.Sprint(raw), t, nil)
		}
		if err := integral(f); err != nil {
			return nil, invalid(fmt.Sprint(raw), t, err)
		}
		return core.Int(int64(f)), nil
	case core.DataFloat:
		f, ok := raw.(float64)
		if !ok {
			return nil, invalid(fmt.Sprint(raw), t, nil)
		}
		return core.Float(f), nil
	case core.DataBool:
		switch v := raw.(type) {
		case bool:
			return core.Bool(v), nil
		case float64:
			if v == 0 || v == 1 {
				return core.Bool(v == 1), nil
			}
		}
		return nil, invalid(fmt.Sprint(raw), t, nil)
	case core.DataText:
		s, ok := raw.(string)
		if !ok {
			return nil, invalid(fmt.Sprint(raw), t, nil)
		}
		return core.Text(s), nil
	case core.DataRectangle:
		n, err := floats(raw, 4)
		if err == nil {
			err = integral(n...)
		}
		if err != nil {
			return nil, invalid(fmt.Sprint(raw), t, err)
		}
		return core.Rectangle{X1: int(n[0]), Y1: int(n[1]), X2: int(n[2]), Y2: int(n[3])}.Normalize(), nil
	case core.DataCircle:
		n, err := floats(raw, 3)
		if err == nil {
			err = integral(n[:2]...)
		}
		if err != nil {
			return nil, invalid(fmt.Sprint(raw), t, err)
		}
		return core.Circle{X: int(n[0]), Y: int(n[1]), R: n[2]}, nil
	case core.DataPoint:
		n, err := floats(raw, 2)
		if err == nil {
			err = integral(n...)
		}
		if err != nil {
			return nil, invalid(fmt.Sprint(raw), t, err)
		}
		return core.Point{X: int(n[0]), Y: int(n[1])}, nil
	case core.DataNonVisual:
		return core.NonVisual{}, nil
	}
	return nil, fmt.Errorf("convert %s: %w", t, core.ErrUnsupportedType)
}

func ints(s string, n int) ([]int, error) {
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("expected %d components, got %d", n, len(parts))
	}
	out := make([]int, n)
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func floats(raw any, n int) ([]float64, error) {
	list, ok := raw.([]any)
	if !ok || len(list) != n {
		return nil, fmt.Errorf("expected list of %d numbers", n)
	}
	out := make([]float64, n)
	for i, item := range list {
		f, ok := item.(float64)
		if !ok || math.IsNaN(f) {
			return nil, fmt.Errorf("component %d is not a number", i)
		}
		out[i] = f
	}
	return out, nil
}

// integral fails for any value that is not a whole number a float64 holds
// exactly.
func integral(values ...float64) error {
	const exact = 1 << 53
	for _, f := range values {
		if f != math.Trunc(f) || f < -exact || f > exact {
			return fmt.Errorf("%v is not an integer", f)
		}
	}
	return nil
}

func mismatch(p core.Payload, t core.DataType) error {
	return fmt.Errorf("encode %s: payload is %s: %w", t, p.DataType(), core.ErrInvalidValue)
}

func invalid(s string, t core.DataType, cause error) error {
	if cause != nil {
		return fmt.Errorf("decode %s %q: %v: %w", t, s, cause, core.ErrInvalidValue)
	}
	return fmt.Errorf("decode %s %q: %w", t, s, core.ErrInvalidValue)
}
