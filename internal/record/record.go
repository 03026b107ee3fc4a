package record

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region map
// Map is an in-memory record keyed by field name. Values keep their Go type:
// bool, float64/float32, int/int64/int32 and uint64/uint32.
type Map map[string]any

// Bool implements Store.
func (m Map) Bool(name string) (bool, bool) {
	v, ok := m[name].(bool)
	return v, ok
}

// Float implements Store.
func (m Map) Float(name string) (float64, bool) {
	switch v := m[name].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	}
	return 0, false
}

// Int implements Store.
func (m Map) Int(name string) (int64, bool) {
	switch v := m[name].(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case int32:
		return int64(v), true
	}
	return 0, false
}

// Uint implements Store.
func (m Map) Uint(name string) (uint64, bool) {
	switch v := m[name].(type) {
	case uint64:
		return v, true
	case uint32:
		return uint64(v), true
	case uint:
		return uint64(v), true
	}
	return 0, false
}

// #endregion map

// #region struct
// Struct is a record backed by a protobuf Struct, as decoded from JSON.
// JSON has one number type, so Float, Int and Uint all read number values;
// Int and Uint additionally accept decimal strings so that 64-bit event
// numbers survive the float64 round trip.
type Struct struct {
	pb *structpb.Struct
}

// NewStruct wraps an existing protobuf Struct. A nil Struct yields an empty record.
func NewStruct(pb *structpb.Struct) Struct {
	if pb == nil {
		pb = &structpb.Struct{}
	}
	return Struct{pb: pb}
}

// FromMap builds a Struct record from plain Go values.
func FromMap(m map[string]any) (Struct, error) {
	pb, err := structpb.NewStruct(m)
	if err != nil {
		return Struct{}, fmt.Errorf("build struct record: %w", err)
	}
	return Struct{pb: pb}, nil
}

// Proto returns the underlying protobuf message.
func (s Struct) Proto() *structpb.Struct { return s.pb }

func (s Struct) value(name string) (*structpb.Value, bool) {
	if s.pb == nil {
		return nil, false
	}
	v, ok := s.pb.GetFields()[name]
	return v, ok
}

// Bool implements Store.
func (s Struct) Bool(name string) (bool, bool) {
	v, ok := s.value(name)
	if !ok {
		return false, false
	}
	b, ok := v.GetKind().(*structpb.Value_BoolValue)
	if !ok {
		return false, false
	}
	return b.BoolValue, true
}

// Float implements Store.
func (s Struct) Float(name string) (float64, bool) {
	v, ok := s.value(name)
	if !ok {
		return 0, false
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, false
	}
	return n.NumberValue, true
}

// maxExactInteger is the largest magnitude a JSON number can carry without
// rounding. Larger identifiers must be sent as decimal strings.
const maxExactInteger = 1<<53 - 1

func exactInteger(f float64) bool {
	return f == math.Trunc(f) && math.Abs(f) <= maxExactInteger
}

// Int implements Store.
func (s Struct) Int(name string) (int64, bool) {
	v, ok := s.value(name)
	if !ok {
		return 0, false
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		f := k.NumberValue
		if !exactInteger(f) {
			return 0, false
		}
		return int64(f), true
	case *structpb.Value_StringValue:
		i, err := strconv.ParseInt(k.StringValue, 10, 64)
		if err != nil {
			return 0, false
		}
		return i, true
	}
	return 0, false
}

// Uint implements Store.
func (s Struct) Uint(name string) (uint64, bool) {
	v, ok := s.value(name)
	if !ok {
		return 0, false
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		f := k.NumberValue
		if f < 0 || !exactInteger(f) {
			return 0, false
		}
		return uint64(f), true
	case *structpb.Value_StringValue:
		u, err := strconv.ParseUint(k.StringValue, 10, 64)
		if err != nil {
			return 0, false
		}
		return u, true
	}
	return 0, false
}

// #endregion struct

// #region reader
// Reader streams newline-delimited JSON records. Blank lines are skipped.
type Reader struct {
	scanner *bufio.Scanner
	line    int
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &Reader{scanner: sc}
}

// Next decodes the next record. It returns io.EOF after the last record.
func (r *Reader) Next() (Struct, error) {
	for r.scanner.Scan() {
		r.line++
		text := strings.TrimSpace(r.scanner.Text())
		if text == "" {
			continue
		}
		pb := &structpb.Struct{}
		if err := protojson.Unmarshal([]byte(text), pb); err != nil {
			return Struct{}, fmt.Errorf("decode record line %d: %w", r.line, err)
		}
		return Struct{pb: pb}, nil
	}
	if err := r.scanner.Err(); err != nil {
		return Struct{}, fmt.Errorf("read records: %w", err)
	}
	return Struct{}, io.EOF
}

// ReadAll decodes every remaining record.
func (r *Reader) ReadAll() ([]Struct, error) {
	var out []Struct
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
}

// #endregion reader

// #region number
// Number reads a numeric field of any width as float64, trying Float, Int and
// Uint in that order.
func Number(s Store, name string) (float64, bool) {
	if v, ok := s.Float(name); ok {
		return v, true
	}
	if v, ok := s.Int(name); ok {
		return float64(v), true
	}
	if v, ok := s.Uint(name); ok {
		return float64(v), true
	}
	return 0, false
}

// #endregion number
