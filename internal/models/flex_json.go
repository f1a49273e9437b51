package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"
)

// NaN is the undefined value used for missing stats and features.
func NaN() float64 { return math.NaN() }

// Stat is a box-score number that may be undefined. Undefined values are
// NaN in memory and null on the wire.
type Stat float64

// Defined reports whether the stat holds a value.
func (s Stat) Defined() bool { return !math.IsNaN(float64(s)) }

func (s Stat) MarshalJSON() ([]byte, error) {
	f := float64(s)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, f, 'g', -1, 64), nil
}

// UnmarshalJSON accepts numbers, quoted numbers and null/"" (undefined).
func (s *Stat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = Stat(math.NaN())
		return nil
	}
	if data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return fmt.Errorf("stat: %w", err)
		}
		if str == "" {
			*s = Stat(math.NaN())
			return nil
		}
		f, err := strconv.ParseFloat(str, 64)
		if err != nil {
			return fmt.Errorf("stat: %w", err)
		}
		*s = Stat(f)
		return nil
	}
	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("stat: %w", err)
	}
	*s = Stat(f)
	return nil
}

// dateLayouts covers the formats the stats API uses across endpoints.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05",
	"Jan 02, 2006",
	time.RFC3339,
}

// ParseGameDate parses a stats API date into a UTC calendar date.
func ParseGameDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized game date %q", s)
}

// nbaFieldMaps caches `nba` tag -> struct field index mappings per type.
var nbaFieldMaps sync.Map

func nbaFieldMap(t reflect.Type) map[string]int {
	if m, ok := nbaFieldMaps.Load(t); ok {
		return m.(map[string]int)
	}
	m := make(map[string]int, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("nba")
		if tag == "" || tag == "-" {
			continue
		}
		m[tag] = i
	}
	nbaFieldMaps.Store(t, m)
	return m
}

// DecodeRow fills dst (a pointer to struct) from one stats API rowSet entry,
// matching headers against `nba` struct tags. Values may be native JSON
// types or strings; they are coerced to the field's type. Stat fields that
// are null become NaN.
func DecodeRow(headers []string, row []any, dst any) error {
	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("decode row: dst must be a pointer to struct, got %T", dst)
	}
	v = v.Elem()
	fieldMap := nbaFieldMap(v.Type())

	// Stats default to undefined so missing headers never read as zero.
	statType := reflect.TypeOf(Stat(0))
	for _, idx := range fieldMap {
		if fv := v.Field(idx); fv.Type() == statType {
			fv.SetFloat(math.NaN())
		}
	}

	for i, h := range headers {
		if i >= len(row) {
			break
		}
		idx, ok := fieldMap[h]
		if !ok {
			continue
		}
		if err := assignField(v.Field(idx), row[i]); err != nil {
			return fmt.Errorf("decode row: column %s: %w", h, err)
		}
	}
	return nil
}

func assignField(fv reflect.Value, raw any) error {
	if raw == nil {
		return nil
	}
	if fv.Type() == reflect.TypeOf(time.Time{}) {
		s, ok := raw.(string)
		if !ok {
			return fmt.Errorf("date must be a string, got %T", raw)
		}
		t, err := ParseGameDate(s)
		if err != nil {
			return err
		}
		fv.Set(reflect.ValueOf(t))
		return nil
	}
	switch val := raw.(type) {
	case float64:
		switch fv.Kind() {
		case reflect.Float32, reflect.Float64:
			fv.SetFloat(val)
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			fv.SetInt(int64(val))
		case reflect.String:
			fv.SetString(strconv.FormatFloat(val, 'f', -1, 64))
		}
	case json.Number:
		coerceStringToField(fv, val.String())
	case string:
		if val == "" {
			return nil
		}
		coerceStringToField(fv, val)
	case bool:
		if fv.Kind() == reflect.Bool {
			fv.SetBool(val)
		}
	}
	return nil
}

// coerceStringToField converts a string value to the field's native type.
func coerceStringToField(fv reflect.Value, s string) {
	switch fv.Kind() {
	case reflect.Float32, reflect.Float64:
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			fv.SetFloat(n)
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// ParseFloat handles "28.5" → truncate to int
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			fv.SetInt(int64(n))
		}
	case reflect.Bool:
		if b, err := strconv.ParseBool(s); err == nil {
			fv.SetBool(b)
		}
	case reflect.String:
		fv.SetString(s)
	}
}
