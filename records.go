package sqlkit

import (
	"fmt"
	"reflect"
	"strings"
)

// Record is one result row keyed by column name.
type Record = map[string]any

// Records materializes every row into a Record by zipping column names with
// row values.
//
// Column-name admission is an explicit allow-list, not a process-wide
// identifier table: declare the expected columns with WithColumns, or opt
// into WithDynamicColumns to admit anything. With neither, the first column
// fails with *UnknownColumnError, the safe default when column names are
// attacker-influenced.
func (r *QueryResult) Records(opts ...QueryOption) ([]Record, error) {
	o := ApplyOptions(opts)

	if !o.DynamicColumns {
		allowed := make(map[string]struct{}, len(o.Columns))
		for _, c := range o.Columns {
			allowed[c] = struct{}{}
		}
		for _, col := range r.Columns {
			if _, ok := allowed[col]; !ok {
				return nil, &UnknownColumnError{Column: col, Allowed: o.Columns}
			}
		}
	}

	records := make([]Record, 0, len(r.Rows))
	for _, row := range r.Rows {
		rec := make(Record, len(r.Columns))
		for i, col := range r.Columns {
			if i < len(row) {
				rec[col] = row[i]
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// MustRecords is the raising form of Records: it panics with the typed
// error.
func (r *QueryResult) MustRecords(opts ...QueryOption) []Record {
	records, err := r.Records(opts...)
	if err != nil {
		panic(err)
	}
	return records
}

// Collect materializes every row into a value of type T, binding columns to
// struct fields. A field binds by exact `db:"..."` tag match first, then by
// unique case-insensitive field-name match. A column with no corresponding
// field fails with *RecordError; the target type is the allow-list, so no
// column admission options are needed.
func Collect[T any](r *QueryResult) ([]T, error) {
	var zero T
	targetType := reflect.TypeOf(zero)
	if targetType == nil || targetType.Kind() != reflect.Struct {
		return nil, fmt.Errorf("collect target %T is not a struct", zero)
	}

	fields, err := bindColumns(targetType, r.Columns)
	if err != nil {
		return nil, err
	}

	out := make([]T, 0, len(r.Rows))
	for _, row := range r.Rows {
		var item T
		rv := reflect.ValueOf(&item).Elem()
		for i, fieldIdx := range fields {
			if i >= len(row) || row[i] == nil {
				continue
			}
			if err := assignField(rv.Field(fieldIdx), row[i]); err != nil {
				return nil, fmt.Errorf("column %q: %w", r.Columns[i], err)
			}
		}
		out = append(out, item)
	}
	return out, nil
}

// MustCollect is the raising form of Collect.
func MustCollect[T any](r *QueryResult) []T {
	items, err := Collect[T](r)
	if err != nil {
		panic(err)
	}
	return items
}

// CollectOne is the one-row form of Collect: zero rows fail with
// *NoResultsError, more than one with *MultipleResultsError.
func CollectOne[T any](r *QueryResult, opts ...QueryOption) (T, error) {
	var zero T
	if err := r.exactlyOne(opts); err != nil {
		return zero, err
	}
	items, err := Collect[T](r)
	if err != nil {
		return zero, err
	}
	return items[0], nil
}

// MustCollectOne is the raising form of CollectOne.
func MustCollectOne[T any](r *QueryResult, opts ...QueryOption) T {
	item, err := CollectOne[T](r, opts...)
	if err != nil {
		panic(err)
	}
	return item
}

// OneRecord is the one-row form of Records.
func (r *QueryResult) OneRecord(opts ...QueryOption) (Record, error) {
	if err := r.exactlyOne(opts); err != nil {
		return nil, err
	}
	records, err := r.Records(opts...)
	if err != nil {
		return nil, err
	}
	return records[0], nil
}

// MustOneRecord is the raising form of OneRecord.
func (r *QueryResult) MustOneRecord(opts ...QueryOption) Record {
	rec, err := r.OneRecord(opts...)
	if err != nil {
		panic(err)
	}
	return rec
}

func (r *QueryResult) exactlyOne(opts []QueryOption) error {
	o := ApplyOptions(opts)
	label := o.Label
	if label == "" {
		label = r.Label()
	}
	switch {
	case len(r.Rows) == 0:
		return &NoResultsError{Label: label}
	case len(r.Rows) > 1:
		return &MultipleResultsError{Label: label, Count: len(r.Rows)}
	}
	return nil
}

// bindColumns maps each result column to a field index of targetType.
func bindColumns(targetType reflect.Type, columns []string) ([]int, error) {
	byTag := make(map[string]int)
	byName := make(map[string]int)
	ambiguous := make(map[string]bool)

	for i := 0; i < targetType.NumField(); i++ {
		f := targetType.Field(i)
		if !f.IsExported() {
			continue
		}
		if tag, ok := f.Tag.Lookup("db"); ok && tag != "" && tag != "-" {
			byTag[tag] = i
		}
		lower := strings.ToLower(f.Name)
		if _, seen := byName[lower]; seen {
			ambiguous[lower] = true
		}
		byName[lower] = i
	}

	fields := make([]int, len(columns))
	for i, col := range columns {
		if idx, ok := byTag[col]; ok {
			fields[i] = idx
			continue
		}
		lower := strings.ToLower(col)
		idx, ok := byName[lower]
		if !ok || ambiguous[lower] {
			return nil, &RecordError{Target: targetType.String(), Column: col}
		}
		fields[i] = idx
	}
	return fields, nil
}

// assignField stores a normalized result value into a struct field,
// converting between compatible numeric kinds.
func assignField(field reflect.Value, value any) error {
	vv := reflect.ValueOf(value)
	if vv.Type().AssignableTo(field.Type()) {
		field.Set(vv)
		return nil
	}
	if vv.Type().ConvertibleTo(field.Type()) {
		field.Set(vv.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}
