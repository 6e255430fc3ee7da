package table

import (
	"fmt"
	"strconv"
	"time"
)

// Kind は列の型です。
type Kind int

const (
	KindText Kind = iota
	KindNumber
	KindTime
	KindDate
)

const (
	timeLayout = time.RFC3339Nano
	dateLayout = "2006-01-02"
)

// Column は正規列の定義です。
type Column struct {
	Name string
	Kind Kind
	// Default は空のテキスト列を埋める値です。
	Default string
	// BlankIsNull が true の数値列は空欄を null のまま保持します。false の場合は 0 になります。
	BlankIsNull bool
}

// Schema はテーブルの正規形を表します。
type Schema struct {
	Name     string
	Key      string
	Columns  []Column
	Location *time.Location
	// Complete は正規化後の行に派生値を補完します。
	Complete func(Row) Row

	index map[string]int
}

// NewSchema は Schema を生成します。key は columns に含まれている必要があります。
func NewSchema(name, key string, columns []Column, loc *time.Location, complete func(Row) Row) *Schema {
	if loc == nil {
		loc = time.UTC
	}
	s := &Schema{
		Name:     name,
		Key:      key,
		Columns:  columns,
		Location: loc,
		Complete: complete,
		index:    make(map[string]int, len(columns)),
	}
	for i, col := range columns {
		s.index[col.Name] = i
	}
	if _, ok := s.index[key]; !ok {
		panic(fmt.Sprintf("table: key column %q missing from schema %s", key, name))
	}
	return s
}

// ColumnNames は正規順の列名を返します。
func (s *Schema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, col := range s.Columns {
		names[i] = col.Name
	}
	return names
}

// NewRow は全列が null の行を生成します。
func (s *Schema) NewRow() Row {
	values := make([]Value, len(s.Columns))
	for i, col := range s.Columns {
		values[i] = Value{kind: col.Kind}
	}
	return Row{schema: s, values: values}
}

func (s *Schema) mustIndex(name string) int {
	i, ok := s.index[name]
	if !ok {
		panic(fmt.Sprintf("table: unknown column %q in %s", name, s.Name))
	}
	return i
}

// Value は正規化済みのセル値です。
type Value struct {
	kind  Kind
	valid bool
	text  string
	num   float64
	at    time.Time
}

// Text はテキスト値を返します。
func Text(s string) Value {
	return Value{kind: KindText, valid: true, text: s}
}

// Number は数値を返します。
func Number(f float64) Value {
	return Value{kind: KindNumber, valid: true, num: f}
}

// Timestamp は時刻値を返します。
func Timestamp(t time.Time) Value {
	return Value{kind: KindTime, valid: true, at: t}
}

// Date は日付値を返します。時刻部分は切り捨てられます。
func Date(t time.Time) Value {
	return Value{kind: KindDate, valid: true, at: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())}
}

// Null は null 値を返します。
func Null() Value {
	return Value{}
}

// IsNull は値が null かどうかを返します。
func (v Value) IsNull() bool {
	return !v.valid
}

// String は CSV に書き出す正規表現を返します。null は空文字列です。
func (v Value) String() string {
	if !v.valid {
		return ""
	}
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindTime:
		return v.at.Format(timeLayout)
	case KindDate:
		return v.at.Format(dateLayout)
	default:
		return v.text
	}
}

// Float は数値を返します。
func (v Value) Float() (float64, bool) {
	if !v.valid || v.kind != KindNumber {
		return 0, false
	}
	return v.num, true
}

// Time は時刻・日付値を返します。
func (v Value) Time() (time.Time, bool) {
	if !v.valid || (v.kind != KindTime && v.kind != KindDate) {
		return time.Time{}, false
	}
	return v.at, true
}

// Row はスキーマに沿った一行です。
type Row struct {
	schema *Schema
	values []Value
}

// Schema は行のスキーマを返します。
func (r Row) Schema() *Schema {
	return r.schema
}

// Key は主キー値を返します。
func (r Row) Key() string {
	if r.schema == nil {
		return ""
	}
	return r.values[r.schema.mustIndex(r.schema.Key)].String()
}

// Get は列の値を返します。
func (r Row) Get(col string) Value {
	return r.values[r.schema.mustIndex(col)]
}

// Text は列の文字列表現を返します。
func (r Row) Text(col string) string {
	return r.Get(col).String()
}

// Float は数値列の値を返します。
func (r Row) Float(col string) (float64, bool) {
	return r.Get(col).Float()
}

// Time は時刻列の値を返します。
func (r Row) Time(col string) (time.Time, bool) {
	return r.Get(col).Time()
}

// Set は列に値を設定した新しい行を返します。元の行は変更されません。
func (r Row) Set(col string, v Value) Row {
	out := r.Clone()
	out.values[r.schema.mustIndex(col)] = v
	return out
}

// Clone は行のコピーを返します。
func (r Row) Clone() Row {
	values := make([]Value, len(r.values))
	copy(values, r.values)
	return Row{schema: r.schema, values: values}
}

// Strings は正規順の文字列表現を返します。
func (r Row) Strings() []string {
	out := make([]string, len(r.values))
	for i, v := range r.values {
		out[i] = v.String()
	}
	return out
}

// RowSet は一つのテーブルの行集合です。
type RowSet struct {
	Schema *Schema
	Rows   []Row
}

// Len は行数を返します。
func (rs RowSet) Len() int {
	return len(rs.Rows)
}

// Find は主キーで行を探します。
func (rs RowSet) Find(key string) (Row, bool) {
	for _, row := range rs.Rows {
		if row.Key() == key {
			return row, true
		}
	}
	return Row{}, false
}

// Filter は条件に一致する行のみを含む RowSet を返します。
func (rs RowSet) Filter(keep func(Row) bool) RowSet {
	out := RowSet{Schema: rs.Schema, Rows: make([]Row, 0, len(rs.Rows))}
	for _, row := range rs.Rows {
		if keep(row) {
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}
