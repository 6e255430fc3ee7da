package table

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Record は列名をキーとした生の一行です。
type Record map[string]string

var zonedLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02T15:04Z07:00",
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	dateLayout,
}

// Normalize は任意の生データを正規形の RowSet に変換します。
// 欠損列は null、余分な列は破棄、数値・時刻列は型変換されます。失敗することはなく、
// 不正なセルは劣化させて扱います。主キーが空の行と重複キーの後続行は破棄されます。
func Normalize(schema *Schema, records []Record) RowSet {
	out := RowSet{Schema: schema, Rows: make([]Row, 0, len(records))}
	seen := make(map[string]struct{}, len(records))

	for _, rec := range records {
		row := schema.NewRow()
		for i, col := range schema.Columns {
			raw, ok := rec[col.Name]
			if !ok {
				raw = ""
			}
			row.values[i] = col.parse(raw, schema.Location)
		}
		row = complete(schema, row)

		key := row.Key()
		if strings.TrimSpace(key) == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out.Rows = append(out.Rows, row)
	}

	return out
}

// NormalizeRows は既に型付けされた行を正規形に揃えます。
// 列の型と異なる値は文字列表現を経由して再解釈されます。
func NormalizeRows(schema *Schema, rows []Row) []Row {
	out := make([]Row, 0, len(rows))
	for _, src := range rows {
		row := schema.NewRow()
		for i, col := range schema.Columns {
			if src.schema == nil {
				continue
			}
			j, ok := src.schema.index[col.Name]
			if !ok {
				continue
			}
			v := src.values[j]
			if v.valid && v.kind == col.Kind {
				row.values[i] = v
				continue
			}
			row.values[i] = col.parse(v.String(), schema.Location)
		}
		out = append(out, complete(schema, row))
	}
	return out
}

func complete(schema *Schema, row Row) Row {
	for i, col := range schema.Columns {
		if col.Kind == KindText && col.Default != "" && strings.TrimSpace(row.values[i].text) == "" {
			row.values[i] = Text(col.Default)
		}
	}
	if schema.Complete != nil {
		row = schema.Complete(row)
	}
	return row
}

func (c Column) parse(raw string, loc *time.Location) Value {
	trimmed := strings.TrimSpace(raw)

	switch c.Kind {
	case KindNumber:
		if trimmed == "" {
			if c.BlankIsNull {
				return Null()
			}
			return Number(0)
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			if strings.EqualFold(trimmed, "nan") && c.BlankIsNull {
				return Null()
			}
			return Number(0)
		}
		return Number(f)
	case KindTime:
		t, ok := ParseTime(trimmed, loc)
		if !ok {
			return Null()
		}
		return Timestamp(t)
	case KindDate:
		t, ok := ParseTime(trimmed, loc)
		if !ok {
			return Null()
		}
		if loc == nil {
			loc = time.UTC
		}
		// 日付列は暦日として扱い、オフセット付きでも日付部分をそのまま loc に置く
		return Date(time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc))
	default:
		if isMissingText(trimmed) {
			return Text("")
		}
		return Text(trimmed)
	}
}

// ParseTime は ISO-8601 系の表現を解釈します。オフセットの無い値は loc として扱います。
func ParseTime(raw string, loc *time.Location) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func isMissingText(s string) bool {
	switch strings.ToLower(s) {
	case "", "nan", "none", "null":
		return true
	default:
		return false
	}
}
