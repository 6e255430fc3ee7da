package table

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ErrMalformedContent は CSV として解釈できない内容を表します。
var ErrMalformedContent = errors.New("table: malformed content")

// Decode は CSV を読み込み正規化します。
// 空の内容は空の RowSet になります。CSV 構文エラーのみ ErrMalformedContent を返します。
func Decode(schema *Schema, data []byte) (RowSet, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if len(bytes.TrimSpace(data)) == 0 {
		return RowSet{Schema: schema, Rows: []Row{}}, nil
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		return RowSet{}, fmt.Errorf("%w: %s header: %v", ErrMalformedContent, schema.Name, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var records []Record
	for {
		fields, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return RowSet{}, fmt.Errorf("%w: %s: %v", ErrMalformedContent, schema.Name, err)
		}
		rec := make(Record, len(header))
		for i, name := range header {
			if i >= len(fields) {
				break
			}
			if _, dup := rec[name]; dup {
				continue
			}
			rec[name] = fields[i]
		}
		records = append(records, rec)
	}

	return Normalize(schema, records), nil
}

// Encode は RowSet をヘッダ付き CSV に書き出します。出力は決定的です。
func Encode(rs RowSet) []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write(rs.Schema.ColumnNames())
	for _, row := range rs.Rows {
		_ = w.Write(row.Strings())
	}
	w.Flush()
	return buf.Bytes()
}
