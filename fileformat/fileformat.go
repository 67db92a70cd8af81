// Package fileformat defines the dataset output writer contract and a
// CSV implementation. Arrow/Feather output is out of scope:
// DatasetWriter exists so a second format can be added later without
// touching reader or colspec, but only CSV is implemented here.
package fileformat

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/opensafely-core/ehrql-go/colspec"
	"github.com/opensafely-core/ehrql-go/reader"
)

// DatasetWriter streams a dataset's rows to w, given the column order
// and inferred specs for the header.
type DatasetWriter interface {
	WriteHeader(columns []colspec.Spec) error
	WriteRow(row reader.Row) error
	Close() error
}

// CSVWriter writes patient_id plus each variable as a CSV row, in the
// column order passed to WriteHeader; nulls are written as the empty
// field.
type CSVWriter struct {
	w *csv.Writer
	n int // expected field count, set by WriteHeader
}

func NewCSVWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{w: csv.NewWriter(w)}
}

func (c *CSVWriter) WriteHeader(columns []colspec.Spec) error {
	header := make([]string, len(columns)+1)
	header[0] = "patient_id"
	for i, col := range columns {
		header[i+1] = col.Name
	}
	c.n = len(header)
	return c.w.Write(header)
}

func (c *CSVWriter) WriteRow(row reader.Row) error {
	fields := make([]string, 0, c.n)
	fields = append(fields, row.Key)
	for _, v := range row.Values {
		fields = append(fields, formatValue(v))
	}
	if len(fields) != c.n {
		return fmt.Errorf("fileformat: row has %d fields, header has %d", len(fields), c.n)
	}
	return c.w.Write(fields)
}

func (c *CSVWriter) Close() error {
	c.w.Flush()
	return c.w.Error()
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case bool:
		if val {
			return "T"
		}
		return "F"
	case int64:
		return strconv.FormatInt(val, 10)
	case int:
		return strconv.Itoa(val)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}
