package changeset

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/starford/csvledger/internal/apperr"
)

// Format is a changeset file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// FormatOf returns the format implied by the extension of path.
func FormatOf(path string) (Format, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		return FormatCSV, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", apperr.Formatf(path, 0, "unsupported changeset format %q", ext)
	}
}

// Load reads the changeset at path. The format follows the extension.
func Load(path string) ([]Operation, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("changeset: open: %w", err)
	}
	defer f.Close()
	return LoadReader(f, format, path)
}

// LoadReader reads a changeset in the given format. name is used in errors.
func LoadReader(r io.Reader, format Format, name string) ([]Operation, error) {
	var (
		ops []Operation
		err error
	)
	switch format {
	case FormatCSV:
		ops, err = loadCSV(r, name)
	case FormatJSON:
		ops, err = loadJSON(r, name)
	default:
		return nil, apperr.Formatf(name, 0, "unsupported changeset format %q", format)
	}
	if err != nil {
		return nil, err
	}
	for _, op := range ops {
		if err := op.Validate(); err != nil {
			return nil, &apperr.FormatError{Path: name, Line: op.Line, Msg: "invalid operation", Err: err}
		}
	}
	return ops, nil
}

func loadCSV(r io.Reader, name string) ([]Operation, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, &apperr.FormatError{Path: name, Line: 1, Msg: "unreadable header", Err: err}
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	if !slices.Contains(header, TypeColumn) {
		return nil, apperr.Formatf(name, 1, "missing %q column", TypeColumn)
	}

	var ops []Operation
	for {
		values, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return ops, nil
		}
		if err != nil {
			return nil, &apperr.FormatError{Path: name, Msg: "unreadable row", Err: err}
		}
		line, _ := cr.FieldPos(0)
		if len(values) > len(header) {
			return nil, apperr.Formatf(name, line, "row has %d values, header has %d columns", len(values), len(header))
		}
		row := make(map[string]string, len(header))
		for i, v := range values {
			row[header[i]] = v
		}
		ops = append(ops, newOperation(row, header, line))
	}
}

func loadJSON(r io.Reader, name string) ([]Operation, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var raw []map[string]any
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, &apperr.FormatError{Path: name, Msg: "changeset must be a JSON array of objects", Err: err}
	}
	ops := make([]Operation, 0, len(raw))
	for i, obj := range raw {
		row := make(map[string]string, len(obj))
		columns := make([]string, 0, len(obj))
		for k, v := range obj {
			s, err := jsonString(v)
			if err != nil {
				return nil, &apperr.FormatError{Path: name, Line: i + 1, Msg: fmt.Sprintf("field %q", k), Err: err}
			}
			row[k] = s
			columns = append(columns, k)
		}
		slices.Sort(columns)
		ops = append(ops, newOperation(row, columns, i+1))
	}
	return ops, nil
}

// jsonString renders a scalar JSON value as the text a CSV cell would hold.
func jsonString(v any) (string, error) {
	switch v := v.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case bool:
		return strconv.FormatBool(v), nil
	default:
		return "", fmt.Errorf("unsupported value of type %T", v)
	}
}
