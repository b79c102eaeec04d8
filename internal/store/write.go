package store

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strconv"

	"github.com/starford/csvledger/internal/apperr"
	"github.com/starford/csvledger/internal/codec"
	"github.com/starford/csvledger/internal/models"
	"github.com/starford/csvledger/internal/storage"
)

// NextIncrementalID returns one more than the largest id in the index, or
// "1" for an empty store. Every id must be an integer.
func (s *Store) NextIncrementalID() (string, error) {
	if len(s.index) == 0 {
		return "1", nil
	}
	var highest int64
	for _, id := range slices.Sorted(maps.Keys(s.index)) {
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return "", &apperr.NonIntegerIDError{ID: id}
		}
		highest = max(highest, n)
	}
	return strconv.FormatInt(highest+1, 10), nil
}

// Append writes records at the end of the data file. Records without an id
// get the next incremental id. It returns the records as written.
func (s *Store) Append(records ...models.Transaction) ([]models.Transaction, error) {
	if len(records) == 0 {
		return nil, nil
	}

	// Encode everything before touching the file.
	out := make([]models.Transaction, len(records))
	lines := make([][]byte, len(records))
	pending := make(map[string]struct{}, len(records))
	nextID := int64(-1)
	for i, r := range records {
		r = r.Clone()
		if r.ID == "" {
			if nextID < 0 {
				id, err := s.NextIncrementalID()
				if err != nil {
					return nil, err
				}
				nextID, _ = strconv.ParseInt(id, 10, 64)
			}
			for {
				r.ID = strconv.FormatInt(nextID, 10)
				nextID++
				if _, taken := pending[r.ID]; !taken {
					break
				}
			}
		}
		if _, dup := s.index[r.ID]; dup {
			return nil, fmt.Errorf("store: append %s: %w", r.ID, apperr.ErrDuplicateID)
		}
		if _, dup := pending[r.ID]; dup {
			return nil, fmt.Errorf("store: append %s: %w", r.ID, apperr.ErrDuplicateID)
		}
		pending[r.ID] = struct{}{}
		line, err := s.encode(r)
		if err != nil {
			return nil, err
		}
		out[i], lines[i] = r, line
	}

	f, err := os.OpenFile(s.path, os.O_RDWR|os.O_APPEND, 0)
	if err != nil {
		return nil, fmt.Errorf("store: append: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("store: append: %w", err)
	}
	offset := info.Size()

	var buf bytes.Buffer
	if offset > 0 {
		last := make([]byte, 1)
		if _, err := f.ReadAt(last, offset-1); err != nil {
			return nil, fmt.Errorf("store: append: %w", err)
		}
		if last[0] != '\n' {
			buf.WriteByte('\n')
			offset++
		}
	}
	offsets := make([]int64, len(lines))
	for i, line := range lines {
		offsets[i] = offset
		buf.Write(line)
		offset += int64(len(line))
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("store: append: %w", err)
	}
	if err := f.Sync(); err != nil {
		return nil, fmt.Errorf("store: append: %w", err)
	}

	if s.index == nil {
		s.index = make(map[string]int64)
	}
	for i, r := range out {
		s.index[r.ID] = offsets[i]
	}
	if err := s.saveIndex(); err != nil {
		return nil, err
	}
	return out, nil
}

// BatchUpdate overlays the given columns on the records with matching ids
// and rewrites the file. Columns not named are left alone; an empty value
// clears the column. It returns the ids that were matched.
func (s *Store) BatchUpdate(updates map[string]map[string]string) (map[string]struct{}, error) {
	for id, fields := range updates {
		for col := range fields {
			if col == s.idColumn {
				return nil, fmt.Errorf("store: update %s: the id column cannot be changed", id)
			}
			if !s.codec.HasColumn(col) {
				return nil, apperr.Formatf(s.path, 0, "update %s: unknown column %q", id, col)
			}
		}
	}
	return s.rewrite(nil, func(id string, values []string) ([]string, bool, error) {
		fields, ok := updates[id]
		if !ok {
			return values, false, nil
		}
		t, err := s.codec.Decode(values)
		if err != nil {
			return nil, false, err
		}
		for col, v := range fields {
			if err := s.codec.Set(&t, col, v); err != nil {
				return nil, false, fmt.Errorf("update %s: column %q: %w", id, col, err)
			}
		}
		values, err = s.codec.Encode(t)
		return values, true, err
	})
}

// BatchReplace overwrites whole records: every column of a matching row
// takes the value held by the replacement, including empty ones. It returns
// the ids that were matched.
func (s *Store) BatchReplace(records ...models.Transaction) (map[string]struct{}, error) {
	byID := make(map[string]models.Transaction, len(records))
	for _, r := range records {
		byID[r.ID] = r
	}
	return s.rewrite(nil, func(id string, values []string) ([]string, bool, error) {
		r, ok := byID[id]
		if !ok {
			return values, false, nil
		}
		values, err := s.codec.Encode(r)
		return values, true, err
	})
}

// BatchDelete removes the records with the given ids and rewrites the file.
// It returns the ids that were removed.
func (s *Store) BatchDelete(ids ...string) (map[string]struct{}, error) {
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	return s.rewrite(nil, func(id string, values []string) ([]string, bool, error) {
		if _, ok := drop[id]; ok {
			return nil, true, nil
		}
		return values, false, nil
	})
}

// AddColumns appends the columns missing from the header and pads every
// row to the new width.
func (s *Store) AddColumns(cols ...string) error {
	header := s.Fieldnames()
	for _, c := range cols {
		if c != "" && !slices.Contains(header, c) {
			header = append(header, c)
		}
	}
	if len(header) == len(s.fieldnames) {
		return nil
	}
	width := len(header)
	_, err := s.rewrite(header, func(_ string, values []string) ([]string, bool, error) {
		for len(values) < width {
			values = append(values, "")
		}
		return values, false, nil
	})
	return err
}

// rowFunc receives the id and values of one row. It returns the values to
// write (nil drops the row) and whether the row counts as matched.
type rowFunc func(id string, values []string) ([]string, bool, error)

// rewrite streams the data file through fn into a replacement file,
// recomputing every offset, then swaps it in and saves the new index.
// A non-nil header replaces the current one. Rows fn leaves unchanged are
// copied byte for byte.
func (s *Store) rewrite(header []string, fn rowFunc) (map[string]struct{}, error) {
	if header == nil {
		header = s.fieldnames
	}
	idIdx := slices.Index(s.fieldnames, s.idColumn)
	if idIdx < 0 {
		return nil, apperr.Formatf(s.path, 1, "id column %q not in header %v", s.idColumn, s.fieldnames)
	}

	matched := make(map[string]struct{})
	index := make(map[string]int64, len(s.index))

	err := storage.ReplaceFile(s.path, func(w *os.File) error {
		src, err := os.Open(s.path)
		if err != nil {
			return err
		}
		defer src.Close()
		br := bufio.NewReader(src)
		bw := bufio.NewWriter(w)

		if _, _, err := readHeaderLine(br, s.path); err != nil {
			return err
		}
		headerLine, err := codec.EncodeLine(header)
		if err != nil {
			return err
		}
		if _, err := bw.Write(headerLine); err != nil {
			return err
		}
		offset := int64(len(headerLine))

		lineNo := 1
		for {
			line, rerr := br.ReadBytes('\n')
			if len(line) > 0 {
				lineNo++
				values, err := codec.DecodeLine(line)
				if err != nil {
					return &apperr.FormatError{Path: s.path, Line: lineNo, Msg: "unreadable row", Err: err}
				}
				if values != nil {
					id := ""
					if idIdx < len(values) {
						id = values[idIdx]
					}
					outValues, hit, err := fn(id, values)
					if err != nil {
						return err
					}
					if hit {
						matched[id] = struct{}{}
					}
					if outValues != nil {
						out := line
						if hit || !slices.Equal(outValues, values) {
							if out, err = codec.EncodeLine(outValues); err != nil {
								return err
							}
						} else if out[len(out)-1] != '\n' {
							out = append(slices.Clip(out), '\n')
						}
						if id != "" {
							index[id] = offset
						}
						if _, err := bw.Write(out); err != nil {
							return err
						}
						offset += int64(len(out))
					}
				}
			}
			if errors.Is(rerr, io.EOF) {
				break
			}
			if rerr != nil {
				return rerr
			}
		}
		return bw.Flush()
	})
	if err != nil {
		return nil, fmt.Errorf("store: rewrite %s: %w", s.path, err)
	}

	s.setFieldnames(header)
	s.index = index
	if err := s.saveIndex(); err != nil {
		return nil, err
	}
	return matched, nil
}

func (s *Store) encode(t models.Transaction) ([]byte, error) {
	values, err := s.codec.Encode(t)
	if err != nil {
		return nil, fmt.Errorf("store: encode %s: %w", t.ID, err)
	}
	line, err := codec.EncodeLine(values)
	if err != nil {
		return nil, fmt.Errorf("store: encode %s: %w", t.ID, err)
	}
	return line, nil
}
