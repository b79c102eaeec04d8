package store

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"

	"github.com/starford/csvledger/internal/apperr"
	"github.com/starford/csvledger/internal/codec"
	"github.com/starford/csvledger/internal/models"
)

// ReadOne returns the record with the given id. A missing id is reported
// through the boolean, not as an error.
func (s *Store) ReadOne(id string) (models.Transaction, bool, error) {
	recs, err := s.ReadMany(id)
	if err != nil || len(recs) == 0 {
		return models.Transaction{}, false, err
	}
	return recs[0], true, nil
}

// ReadMany returns the records for the ids present in the index, in the
// order requested. Unknown ids are skipped.
func (s *Store) ReadMany(ids ...string) ([]models.Transaction, error) {
	out, err := s.readMany(ids, false)
	if !errors.Is(err, errStale) {
		return out, err
	}
	s.logger.Warn("store: index out of date, rebuilding", slog.String("path", s.path))
	if err := s.RebuildIndex(); err != nil {
		return nil, err
	}
	return s.readMany(ids, true)
}

var errStale = errors.New("index does not match data file")

// readMany seeks to each indexed offset. Unless strict, a line that cannot be
// decoded or does not carry the expected id yields errStale.
func (s *Store) readMany(ids []string, strict bool) ([]models.Transaction, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("store: read: %w", err)
	}
	defer f.Close()

	var out []models.Transaction
	for _, id := range ids {
		off, ok := s.index[id]
		if !ok {
			continue
		}
		line, err := readLineAt(f, off)
		if err != nil {
			return nil, fmt.Errorf("store: read %s: %w", id, err)
		}
		t, err := s.decodeLine(line)
		if err == nil && t.ID != id {
			err = apperr.Formatf(s.path, 0, "offset %d holds id %q, want %q", off, t.ID, id)
		}
		if err != nil {
			if !strict {
				return nil, errStale
			}
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *Store) decodeLine(line []byte) (models.Transaction, error) {
	values, err := codec.DecodeLine(line)
	if err != nil {
		return models.Transaction{}, &apperr.FormatError{Path: s.path, Msg: "unreadable row", Err: err}
	}
	t, err := s.codec.Decode(values)
	if err != nil {
		return models.Transaction{}, &apperr.FormatError{Path: s.path, Msg: "invalid row", Err: err}
	}
	return t, nil
}

// readLineAt returns the line starting at off.
func readLineAt(f *os.File, off int64) ([]byte, error) {
	br := bufio.NewReader(io.NewSectionReader(f, off, 1<<62))
	line, err := br.ReadBytes('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return line, nil
}

// ReadAll scans the data file from the top. Each call starts a fresh scan;
// mutating the store while iterating is not supported.
func (s *Store) ReadAll() iter.Seq2[models.Transaction, error] {
	return func(yield func(models.Transaction, error) bool) {
		f, err := os.Open(s.path)
		if err != nil {
			yield(models.Transaction{}, fmt.Errorf("store: read all: %w", err))
			return
		}
		defer f.Close()
		r, err := codec.NewReader(f, s.path, s.idColumn)
		if err != nil {
			yield(models.Transaction{}, err)
			return
		}
		for t, err := range r.All() {
			if !yield(t, err) {
				return
			}
		}
	}
}

// Query yields the records whose columns equal the given values. Values are
// compared as canonical text, so amount 40 matches 40.00; the index is not
// consulted.
func (s *Store) Query(filters map[string]string) iter.Seq2[models.Transaction, error] {
	return func(yield func(models.Transaction, error) bool) {
		want := make(map[string]string, len(filters))
		for col, v := range filters {
			if !s.codec.HasColumn(col) {
				yield(models.Transaction{}, apperr.Formatf(s.path, 0, "unknown column %q", col))
				return
			}
			c, err := canonicalValue(col, v)
			if err != nil {
				yield(models.Transaction{}, &apperr.FormatError{Path: s.path, Msg: "query " + col, Err: err})
				return
			}
			want[col] = c
		}
		filters = want
		for t, err := range s.ReadAll() {
			if err != nil {
				yield(t, err)
				return
			}
			if s.matches(t, filters) && !yield(t, nil) {
				return
			}
		}
	}
}

func canonicalValue(col, v string) (string, error) {
	switch col {
	case models.ColDate:
		d, err := codec.ParseDate(v)
		return codec.FormatDate(d), err
	case models.ColAmount:
		a, err := codec.ParseAmount(v)
		return codec.FormatAmount(a), err
	}
	return v, nil
}

func (s *Store) matches(t models.Transaction, filters map[string]string) bool {
	for col, want := range filters {
		if s.codec.Get(t, col) != want {
			return false
		}
	}
	return true
}
