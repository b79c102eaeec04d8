// Package store keeps transactions in a flat CSV file and maintains a sidecar
// JSON index from id to the byte offset of the record's line.
//
// The data file is authoritative. The index is a cache that is rebuilt from a
// linear scan whenever it is missing, unreadable or does not match the data
// file's header. A Store is not safe for concurrent use and assumes it is the
// only writer of its file.
package store

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"slices"

	"github.com/starford/csvledger/internal/apperr"
	"github.com/starford/csvledger/internal/codec"
	"github.com/starford/csvledger/internal/models"
	"github.com/starford/csvledger/internal/storage"
)

// IndexSuffix is appended to the data file path to name its index.
const IndexSuffix = ".idx.json"

// indexFile is the on-disk layout of the sidecar index.
type indexFile struct {
	Index      map[string]int64 `json:"index"`
	Fieldnames []string         `json:"fieldnames"`
}

// Store owns one data file and its index.
type Store struct {
	path       string
	indexPath  string
	idColumn   string
	logger     *slog.Logger
	fieldnames []string
	codec      *codec.Codec
	index      map[string]int64
}

// Option configures a Store.
type Option func(*Store)

// WithIDColumn sets the name of the id column. Defaults to "id".
func WithIDColumn(col string) Option {
	return func(s *Store) {
		if col != "" {
			s.idColumn = col
		}
	}
}

// WithIndexPath overrides the index location. Defaults to <path>.idx.json.
func WithIndexPath(p string) Option {
	return func(s *Store) {
		if p != "" {
			s.indexPath = p
		}
	}
}

// WithLogger sets the logger used for index maintenance messages.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// Create writes a header line with columns to path unless the file already
// exists.
func Create(path string, columns []string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("store: stat %s: %w", path, err)
	}
	line, err := codec.EncodeLine(columns)
	if err != nil {
		return fmt.Errorf("store: header: %w", err)
	}
	return storage.ReplaceFile(path, func(f *os.File) error {
		_, err := f.Write(line)
		return err
	})
}

// Open opens the store at path and loads its index, rebuilding it when
// needed. The data file must exist.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{
		path:      path,
		indexPath: path + IndexSuffix,
		idColumn:  models.ColID,
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	if err := s.LoadOrRebuildIndex(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the data file path.
func (s *Store) Path() string { return s.path }

// IndexPath returns the sidecar index path.
func (s *Store) IndexPath() string { return s.indexPath }

// IDColumn returns the name of the id column.
func (s *Store) IDColumn() string { return s.idColumn }

// Fieldnames returns the header of the data file.
func (s *Store) Fieldnames() []string { return slices.Clone(s.fieldnames) }

// Index returns a copy of the id → offset map.
func (s *Store) Index() map[string]int64 { return maps.Clone(s.index) }

// Len returns the number of indexed records.
func (s *Store) Len() int { return len(s.index) }

// LoadOrRebuildIndex reads the sidecar index. A missing or unreadable index,
// or one whose fieldnames differ from the data file header, is rebuilt.
func (s *Store) LoadOrRebuildIndex() error {
	data, err := os.ReadFile(s.indexPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("store: index unreadable, rebuilding",
				slog.String("index", s.indexPath), slog.String("error", err.Error()))
		}
		return s.RebuildIndex()
	}
	var idx indexFile
	if err := json.Unmarshal(data, &idx); err != nil {
		s.logger.Warn("store: index corrupt, rebuilding",
			slog.String("index", s.indexPath), slog.String("error", err.Error()))
		return s.RebuildIndex()
	}
	if idx.Index == nil || len(idx.Fieldnames) == 0 || !slices.Contains(idx.Fieldnames, s.idColumn) {
		s.logger.Debug("store: index incomplete, rebuilding", slog.String("index", s.indexPath))
		return s.RebuildIndex()
	}
	header, err := s.readHeader()
	if err != nil {
		return err
	}
	if !slices.Equal(header, idx.Fieldnames) {
		s.logger.Debug("store: header changed, rebuilding", slog.String("path", s.path))
		return s.RebuildIndex()
	}
	s.setFieldnames(idx.Fieldnames)
	s.index = idx.Index
	return nil
}

// RebuildIndex scans the data file and persists a fresh index.
func (s *Store) RebuildIndex() error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("store: rebuild index: %w", err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	header, n, err := readHeaderLine(br, s.path)
	if err != nil {
		return err
	}
	idIdx := slices.Index(header, s.idColumn)
	if idIdx < 0 {
		return apperr.Formatf(s.path, 1, "id column %q not in header %v", s.idColumn, header)
	}

	index := make(map[string]int64)
	offset := n
	lineNo := 1
	for {
		line, err := br.ReadBytes('\n')
		if len(line) > 0 {
			lineNo++
			values, derr := codec.DecodeLine(line)
			if derr != nil {
				return &apperr.FormatError{Path: s.path, Line: lineNo, Msg: "unreadable row", Err: derr}
			}
			if idIdx < len(values) && values[idIdx] != "" {
				id := values[idIdx]
				if _, dup := index[id]; dup {
					s.logger.Warn("store: duplicate id in data file",
						slog.String("path", s.path), slog.String("id", id), slog.Int("line", lineNo))
				}
				index[id] = offset
			}
			offset += int64(len(line))
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("store: rebuild index: %w", err)
		}
	}

	s.setFieldnames(header)
	s.index = index
	s.logger.Debug("store: index rebuilt",
		slog.String("path", s.path), slog.Int("records", len(index)))
	return s.saveIndex()
}

func (s *Store) setFieldnames(cols []string) {
	s.fieldnames = slices.Clone(cols)
	s.codec = codec.New(cols, s.idColumn)
}

func (s *Store) saveIndex() error {
	idx := indexFile{Index: s.index, Fieldnames: s.fieldnames}
	if idx.Index == nil {
		idx.Index = map[string]int64{}
	}
	return storage.ReplaceFile(s.indexPath, func(f *os.File) error {
		return json.NewEncoder(f).Encode(idx)
	})
}

func (s *Store) readHeader() ([]string, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("store: read header: %w", err)
	}
	defer f.Close()
	header, _, err := readHeaderLine(bufio.NewReader(f), s.path)
	return header, err
}

// readHeaderLine reads and decodes the first line. It returns the header and
// the number of bytes consumed.
func readHeaderLine(br *bufio.Reader, path string) ([]string, int64, error) {
	line, err := br.ReadBytes('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, 0, fmt.Errorf("store: read header: %w", err)
	}
	if len(bytes.TrimSpace(line)) == 0 {
		return nil, 0, apperr.Formatf(path, 1, "missing header")
	}
	header, err := codec.DecodeHeader(line)
	if err != nil {
		return nil, 0, &apperr.FormatError{Path: path, Line: 1, Msg: "unreadable header", Err: err}
	}
	return header, int64(len(line)), nil
}
