// Package reader enumerates station source files and parses their
// tab-separated rows into raw records.
//
// Parsing is best-effort: a line with the wrong column count or a
// non-numeric measurement is skipped and counted rather than failing the
// file. An empty measurement field is treated as missing, same as the
// -9999 sentinel.
package reader

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"weather-pipeline/internal/models"
)

const columnsPerRow = 4

// StationFile pairs a station identifier with the file that holds its rows.
// The identifier is the file's base name with the extension stripped.
type StationFile struct {
	StationID string
	Path      string
}

// StationFiles lists the station source files in dir, sorted by path.
func StationFiles(dir string) ([]StationFile, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, &SourceUnavailableError{Path: dir, Err: err}
	}

	paths, err := filepath.Glob(filepath.Join(dir, "*.txt"))
	if err != nil {
		return nil, &SourceUnavailableError{Path: dir, Err: err}
	}

	files := make([]StationFile, 0, len(paths))
	for _, p := range paths {
		name := filepath.Base(p)
		files = append(files, StationFile{
			StationID: strings.TrimSuffix(name, filepath.Ext(name)),
			Path:      p,
		})
	}

	return files, nil
}

// Scanner reads one station file a record at a time.
type Scanner struct {
	f       *os.File
	scanner *bufio.Scanner
	rec     models.RawRecord
	skipped int
	err     error
}

// Open opens a station source file for scanning.
func Open(path string) (*Scanner, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &SourceUnavailableError{Path: path, Err: err}
	}
	return &Scanner{f: f, scanner: bufio.NewScanner(f)}, nil
}

// Scan advances to the next well-formed record. It returns false when the
// file is exhausted or a read error occurred; malformed lines are skipped
// and counted without stopping the scan.
func (s *Scanner) Scan() bool {
	for s.scanner.Scan() {
		line := s.scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		rec, err := parseLine(line)
		if err != nil {
			s.skipped++
			continue
		}

		s.rec = rec
		return true
	}

	s.err = s.scanner.Err()
	return false
}

// Record returns the record produced by the last successful Scan.
func (s *Scanner) Record() models.RawRecord {
	return s.rec
}

// Skipped returns the number of malformed lines skipped so far.
func (s *Scanner) Skipped() int {
	return s.skipped
}

// Err returns the first read error encountered, if any.
func (s *Scanner) Err() error {
	return s.err
}

// Close releases the underlying file.
func (s *Scanner) Close() error {
	return s.f.Close()
}

// parseLine splits a tab-separated row into a raw record.
// Layout: YYYYMMDD <tenths-C max> <tenths-C min> <hundredths-mm precip>.
func parseLine(line string) (models.RawRecord, error) {
	parts := strings.Split(line, "\t")
	if len(parts) != columnsPerRow {
		return models.RawRecord{}, fmt.Errorf("expected %d columns, got %d", columnsPerRow, len(parts))
	}

	maxT, err := parseMeasurement("max_temp", parts[1])
	if err != nil {
		return models.RawRecord{}, err
	}
	minT, err := parseMeasurement("min_temp", parts[2])
	if err != nil {
		return models.RawRecord{}, err
	}
	precip, err := parseMeasurement("precipitation", parts[3])
	if err != nil {
		return models.RawRecord{}, err
	}

	return models.RawRecord{
		Date:             strings.TrimSpace(parts[0]),
		MaxTenths:        maxT,
		MinTenths:        minT,
		PrecipHundredths: precip,
	}, nil
}

// parseMeasurement parses one encoded integer column. An empty field maps to
// the sentinel so the normalizer treats it as missing.
func parseMeasurement(field, raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return models.Sentinel, nil
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &models.MalformedFieldError{Field: field, Value: raw}
	}
	return v, nil
}

// SourceUnavailableError reports an unreadable source directory or file.
// It terminates the ingestion run.
type SourceUnavailableError struct {
	Path string
	Err  error
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("source %s unavailable: %v", e.Path, e.Err)
}

func (e *SourceUnavailableError) Unwrap() error {
	return e.Err
}
