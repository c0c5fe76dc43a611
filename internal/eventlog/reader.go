package eventlog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
)

// ReadResult holds the rows a reader accepted and the count it dropped.
type ReadResult struct {
	Events  []Event
	Skipped int
}

// Read parses an event log. Columns are located by header name. Rows whose
// latitude, longitude or area do not parse as numbers are skipped.
func Read(r io.Reader) (ReadResult, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return ReadResult{}, nil
	}
	if err != nil {
		return ReadResult{}, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[name] = i
	}

	var res ReadResult
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return res, nil
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			res.Skipped++
			continue
		}
		if err != nil {
			return res, err
		}
		e, err := parseRow(row, cols)
		if err != nil {
			res.Skipped++
			continue
		}
		res.Events = append(res.Events, e)
	}
}

// ReadFile reads the log at path. A missing file is an empty log.
func ReadFile(path string) (ReadResult, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return ReadResult{}, nil
	}
	if err != nil {
		return ReadResult{}, err
	}
	defer f.Close()
	return Read(f)
}
