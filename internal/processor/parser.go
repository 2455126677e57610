package processor

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

var (
	// ErrUnsupportedFormat marks files whose extension is not a recognized
	// record format. Retrying cannot fix these; they surface to the external
	// retry layer so the payload ends up on the dead-letter channel.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrMalformedInput marks files with a recognized extension that fail to
	// parse. Terminal for the same reason.
	ErrMalformedInput = errors.New("malformed input")
)

// Parse turns a raw file into records, dispatching on the key's extension.
// The boolean reports whether the input was a single JSON document, which
// Emit mirrors in the output shape.
func Parse(content []byte, key string) ([]Record, bool, error) {
	switch strings.ToLower(path.Ext(key)) {
	case ".json":
		return parseJSON(content)
	case ".csv":
		return parseCSV(content)
	default:
		return nil, false, fmt.Errorf("%w: %s", ErrUnsupportedFormat, key)
	}
}

func parseJSON(content []byte) ([]Record, bool, error) {
	var doc any
	if err := json.Unmarshal(content, &doc); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}

	switch v := doc.(type) {
	case map[string]any:
		return []Record{Record(v)}, true, nil
	case []any:
		records := make([]Record, 0, len(v))
		for i, elem := range v {
			obj, ok := elem.(map[string]any)
			if !ok {
				return nil, false, fmt.Errorf("%w: array element %d is not an object", ErrMalformedInput, i)
			}
			records = append(records, Record(obj))
		}
		return records, false, nil
	default:
		return nil, false, fmt.Errorf("%w: top-level value must be an object or an array of objects", ErrMalformedInput)
	}
}

func parseCSV(content []byte) ([]Record, bool, error) {
	reader := csv.NewReader(bytes.NewReader(content))

	header, err := reader.Read()
	if err != nil {
		return nil, false, fmt.Errorf("%w: failed to read CSV header: %v", ErrMalformedInput, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	records := []Record{}
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, fmt.Errorf("%w: failed to read CSV row: %v", ErrMalformedInput, err)
		}

		rec := make(Record, len(header))
		for i, col := range header {
			if i < len(row) {
				rec[col] = row[i]
			}
		}
		records = append(records, rec)
	}

	return records, false, nil
}
