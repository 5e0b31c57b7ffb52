package etl

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// ParseCSV reads delimited text with a header row into a table named name.
// Short rows leave the trailing columns missing; extra cells are ignored.
func ParseCSV(r io.Reader, name string, comma rune) (*Table, error) {
	reader := csv.NewReader(r)
	if comma != 0 {
		reader.Comma = comma
	}
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("parse csv: %w", ErrEmptyData)
	}
	if err != nil {
		return nil, fmt.Errorf("parse csv header: %w", err)
	}
	headers := uniqueHeaders(header)
	t := NewTable(name, headers)

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse csv: %w", err)
		}
		if len(row) == 1 && strings.TrimSpace(row[0]) == "" {
			continue
		}
		data := make(map[string]any, len(headers))
		for j, h := range headers {
			if j < len(row) {
				data[h] = InferValue(row[j])
			}
		}
		t.Records = append(t.Records, Record{Data: data})
	}

	t.InferTypes()
	return t, nil
}

// uniqueHeaders trims a UTF-8 BOM, names blank headers and suffixes duplicates
// with ".1", ".2", ...
func uniqueHeaders(in []string) []string {
	out := make([]string, len(in))
	seen := make(map[string]int, len(in))
	for i, h := range in {
		if i == 0 {
			h = strings.TrimPrefix(h, "\uFEFF")
		}
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("col_%d", i+1)
		}
		if n, dup := seen[h]; dup {
			base := h
			for {
				n++
				h = fmt.Sprintf("%s.%d", base, n)
				if _, taken := seen[h]; !taken {
					break
				}
			}
			seen[base] = n
		}
		seen[h] = 0
		out[i] = h
	}
	return out
}
