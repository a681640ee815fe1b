package provider

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"mutamap/core-go/internal/record"
)

// parseTabular reads delimited text with a header row into raw rows keyed by
// canonical field names. Delimiter is sniffed between comma and tab from the
// header line. Unrecognized columns ride along under their original names.
func parseTabular(contents string) ([]map[string]any, error) {
	trimmed := strings.TrimSpace(contents)
	if trimmed == "" {
		return nil, ingestErr(KindParse, errors.New("empty upload"))
	}

	reader := csv.NewReader(strings.NewReader(trimmed))
	reader.Comma = sniffDelimiter(trimmed)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, ingestErr(KindParse, err)
	}

	keys := make([]string, len(header))
	present := map[string]bool{}
	for i, col := range header {
		if canonical := record.CanonicalField(col); canonical != "" {
			keys[i] = canonical
			present[canonical] = true
		} else {
			keys[i] = strings.TrimSpace(col)
		}
	}
	for _, required := range record.RequiredFields() {
		if !present[required] {
			return nil, ingestErr(KindParse, fmt.Errorf("header missing required column %q", required))
		}
	}

	var rows []map[string]any
	for {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// A structurally broken line is a dropped row, not a fatal parse
			// error; normalizeBatch accounts for it via the empty-map reject.
			rows = append(rows, map[string]any{})
			continue
		}
		raw := make(map[string]any, len(fields))
		for i, v := range fields {
			if i >= len(keys) || keys[i] == "" {
				continue
			}
			raw[keys[i]] = v
		}
		rows = append(rows, raw)
	}

	if len(rows) == 0 {
		return nil, ingestErr(KindEmpty, errors.New("upload has a header but no rows"))
	}
	return rows, nil
}

func sniffDelimiter(contents string) rune {
	line := contents
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	if strings.Count(line, "\t") > strings.Count(line, ",") {
		return '\t'
	}
	return ','
}
