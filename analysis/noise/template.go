package noise

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/scopelab/tracedsp/analysis/common"
)

// LoadTemplateCSV reads a matched-filter template from a CSV file holding
// one column (y) or two columns (t, y); the last column of each row is the
// sample value. A single header row of non-numeric labels is tolerated.
func LoadTemplateCSV(path string) ([]float64, error) {
	if path == "" {
		return nil, fmt.Errorf("template path is empty: %w", common.ErrTemplateNotFound)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("template %q: %w", path, common.ErrTemplateNotFound)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("template %q: %v: %w", path, err, common.ErrTemplateNotFound)
	}

	var samples []float64
	for i, record := range records {
		if len(record) == 0 {
			continue
		}
		val, err := strconv.ParseFloat(record[len(record)-1], 64)
		if err != nil {
			if i == 0 {
				continue // header row
			}
			return nil, fmt.Errorf("template %q row %d: %v: %w", path, i+1, err, common.ErrTemplateNotFound)
		}
		samples = append(samples, val)
	}

	if len(samples) == 0 {
		return nil, fmt.Errorf("template %q: %w", path, common.ErrEmptyTemplate)
	}

	return samples, nil
}
