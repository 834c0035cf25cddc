package classify

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// LoadClassCSV reads one class's parameters from a two-column file with
// header Parameter,Values and rows named mean and std.
func LoadClassCSV(path string) (mean, std float64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to open parameter file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	rows, err := r.ReadAll()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(rows) == 0 {
		return 0, 0, fmt.Errorf("%s: empty parameter file", path)
	}

	nameCol, valueCol := -1, -1
	for i, h := range rows[0] {
		switch strings.TrimSpace(h) {
		case "Parameter":
			nameCol = i
		case "Values":
			valueCol = i
		}
	}
	if nameCol < 0 || valueCol < 0 {
		return 0, 0, fmt.Errorf("%s: missing Parameter or Values column", path)
	}

	found := map[string]float64{}
	for _, row := range rows[1:] {
		if nameCol >= len(row) || valueCol >= len(row) {
			continue
		}
		name := strings.TrimSpace(row[nameCol])
		if _, dup := found[name]; dup {
			continue
		}
		v, perr := strconv.ParseFloat(strings.TrimSpace(row[valueCol]), 64)
		if perr != nil {
			return 0, 0, fmt.Errorf("%s: bad %s value: %w", path, name, perr)
		}
		found[name] = v
	}
	mean, okMean := found["mean"]
	std, okStd := found["std"]
	if !okMean || !okStd {
		return 0, 0, fmt.Errorf("%s: need both mean and std rows", path)
	}
	return mean, std, nil
}

// LoadParamsCSV reads the clean and dirty parameter files.
func LoadParamsCSV(cleanPath, dirtyPath string) (Params, error) {
	var p Params
	var err error
	if p.MeanClean, p.StdClean, err = LoadClassCSV(cleanPath); err != nil {
		return Params{}, err
	}
	if p.MeanDirty, p.StdDirty, err = LoadClassCSV(dirtyPath); err != nil {
		return Params{}, err
	}
	if err := p.Validate(); err != nil {
		return Params{}, err
	}
	return p, nil
}
