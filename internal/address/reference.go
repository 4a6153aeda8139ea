package address

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"sync"
)

//go:embed data/sample_addresses.json
var sampleTable []byte

// Row is one line of the reference table. The JSON field names follow the
// published Thai address dataset.
type Row struct {
	Province    string `json:"provinceNameTh"`
	District    string `json:"districtNameTh"`
	SubDistrict string `json:"subdistrictNameTh"`
	PostalCode  int    `json:"postalCode"`
}

// ReferenceTable is the static province, district and sub-district
// hierarchy. It is read-only after loading.
type ReferenceTable struct {
	rows []Row

	once      sync.Once
	provinces []string
}

func LoadReferenceTable(r io.Reader) (*ReferenceTable, error) {
	var rows []Row
	if err := json.NewDecoder(r).Decode(&rows); err != nil {
		return nil, fmt.Errorf("failed to decode address table: %w", err)
	}
	return &ReferenceTable{rows: rows}, nil
}

// LoadReferenceFile reads the table at path, or the bundled sample when path
// is empty.
func LoadReferenceFile(path string) (*ReferenceTable, error) {
	if path == "" {
		return SampleTable(), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open address table: %w", err)
	}
	defer f.Close()

	return LoadReferenceTable(f)
}

func SampleTable() *ReferenceTable {
	t, err := LoadReferenceTable(bytes.NewReader(sampleTable))
	if err != nil {
		panic(err)
	}
	return t
}

// Provinces is computed once on first use.
func (t *ReferenceTable) Provinces() []string {
	t.once.Do(func() {
		t.provinces = t.collect(func(Row) bool { return true }, func(r Row) string { return r.Province })
	})
	return slices.Clone(t.provinces)
}

func (t *ReferenceTable) Districts(province string) []string {
	if province == "" {
		return []string{}
	}
	return t.collect(
		func(r Row) bool { return r.Province == province },
		func(r Row) string { return r.District },
	)
}

func (t *ReferenceTable) SubDistricts(province, district string) []string {
	if province == "" || district == "" {
		return []string{}
	}
	return t.collect(
		func(r Row) bool { return r.Province == province && r.District == district },
		func(r Row) string { return r.SubDistrict },
	)
}

// PostalCode resolves a full triad. It reports false unless every matching
// row agrees on a single code.
func (t *ReferenceTable) PostalCode(province, district, subDistrict string) (string, bool) {
	code := 0
	for _, r := range t.rows {
		if r.Province != province || r.District != district || r.SubDistrict != subDistrict {
			continue
		}
		if code != 0 && code != r.PostalCode {
			return "", false
		}
		code = r.PostalCode
	}
	if code == 0 {
		return "", false
	}
	return strconv.Itoa(code), true
}

func (t *ReferenceTable) collect(keep func(Row) bool, name func(Row) string) []string {
	seen := map[string]struct{}{}
	out := []string{}
	for _, r := range t.rows {
		if !keep(r) {
			continue
		}
		n := name(r)
		if _, ok := seen[n]; ok || n == "" {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}
