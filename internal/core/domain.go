package core

import (
	"encoding/json"
	"errors"
	"sort"
	"strings"
)

type (
	// Parameter is a single named reading inside a panel.
	Parameter struct {
		Name   string  `json:"name"`
		Result Reading `json:"result"`
		Unit   string  `json:"unit,omitempty"`

		members []member
	}

	// Panel groups the parameters of one analysis.
	Panel struct {
		Name      string      `json:"name"`
		Parameter []Parameter `json:"parameter"`

		members []member
	}

	// Record is one measurement submission of a sampling station. Members
	// of the upstream object without a field here are kept, in their
	// original order, and written back on encode.
	Record struct {
		SampleNumber   string  `json:"sampleNumber"`
		ExtractionDate Date    `json:"extractionDate"`
		MeasuringPoint string  `json:"measuringPoint"`
		Results        []Panel `json:"results"`

		members []member
	}

	// Key identifies a record for deduplication.
	Key struct {
		SampleNumber string
		Day          string // yyyy-mm-dd
	}

	// Dataset is the full set of records, ascending by extraction date.
	Dataset []Record

	// Point is one value of a station time series.
	Point struct {
		Date  Date   `json:"date"`
		Value string `json:"value"`
	}
)

var (
	ErrInvalidDate         = errors.New("invalid date")
	ErrEmptySampleNumber   = errors.New("empty sample number")
	ErrEmptyMeasuringPoint = errors.New("empty measuring point")
)

func (r Record) MarshalJSON() ([]byte, error) {
	type plain Record
	return marshalMerged(plain(r), r.members)
}

func (r *Record) UnmarshalJSON(b []byte) error {
	type plain Record
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	members, err := unknownMembers(b, "sampleNumber", "extractionDate", "measuringPoint", "results")
	if err != nil {
		return err
	}
	p.members = members
	*r = Record(p)
	return nil
}

func (p Panel) MarshalJSON() ([]byte, error) {
	type plain Panel
	return marshalMerged(plain(p), p.members)
}

func (p *Panel) UnmarshalJSON(b []byte) error {
	type plain Panel
	var v plain
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	members, err := unknownMembers(b, "name", "parameter")
	if err != nil {
		return err
	}
	v.members = members
	*p = Panel(v)
	return nil
}

func (p Parameter) MarshalJSON() ([]byte, error) {
	type plain Parameter
	return marshalMerged(plain(p), p.members)
}

func (p *Parameter) UnmarshalJSON(b []byte) error {
	type plain Parameter
	var v plain
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	members, err := unknownMembers(b, "name", "result", "unit")
	if err != nil {
		return err
	}
	v.members = members
	*p = Parameter(v)
	return nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	return nil
}

// Key returns the (sampleNumber, extractionDate) identity of the record.
// The date part is the parsed calendar day, not the raw text.
func (r Record) Key() Key {
	return Key{SampleNumber: r.SampleNumber, Day: r.ExtractionDate.ISO()}
}

func (r Record) Validate() error {
	if strings.TrimSpace(r.SampleNumber) == "" {
		return ErrEmptySampleNumber
	}
	if err := r.ExtractionDate.Validate(); err != nil {
		return ErrInvalidDate
	}
	if strings.TrimSpace(r.MeasuringPoint) == "" {
		return ErrEmptyMeasuringPoint
	}
	return nil
}

// Reading looks up a parameter by name in the first panel, which is the
// one presentation consumers chart.
func (r Record) Reading(parameter string) (Reading, bool) {
	if len(r.Results) == 0 {
		return Reading{}, false
	}
	for _, p := range r.Results[0].Parameter {
		if p.Name == parameter {
			return p.Result, true
		}
	}
	return Reading{}, false
}

// LatestDate returns the latest extraction date, or nil for an empty dataset.
func (ds Dataset) LatestDate() *Date {
	var latest *Date
	for i := range ds {
		d := ds[i].ExtractionDate
		if latest == nil || d.After(*latest) {
			latest = &d
		}
	}
	return latest
}

// SortByDate orders the dataset ascending by extraction date, keeping the
// relative order of records from the same day.
func (ds Dataset) SortByDate() {
	sort.SliceStable(ds, func(i, j int) bool {
		return ds[i].ExtractionDate.Before(ds[j].ExtractionDate)
	})
}

// IsSorted reports whether the dataset is ascending by extraction date.
func (ds Dataset) IsSorted() bool {
	return sort.SliceIsSorted(ds, func(i, j int) bool {
		return ds[i].ExtractionDate.Before(ds[j].ExtractionDate)
	})
}

// Stations returns the distinct measuring points, sorted.
func (ds Dataset) Stations() []string {
	seen := map[string]struct{}{}
	out := make([]string, 0)
	for _, r := range ds {
		if _, ok := seen[r.MeasuringPoint]; ok {
			continue
		}
		seen[r.MeasuringPoint] = struct{}{}
		out = append(out, r.MeasuringPoint)
	}
	sort.Strings(out)
	return out
}

// ByStation returns the records of one measuring point in dataset order.
func (ds Dataset) ByStation(point string) Dataset {
	out := make(Dataset, 0)
	for _, r := range ds {
		if r.MeasuringPoint == point {
			out = append(out, r)
		}
	}
	return out
}

// Series extracts the numeric values of a first-panel parameter for one
// station. Records without a numeric value are skipped.
func (ds Dataset) Series(point, parameter string) []Point {
	out := make([]Point, 0)
	for _, r := range ds.ByStation(point) {
		reading, ok := r.Reading(parameter)
		if !ok {
			continue
		}
		v, ok := reading.Decimal()
		if !ok {
			continue
		}
		out = append(out, Point{Date: r.ExtractionDate, Value: v.String()})
	}
	return out
}
