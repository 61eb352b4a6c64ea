package tle

import (
	"fmt"
	"strings"
	"time"
)

// CatalogNumber is a NORAD catalog number, always five ASCII digits with
// leading zeros preserved ("00005", "25544"). It is never converted to an
// integer so that zero-padded identifiers round-trip unchanged.
type CatalogNumber string

// ParseCatalogNumber accepts one to five digits, surrounding blanks allowed,
// and returns the zero-padded catalog number.
func ParseCatalogNumber(s string) (CatalogNumber, error) {
	s = strings.TrimSpace(s)
	if len(s) == 0 || len(s) > 5 {
		return "", fmt.Errorf("catalog number %q: want 1 to 5 digits", s)
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return "", fmt.Errorf("catalog number %q: non-digit %q", s, s[i])
		}
	}
	return CatalogNumber(strings.Repeat("0", 5-len(s)) + s), nil
}

// ParseCatalogNumbers parses a comma-separated list, skipping empty items.
func ParseCatalogNumbers(list string) ([]CatalogNumber, error) {
	var ids []CatalogNumber
	for _, item := range strings.Split(list, ",") {
		if strings.TrimSpace(item) == "" {
			continue
		}
		id, err := ParseCatalogNumber(item)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (c CatalogNumber) String() string { return string(c) }

// Record is one parsed two-line element set. Records are immutable after
// parsing; share them by pointer and never modify the fields.
type Record struct {
	CatalogNumber  CatalogNumber
	Name           string // optional title line of a 3-line set
	Classification byte
	// RawIntlDes is columns 10-17 of line 1 exactly as published.
	RawIntlDes string
	Epoch      time.Time

	MeanMotionDot  float64 // rev/day^2, first derivative / 2
	MeanMotionDDot float64 // rev/day^3, second derivative / 6
	BStar          float64 // 1/earth radii
	ElementSet     int

	InclinationDeg  float64
	RAANDeg         float64
	Eccentricity    float64
	ArgPerigeeDeg   float64
	MeanAnomalyDeg  float64
	MeanMotion      float64 // rev/day, Kozai mean motion as published
	RevolutionCount int

	Checksum1 int
	Checksum2 int

	Line1 string
	Line2 string
}

// IntlDes returns the international designator in "YYYY-NNNP" form,
// e.g. "98067A" becomes "1998-067A". The two-digit launch year is prefixed
// with "19" when greater than 50, otherwise "20".
func (r *Record) IntlDes() string {
	if len(r.Line1) < 16 {
		return ""
	}
	yy := r.Line1[9:11]
	rest := strings.TrimSpace(r.Line1[11:16])
	if strings.TrimSpace(yy) == "" {
		return ""
	}
	prefix := "20"
	if yy > "50" {
		prefix = "19"
	}
	return prefix + yy + "-" + rest
}

// EpochRange represents the minimum and maximum epoch times in a dataset.
type EpochRange struct {
	Min time.Time
	Max time.Time
}

// Dataset is an immutable set of records from one or more fetches.
type Dataset struct {
	Source     string
	FetchedAt  time.Time
	EpochRange EpochRange
	Records    map[CatalogNumber]*Record
}
