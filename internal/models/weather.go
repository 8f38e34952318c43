package models

import (
	"fmt"
	"time"
)

// Sentinel marks a missing measurement in the raw station files.
const Sentinel = -9999

// Observation is one station-day weather record. Measurement fields are
// pointers so a missing value stays NULL in the store instead of collapsing
// to zero.
type Observation struct {
	ID            int64     `json:"id" db:"id"`
	StationID     string    `json:"station_id" db:"station_id"`
	RecordDate    time.Time `json:"record_date" db:"record_date"`
	MaxTemp       *float64  `json:"max_temp" db:"max_temp"`           // degrees C
	MinTemp       *float64  `json:"min_temp" db:"min_temp"`           // degrees C
	Precipitation *float64  `json:"precipitation" db:"precipitation"` // centimeters
}

// YearlyStat is the derived per-station, per-year aggregate. The full set is
// rebuilt from observations on every recompute; it is never an ingestion input.
type YearlyStat struct {
	ID                 int64    `json:"id" db:"id"`
	StationID          string   `json:"station_id" db:"station_id"`
	Year               int      `json:"year" db:"year"`
	AvgMaxTemp         *float64 `json:"avg_max_temp" db:"avg_max_temp"`
	AvgMinTemp         *float64 `json:"avg_min_temp" db:"avg_min_temp"`
	TotalPrecipitation *float64 `json:"total_precipitation" db:"total_precipitation"`
}

// RawRecord is one line of a station source file before normalization.
// Measurement fields hold the encoded integers as read, with Sentinel
// standing in for values that were absent in the file.
type RawRecord struct {
	Date             string // YYYYMMDD
	MaxTenths        int    // tenths of a degree C
	MinTenths        int    // tenths of a degree C
	PrecipHundredths int    // hundredths of a millimeter
}

// Normalize converts a raw record into an Observation in physical units.
// Each measurement is handled independently: a Sentinel in one field never
// affects its siblings. The function is pure and safe for concurrent use.
func (r RawRecord) Normalize(stationID string) (*Observation, error) {
	date, err := time.Parse("20060102", r.Date)
	if err != nil {
		return nil, &MalformedDateError{Value: r.Date}
	}

	obs := &Observation{
		StationID:  stationID,
		RecordDate: date,
	}

	if r.MaxTenths != Sentinel {
		v := float64(r.MaxTenths) / 10.0
		obs.MaxTemp = &v
	}
	if r.MinTenths != Sentinel {
		v := float64(r.MinTenths) / 10.0
		obs.MinTemp = &v
	}
	if r.PrecipHundredths != Sentinel {
		v := float64(r.PrecipHundredths) / 100.0
		obs.Precipitation = &v
	}

	return obs, nil
}

// MalformedDateError reports a date field that is not a valid 8-digit
// calendar date. It is fatal to the row, never to the run.
type MalformedDateError struct {
	Value string
}

func (e *MalformedDateError) Error() string {
	return fmt.Sprintf("malformed date %q: expected valid YYYYMMDD", e.Value)
}

// MalformedFieldError reports a non-numeric value in a column that requires
// an integer and is not covered by the sentinel rule.
type MalformedFieldError struct {
	Field string
	Value string
}

func (e *MalformedFieldError) Error() string {
	return fmt.Sprintf("malformed %s field %q: expected integer", e.Field, e.Value)
}
