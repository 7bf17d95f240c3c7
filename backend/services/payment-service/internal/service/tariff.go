package service

import (
	"errors"
	"time"
)

// DefaultHourlyRate is the flat price of one hour-unit.
const DefaultHourlyRate int64 = 200

// Tariff is a flat hourly rate applied to ceiling-rounded hours.
type Tariff struct {
	HourlyRate int64
}

// NewTariff validates the rate.
func NewTariff(hourlyRate int64) (Tariff, error) {
	if hourlyRate <= 0 {
		return Tariff{}, errors.New("tariff: hourly rate must be positive")
	}
	return Tariff{HourlyRate: hourlyRate}, nil
}

// Price returns the charge for the given number of hour-units.
func (t Tariff) Price(hours int64) int64 {
	return t.HourlyRate * hours
}

// HourUnits returns the billable hours for a stay from entered to now. Any started hour is a
// full hour, and a stay that has not yet accrued time still owes one.
func HourUnits(entered, now time.Time) int64 {
	elapsed := now.Sub(entered)
	if elapsed <= 0 {
		return 1
	}
	units := int64(elapsed / time.Hour)
	if elapsed%time.Hour != 0 {
		units++
	}
	return units
}
