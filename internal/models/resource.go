package models

// Resource is a bookable court.
type Resource struct {
	ID         int64   `json:"id" yaml:"id"`
	Name       string  `json:"name" yaml:"name"`
	Category   string  `json:"category" yaml:"category"`
	HourlyRate float64 `json:"hourly_rate" yaml:"hourly_rate"`
}

// RateMinor returns the hourly rate in minor currency units.
func (r *Resource) RateMinor() int64 {
	return ToMinorUnits(r.HourlyRate)
}

// Slot is one bookable hour on a resource.
type Slot struct {
	Start     string `json:"start"`
	End       string `json:"end"`
	Available bool   `json:"available"`
}
