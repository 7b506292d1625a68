package model

import "slices"

// Airport is a departure airport.
type Airport struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Terminal belongs to exactly one airport.
type Terminal struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AirportID string `json:"airport_id"`
}

// SupportedAirports lists the airport codes riders can pick from.
var SupportedAirports = []string{"LAX", "BUR", "LGB", "SNA", "HHR"}

// IsSupportedAirport reports whether code is one of SupportedAirports.
func IsSupportedAirport(code string) bool {
	return slices.Contains(SupportedAirports, code)
}
