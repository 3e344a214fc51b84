package ingest

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// DetectorRow is an accepted row of a detector upload. Coordinates are nil
// when the row carried none or they failed to parse; the row is still
// accepted in that case.
type DetectorRow struct {
	ExternalID string
	Name       string
	Latitude   *float64
	Longitude  *float64
}

// DetectorRows is the outcome of parsing a detector table: accepted rows
// plus the count of skipped ones, so callers can report under-ingestion.
type DetectorRows struct {
	Accepted []DetectorRow
	Skipped  int
}

// ParseDetectorRows parses positional detector rows. The header row is
// discarded unconditionally. A 4-column row is
// (external_id, name, lat, lon); a 3-column row is (name, lat, lon) with
// the name reused as external id. Shorter rows and rows with an empty
// external id are skipped.
func ParseDetectorRows(table [][]string) DetectorRows {
	var result DetectorRows
	if len(table) <= 1 {
		return result
	}

	for _, raw := range table[1:] {
		cells := trimCells(raw)

		var externalID, name, latRaw, lonRaw string
		switch {
		case len(cells) >= 4:
			externalID, name, latRaw, lonRaw = cells[0], cells[1], cells[2], cells[3]
		case len(cells) == 3:
			name, latRaw, lonRaw = cells[0], cells[1], cells[2]
			externalID = name
		default:
			result.Skipped++
			continue
		}

		if externalID == "" {
			result.Skipped++
			continue
		}

		row := DetectorRow{ExternalID: externalID, Name: name}
		if lat, lon, ok := parseCoordinates(latRaw, lonRaw); ok {
			row.Latitude = &lat
			row.Longitude = &lon
		}
		result.Accepted = append(result.Accepted, row)
	}
	return result
}

// EventRow is an accepted row of a vehicle-pass upload.
type EventRow struct {
	DetectorExternalID string
	Timestamp          time.Time
	VehicleID          string
	SpeedKmh           *float64
}

type EventRows struct {
	Accepted []EventRow
	Skipped  int
}

// ParseEventRows parses positional vehicle-pass rows
// (detector_external_id, timestamp, vehicle_id, speed_kmh?). Rows missing
// the detector id or vehicle id, or carrying an unparsable timestamp, are
// skipped; an unparsable speed keeps the row with an absent speed.
func ParseEventRows(table [][]string) EventRows {
	var result EventRows
	if len(table) <= 1 {
		return result
	}

	for _, raw := range table[1:] {
		cells := trimCells(raw)
		if len(cells) < 3 {
			result.Skipped++
			continue
		}

		detectorID := cells[0]
		if detectorID == "" {
			result.Skipped++
			continue
		}

		timestamp, err := ParseTimestamp(cells[1])
		if err != nil {
			result.Skipped++
			continue
		}

		vehicleID := cells[2]
		if vehicleID == "" {
			result.Skipped++
			continue
		}

		row := EventRow{
			DetectorExternalID: detectorID,
			Timestamp:          timestamp,
			VehicleID:          vehicleID,
		}
		if len(cells) >= 4 {
			if speed, err := strconv.ParseFloat(cells[3], 64); err == nil {
				row.SpeedKmh = &speed
			}
		}
		result.Accepted = append(result.Accepted, row)
	}
	return result
}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
	// Default datetime rendering of spreadsheet cells.
	"1/2/06 15:04",
	"01-02-06 15:04",
}

// ParseTimestamp accepts the ISO-8601-like forms seen in uploads plus the
// formats spreadsheet readers render native datetime cells as.
func ParseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, errors.New("invalid time format")
}

func parseCoordinates(latRaw, lonRaw string) (float64, float64, bool) {
	lat, err := strconv.ParseFloat(latRaw, 64)
	if err != nil {
		return 0, 0, false
	}
	lon, err := strconv.ParseFloat(lonRaw, 64)
	if err != nil {
		return 0, 0, false
	}
	return lat, lon, true
}
