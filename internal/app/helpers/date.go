package helpers

import (
	"time"
)

const (
	DateDatabase = "2006-01-02 15:04:05"
	DateIso      = "2006-01-02"
)

// Format time instance to database format (always UTC).
func TimeToDatabase(time time.Time) string {
	return time.UTC().Format(DateDatabase)
}

// Parse time stored in database format.
func TimeFromDatabase(value string) (time.Time, error) {
	return time.ParseInLocation(DateDatabase, value, time.UTC)
}

// Load time location, falling back to UTC for empty or unknown names.
func LoadLocation(name string) *time.Location {
	if name == "" {
		return time.UTC
	}

	location, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}

	return location
}
