package services

import "time"

// storeNow is the current time at the precision the database keeps
func storeNow() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
