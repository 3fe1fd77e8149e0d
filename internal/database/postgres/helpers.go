package postgres

import (
	"database/sql/driver"

	"github.com/lib/pq"
)

// int64Array adapts an id slice for ANY($1) parameters.
func int64Array(ids []int64) driver.Valuer {
	return pq.Array(ids)
}

// stringArray adapts a string slice for ANY($1) parameters.
func stringArray(values []string) driver.Valuer {
	return pq.Array(values)
}
