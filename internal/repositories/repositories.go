package repositories

import (
	"time"

	"github.com/myrjola/coachline/internal/errors"
	"github.com/myrjola/coachline/internal/models"
)

// ErrNotFound is returned when the record does not exist or belongs to another user.
var ErrNotFound = errors.NewSentinel("not found")

// timestamp converts a stored unix nanosecond timestamp to the wire format.
func timestamp(unixNano int64) string {
	return models.FormatTimestamp(time.Unix(0, unixNano))
}
