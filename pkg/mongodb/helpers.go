package mongodb

import (
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
)

// Now returns the current time in UTC truncated to the millisecond
// precision BSON dates keep, so values round-trip unchanged.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// IsDuplicateKey reports whether err is a unique index violation
func IsDuplicateKey(err error) bool {
	return mongo.IsDuplicateKeyError(err)
}

// IsNoDocuments reports whether err is mongo.ErrNoDocuments
func IsNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}
