package sessions

import "github.com/pkg/errors"

var (
	ErrSessionNotFound = errors.New("session not found")
)

type Bucket string

const (
	BucketUser    Bucket = "user"
	BucketOwner   Bucket = "owner"
	BucketAdmin   Bucket = "admin"
	BucketConsole Bucket = "console"
)

// Privileged buckets are mirrored on every process.
func (b Bucket) Privileged() bool {
	return b != BucketUser
}

func (b Bucket) Valid() bool {
	switch b {
	case BucketUser, BucketOwner, BucketAdmin, BucketConsole:
		return true
	}
	return false
}

// Role levels carried by authenticated identities.
const (
	LevelUser  = 2
	LevelOwner = 4
	LevelAdmin = 10
)

// BucketFor maps an identity level and connection kind to a bucket.
func BucketFor(level int, kind string) Bucket {
	switch {
	case level >= LevelAdmin && kind == "console":
		return BucketConsole
	case level >= LevelAdmin:
		return BucketAdmin
	case level >= LevelOwner:
		return BucketOwner
	default:
		return BucketUser
	}
}

type Session struct {
	ID        string
	Nickname  string
	UserID    string
	Bucket    Bucket
	Peer      string
	Connected int64
}
