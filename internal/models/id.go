package models

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

var (
	// ErrProvisionalID is returned when a device-local identity would be
	// serialized towards the server.
	ErrProvisionalID = errors.New("provisional id cannot be sent to the server")
	// ErrInvalidID is returned for identities that are neither local nor remote.
	ErrInvalidID = errors.New("invalid id")
)

type idOrigin uint8

const (
	originNone idOrigin = iota
	originLocal
	originRemote
)

// ID identifies a record. It is either Local (assigned on the device while
// offline, never known to the server) or Remote (assigned by the server).
//
// In storage the identity is a signed integer: Remote(n) is n, Local(n) is -n.
// The encoding never leaks past Value/Scan.
type ID struct {
	origin idOrigin
	n      uint64
}

// LocalID returns a provisional identity. n must be positive.
func LocalID(n uint64) ID {
	if n == 0 {
		return ID{}
	}
	return ID{origin: originLocal, n: n}
}

// RemoteID returns a server-assigned identity. n must be positive.
func RemoteID(n uint64) ID {
	if n == 0 {
		return ID{}
	}
	return ID{origin: originRemote, n: n}
}

var lastProvisional atomic.Int64

// NewProvisionalID derives a local identity from the wall clock in
// nanoseconds. Values are strictly increasing within the process.
func NewProvisionalID() ID {
	for {
		prev := lastProvisional.Load()
		next := time.Now().UnixNano()
		if next <= prev {
			next = prev + 1
		}
		if lastProvisional.CompareAndSwap(prev, next) {
			return LocalID(uint64(next))
		}
	}
}

// IDFromInt64 decodes the storage representation.
func IDFromInt64(v int64) ID {
	switch {
	case v > 0:
		return RemoteID(uint64(v))
	case v < 0:
		return LocalID(uint64(-v))
	default:
		return ID{}
	}
}

func (id ID) IsZero() bool   { return id.origin == originNone }
func (id ID) IsLocal() bool  { return id.origin == originLocal }
func (id ID) IsRemote() bool { return id.origin == originRemote }

// Number returns the numeric part of the identity regardless of origin.
func (id ID) Number() uint64 { return id.n }

// Int64 returns the storage representation.
func (id ID) Int64() int64 {
	switch id.origin {
	case originRemote:
		return int64(id.n)
	case originLocal:
		return -int64(id.n)
	default:
		return 0
	}
}

func (id ID) String() string {
	switch id.origin {
	case originRemote:
		return strconv.FormatUint(id.n, 10)
	case originLocal:
		return "local:" + strconv.FormatUint(id.n, 10)
	default:
		return "none"
	}
}

// ParseID is the inverse of String: "42" is a server identity and
// "local:42" a provisional one.
func ParseID(s string) (ID, error) {
	local := strings.HasPrefix(s, "local:")
	n, err := strconv.ParseUint(strings.TrimPrefix(s, "local:"), 10, 64)
	if err != nil || n == 0 {
		return ID{}, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	if local {
		return LocalID(n), nil
	}
	return RemoteID(n), nil
}

// Value implements driver.Valuer. The zero ID is stored as NULL.
func (id ID) Value() (driver.Value, error) {
	if id.IsZero() {
		return nil, nil
	}
	return id.Int64(), nil
}

// Scan implements sql.Scanner.
func (id *ID) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*id = ID{}
	case int64:
		*id = IDFromInt64(v)
	case int32:
		*id = IDFromInt64(int64(v))
	case int:
		*id = IDFromInt64(int64(v))
	case float64:
		*id = IDFromInt64(int64(v))
	case []byte:
		return id.Scan(string(v))
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidID, v)
		}
		*id = IDFromInt64(n)
	default:
		return fmt.Errorf("%w: unsupported type %T", ErrInvalidID, src)
	}
	return nil
}

// GormDataType pins the column type for every dialect.
func (ID) GormDataType() string { return "bigint" }

// MarshalJSON writes remote identities as plain numbers. Local identities
// are refused so that they can never appear in a request body.
func (id ID) MarshalJSON() ([]byte, error) {
	switch id.origin {
	case originRemote:
		return []byte(strconv.FormatUint(id.n, 10)), nil
	case originLocal:
		return nil, fmt.Errorf("%w: %s", ErrProvisionalID, id)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts positive numbers (server identities) and null.
func (id *ID) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		*id = ID{}
		return nil
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil || n == 0 {
		return fmt.Errorf("%w: %s", ErrInvalidID, s)
	}
	*id = RemoteID(n)
	return nil
}
