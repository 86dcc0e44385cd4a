package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProvisionalIDsAreUniqueAndIncreasing(t *testing.T) {
	prev := NewProvisionalID()
	require.True(t, prev.IsLocal())
	for i := 0; i < 1000; i++ {
		next := NewProvisionalID()
		require.True(t, next.IsLocal())
		require.Greater(t, next.Number(), prev.Number())
		prev = next
	}
}

func TestIDStorageRoundTrip(t *testing.T) {
	cases := []ID{LocalID(42), RemoteID(42), {}}
	for _, id := range cases {
		v, err := id.Value()
		require.NoError(t, err)

		var got ID
		require.NoError(t, got.Scan(v))
		require.Equal(t, id, got)
	}

	v, err := LocalID(7).Value()
	require.NoError(t, err)
	require.Equal(t, int64(-7), v)
}

func TestIDScanStrings(t *testing.T) {
	var id ID
	require.NoError(t, id.Scan([]byte("-5")))
	require.Equal(t, LocalID(5), id)

	require.ErrorIs(t, id.Scan("abc"), ErrInvalidID)
	require.ErrorIs(t, id.Scan(struct{}{}), ErrInvalidID)
}

func TestLocalIDNeverMarshals(t *testing.T) {
	_, err := json.Marshal(Product{Record: Record{ID: LocalID(1)}, Name: "x"})
	require.ErrorIs(t, err, ErrProvisionalID)

	_, err = json.Marshal(Product{Record: Record{ID: RemoteID(1)}, SupplierID: LocalID(3)})
	require.ErrorIs(t, err, ErrProvisionalID)
}

func TestIDJSON(t *testing.T) {
	b, err := json.Marshal(RemoteID(17))
	require.NoError(t, err)
	require.Equal(t, "17", string(b))

	b, err = json.Marshal(ID{})
	require.NoError(t, err)
	require.Equal(t, "null", string(b))

	var id ID
	require.NoError(t, json.Unmarshal([]byte("99"), &id))
	require.Equal(t, RemoteID(99), id)

	require.ErrorIs(t, json.Unmarshal([]byte("-3"), &id), ErrInvalidID)
	require.ErrorIs(t, json.Unmarshal([]byte("0"), &id), ErrInvalidID)
}

func TestIDString(t *testing.T) {
	require.Equal(t, "local:3", LocalID(3).String())
	require.Equal(t, "3", RemoteID(3).String())
	require.Equal(t, "none", ID{}.String())
}

func TestParseID(t *testing.T) {
	for _, id := range []ID{RemoteID(42), LocalID(1700000000001)} {
		got, err := ParseID(id.String())
		require.NoError(t, err)
		require.Equal(t, id, got)
	}
	for _, bad := range []string{"", "0", "-3", "local:", "local:x", "none"} {
		_, err := ParseID(bad)
		require.ErrorIs(t, err, ErrInvalidID, bad)
	}
}
