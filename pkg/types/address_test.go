package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddressRoundTrip(t *testing.T) {
	line2 := "Apt 4"
	in := Address{
		Line1:   "Bole Road 12",
		Line2:   &line2,
		City:    "Addis Ababa",
		Region:  "Addis Ababa",
		Country: "ET",
		Phone:   "+251911000000",
	}

	val, err := in.Value()
	require.NoError(t, err)

	var out Address
	require.NoError(t, out.Scan(val))
	require.Equal(t, in, out)
}

func TestAddressValidate(t *testing.T) {
	_, err := Address{City: "Addis Ababa", Country: "ET"}.Value()
	require.Error(t, err)

	_, err = Address{Line1: "Bole Road 12", Country: "ET"}.Value()
	require.Error(t, err)
}

func TestAddressScanNil(t *testing.T) {
	var out Address
	require.NoError(t, out.Scan(nil))
	require.Equal(t, Address{}, out)
}
