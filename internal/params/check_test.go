package params

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoerce(t *testing.T) {
	cases := []struct {
		name string
		typ  Type
		in   any
		want any
	}{
		{"float from int", TypeFloat, 2, 2.0},
		{"float from string", TypeFloat, " 1.25 ", 1.25},
		{"float from json number", TypeFloat, json.Number("3.5"), 3.5},
		{"float from float32", TypeFloat, float32(0.5), 0.5},
		{"int from string", TypeInt, "3", 3},
		{"int from integral float", TypeInt, 4.0, 4},
		{"int from int64", TypeInt, int64(7), 7},
		{"string", TypeString, "Y", "Y"},
		{"string from time", TypeString, time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), "2000-01-01T00:00:00"},
		{"nil stays nil", TypeFloat, nil, nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Coerce(tc.typ, tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCoerceFailures(t *testing.T) {
	cases := []struct {
		name string
		typ  Type
		in   any
	}{
		{"float from word", TypeFloat, "bogus"},
		{"float from bool", TypeFloat, true},
		{"float from NaN", TypeFloat, "NaN"},
		{"float from Inf", TypeFloat, "inf"},
		{"float from negative Inf", TypeFloat, math.Inf(-1)},
		{"int from fraction", TypeInt, 2.5},
		{"int from word", TypeInt, "three"},
		{"int from huge float", TypeInt, 1e20},
		{"int from huge negative float", TypeInt, -1e20},
		{"int from two to the 63", TypeInt, math.Pow(2, 63)},
		{"int from huge uint64", TypeInt, uint64(math.MaxUint64)},
		{"int from huge string", TypeInt, "100000000000000000000"},
		{"string from number", TypeString, 12},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Coerce(tc.typ, tc.in)
			var mismatch *TypeMismatchError
			require.ErrorAs(t, err, &mismatch)
			assert.True(t, errors.Is(err, ErrTypeMismatch))
		})
	}
}

func TestNearestTiesResolveLow(t *testing.T) {
	set := []float64{-1.0, 0.5, 1.0, 1.5, 2.5, 3.5, 5.0, 7.5, 10.0, 20.0}
	assert.Equal(t, 1.5, Nearest(set, 2.0))
	assert.Equal(t, 2.5, Nearest(set, 2.1))
	assert.Equal(t, -1.0, Nearest(set, -50))
	assert.Equal(t, 20.0, Nearest(set, 1e6))
	assert.Equal(t, 5.0, Nearest(set, 5.0))
}

func TestCheckPerKind(t *testing.T) {
	s := MustDefault()
	def := func(name string) *Definition {
		d, err := s.DefinitionFor(name)
		require.NoError(t, err)
		return d
	}

	res, err := Check(def("airmass"), "1.5")
	require.NoError(t, err)
	assert.Equal(t, 1.5, res.Value)
	assert.False(t, res.Snapped)

	_, err = Check(def("airmass"), 3.01)
	var violation *ConstraintViolationError
	require.ErrorAs(t, err, &violation)
	assert.Contains(t, violation.Reason, "maximum")

	_, err = Check(def("airmass"), "high")
	assert.ErrorIs(t, err, ErrTypeMismatch)

	res, err = Check(def("pwv"), 2.0)
	require.NoError(t, err)
	assert.Equal(t, 1.5, res.Value)
	assert.True(t, res.Snapped)

	res, err = Check(def("season"), "2")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Value)

	_, err = Check(def("season"), 7)
	assert.ErrorIs(t, err, ErrConstraintViolation)

	_, err = Check(def("incl_moon"), "y")
	assert.ErrorIs(t, err, ErrConstraintViolation)

	_, err = Check(def("msolflux"), -1)
	assert.ErrorIs(t, err, ErrConstraintViolation)

	res, err = Check(def("ra"), "359.9")
	require.NoError(t, err)
	assert.Equal(t, 359.9, res.Value)

	res, err = Check(def("mjd"), nil)
	require.NoError(t, err)
	assert.Nil(t, res.Value)

	_, err = Check(def("airmass"), nil)
	assert.ErrorIs(t, err, ErrTypeMismatch)
}
