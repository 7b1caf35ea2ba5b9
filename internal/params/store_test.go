package params

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(MustDefault())
}

func TestRangeBoundsAreInclusive(t *testing.T) {
	const eps = 1e-9
	s := newTestStore(t)

	for _, def := range s.Schema().Definitions() {
		if def.Kind != KindRange {
			continue
		}
		r := def.Bound.(Range)
		t.Run(def.Name, func(t *testing.T) {
			require.NoError(t, s.Set(def.Name, r.Min))
			require.NoError(t, s.Set(def.Name, r.Max))

			if def.Type == TypeFloat {
				before, _ := s.Get(def.Name)
				assert.ErrorIs(t, s.Set(def.Name, r.Min-eps), ErrConstraintViolation)
				assert.ErrorIs(t, s.Set(def.Name, r.Max+eps), ErrConstraintViolation)
				after, _ := s.Get(def.Name)
				assert.Equal(t, before, after)
			} else {
				assert.ErrorIs(t, s.Set(def.Name, r.Min-1), ErrConstraintViolation)
				assert.ErrorIs(t, s.Set(def.Name, r.Max+1), ErrConstraintViolation)
			}
		})
	}
}

func TestChoiceAndFlagExactMatch(t *testing.T) {
	s := newTestStore(t)

	for _, def := range s.Schema().Definitions() {
		if def.Kind != KindChoice && def.Kind != KindFlag {
			continue
		}
		t.Run(def.Name, func(t *testing.T) {
			for _, allowed := range def.Bound.([]any) {
				require.NoError(t, s.Set(def.Name, allowed))
				got, err := s.Get(def.Name)
				require.NoError(t, err)
				assert.Equal(t, allowed, got)
			}
		})
	}

	assert.ErrorIs(t, s.Set("incl_starlight", "Bogus"), ErrConstraintViolation)
	assert.ErrorIs(t, s.Set("incl_starlight", "n"), ErrConstraintViolation)
	assert.ErrorIs(t, s.Set("lsf_type", "gaussian"), ErrConstraintViolation)
	assert.NoError(t, s.Set("lsf_type", "Gaussian"))
}

func TestNearestAlwaysSnaps(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := NewStore(MustDefault(), WithLogger(zap.New(core)))

	require.NoError(t, s.Set("pwv", 2.0))
	got, err := s.Get("pwv")
	require.NoError(t, err)
	assert.Equal(t, 1.5, got)
	assert.Equal(t, 1, logs.FilterMessage("parameter snapped to nearest allowed value").Len())

	require.NoError(t, s.Set("pwv", 100))
	got, _ = s.Get("pwv")
	assert.Equal(t, 20.0, got)

	require.NoError(t, s.Set("pwv", 7.5))
	got, _ = s.Get("pwv")
	assert.Equal(t, 7.5, got)
}

func TestGreaterThanIsStrict(t *testing.T) {
	s := newTestStore(t)

	for _, def := range s.Schema().Definitions() {
		if def.Kind != KindGreaterThan {
			continue
		}
		bound := def.Bound.(float64)
		t.Run(def.Name, func(t *testing.T) {
			assert.ErrorIs(t, s.Set(def.Name, bound), ErrConstraintViolation)
			assert.NoError(t, s.Set(def.Name, bound+1e-6))
		})
	}
}

func TestSetLeavesStoreUnchangedOnError(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Set("airmass", 2.0))

	assert.ErrorIs(t, s.Set("airmass", "not a number"), ErrTypeMismatch)
	assert.ErrorIs(t, s.Set("airmass", 0.5), ErrConstraintViolation)

	got, err := s.Get("airmass")
	require.NoError(t, err)
	assert.Equal(t, 2.0, got)
}

func TestSetRejectsInfinity(t *testing.T) {
	s := newTestStore(t)

	for _, v := range []any{"inf", "-Inf", math.Inf(1)} {
		err := s.Set("msolflux", v)
		assert.ErrorIs(t, err, ErrTypeMismatch, "%v", v)
	}

	got, err := s.Get("msolflux")
	require.NoError(t, err)
	assert.Equal(t, 130.0, got)

	_, err = json.Marshal(s.Snapshot())
	assert.NoError(t, err)
}

func TestSetRejectsIntegerOverflow(t *testing.T) {
	s := newTestStore(t)

	for _, v := range []any{1e20, -1e20, uint64(math.MaxUint64)} {
		err := s.Set("wres", v)
		assert.ErrorIs(t, err, ErrTypeMismatch, "%v", v)
		assert.NotErrorIs(t, err, ErrConstraintViolation, "%v", v)
	}

	got, err := s.Get("wres")
	require.NoError(t, err)
	assert.Equal(t, 20000, got)
}

func TestUnknownParameter(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Set("airmass", 1.2))

	_, err := s.Get("not_a_real_param")
	assert.ErrorIs(t, err, ErrUnknownParameter)
	assert.ErrorIs(t, s.Set("not_a_real_param", 1), ErrUnknownParameter)
	assert.ErrorIs(t, s.Reset("not_a_real_param"), ErrUnknownParameter)

	_, ok := s.Lookup("not_a_real_param")
	assert.False(t, ok)
}

func TestResetAllRestoresDefaults(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Set("airmass", 2.5))
	require.NoError(t, s.Set("observatory", "lasilla"))
	require.NoError(t, s.Set("ra", 10.0))

	require.NoError(t, s.Reset("airmass"))
	got, _ := s.Get("airmass")
	assert.Equal(t, 1.0, got)

	s.ResetAll()
	assert.True(t, s.Snapshot().Equal(s.Defaults()))
	assert.Equal(t, []string{"ra", "dec", "date", "mjd"}, s.Unset())
}

func TestSetManyBestEffortSkipsSentinel(t *testing.T) {
	s := newTestStore(t)
	before, _ := s.Get("msolflux")

	report := s.SetMany(map[string]any{"msolflux": -1, "airmass": 1.5})

	assert.Equal(t, 1, report.Applied)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "msolflux", report.Failures[0].Name)
	assert.ErrorIs(t, report.Failures[0].Err, ErrConstraintViolation)
	assert.True(t, report.Failed("msolflux"))
	assert.Error(t, report.Err())

	airmass, _ := s.Get("airmass")
	assert.Equal(t, 1.5, airmass)
	msolflux, _ := s.Get("msolflux")
	assert.Equal(t, before, msolflux)
}

func TestSetManyReportsUnknownAndSnapped(t *testing.T) {
	s := newTestStore(t)

	report := s.SetMany(map[string]any{"pwv": 2.0, "bogus": 1, "season": 2})
	assert.Equal(t, 2, report.Applied)
	assert.Equal(t, []string{"pwv"}, report.Snapped)
	require.Len(t, report.Failures, 1)
	assert.ErrorIs(t, report.Failures[0].Err, ErrUnknownParameter)
}

func TestMergeStrictIsAllOrNothing(t *testing.T) {
	s := newTestStore(t)
	before := s.Snapshot()

	report, err := s.Merge(map[string]any{"msolflux": -1, "airmass": 1.5}, Strict)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConstraintViolation)
	assert.Equal(t, 0, report.Applied)
	assert.True(t, s.Snapshot().Equal(before))

	report, err = s.Merge(map[string]any{"msolflux": 90, "airmass": 1.5}, Strict)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Applied)
}

func TestSnapshotRoundTripIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Set("airmass", 1.7))
	require.NoError(t, s.Set("pwv", 5.0))
	require.NoError(t, s.Set("incl_moon", "N"))
	require.NoError(t, s.Set("season", 3))
	require.NoError(t, s.Set("date", "2020-05-01T03:00:00"))
	snap := s.Snapshot()

	fresh := newTestStore(t)
	report := fresh.SetMany(snap.Map())
	assert.Empty(t, report.Failures)
	assert.True(t, fresh.Snapshot().Equal(snap))
}

func TestSnapshotIsImmutable(t *testing.T) {
	s := newTestStore(t)
	snap := s.Snapshot()
	require.NoError(t, s.Set("airmass", 2.0))

	v, ok := snap.Get("airmass")
	require.True(t, ok)
	assert.Equal(t, 1.0, v)

	m := snap.Map()
	m["airmass"] = 3.0
	v, _ = snap.Get("airmass")
	assert.Equal(t, 1.0, v)
}

func TestSnapshotJSONKeepsDeclarationOrder(t *testing.T) {
	s := newTestStore(t)
	raw, err := json.Marshal(s.Snapshot())
	require.NoError(t, err)

	assert.True(t, json.Valid(raw))
	assert.Regexp(t, `^\{"airmass":1,"pwv_mode":"pwv","season":0,`, string(raw))
	assert.Contains(t, string(raw), `"ra":null,"dec":null,"date":null,"mjd":null}`)
}

func TestIntrospection(t *testing.T) {
	s := newTestStore(t)

	assert.Equal(t, s.Schema().Names(), s.Keys())
	assert.Equal(t, "airmass in range [1.0, 3.0]", s.Comments()["airmass"])
	assert.Equal(t, Range{Min: 1, Max: 3}, s.Allowed()["airmass"])

	comments, allowed := s.Comments(), s.Allowed()
	require.Len(t, comments, len(s.Keys()))
	require.Len(t, allowed, len(s.Keys()))
	for _, k := range s.Keys() {
		assert.Contains(t, comments, k)
		assert.Contains(t, allowed, k)
	}
	assert.Equal(t, "airmass", s.Keys()[0])

	lines := s.Describe("airmass", "iarmass")
	assert.Equal(t, []string{"airmass : airmass in range [1.0, 3.0]", "iarmass not found"}, lines)
	assert.Len(t, s.Describe(), s.Schema().Len())

	f, err := s.Float("airmass")
	require.NoError(t, err)
	assert.Equal(t, 1.0, f)

	_, err = s.Float("ra")
	assert.Error(t, err)

	obs, err := s.String("observatory")
	require.NoError(t, err)
	assert.Equal(t, "paranal", obs)
}

func TestUnsetInputsCanBeCleared(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Set("mjd", 0))
	v, _ := s.Get("mjd")
	assert.Equal(t, 0.0, v)

	require.NoError(t, s.Set("mjd", nil))
	v, _ = s.Get("mjd")
	assert.Nil(t, v)
}

func TestParseMergeMode(t *testing.T) {
	m, err := ParseMergeMode("")
	require.NoError(t, err)
	assert.Equal(t, BestEffort, m)

	m, err = ParseMergeMode("strict")
	require.NoError(t, err)
	assert.Equal(t, Strict, m)

	_, err = ParseMergeMode("lenient")
	assert.Error(t, err)
}
