package skycalc

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	// ErrNoEpoch is returned when an almanac query carries neither a date nor an MJD.
	ErrNoEpoch     = errors.New("either date or mjd must be set")
	ErrInvalidDate = errors.New("invalid almanac date")
)

// almanacDateLayout accepts both zero-padded and unpadded fields.
const almanacDateLayout = "2006-1-2T15:4:5"

// AlmanacField maps a parameter to the almanac output keyword it is read from.
type AlmanacField struct {
	Param  string
	Output string
}

// Section returns the almanac output section holding the keyword.
func (f AlmanacField) Section() string {
	prefix, _, _ := strings.Cut(f.Output, "_")
	switch prefix {
	case "sun", "moon", "target":
		return prefix
	case "ecl":
		return "target"
	default:
		return "observation"
	}
}

// AlmanacFields lists the parameters derivable from date and pointing.
var AlmanacFields = []AlmanacField{
	{Param: "airmass", Output: "target_airmass"},
	{Param: "msolflux", Output: "sun_aveflux"},
	{Param: "moon_sun_sep", Output: "moon_sun_sep"},
	{Param: "moon_target_sep", Output: "moon_target_sep"},
	{Param: "moon_alt", Output: "moon_alt"},
	{Param: "moon_earth_dist", Output: "moon_earth_dist"},
	{Param: "ecl_lon", Output: "ecl_lon"},
	{Param: "ecl_lat", Output: "ecl_lat"},
	{Param: "observatory", Output: "observatory"},
}

// AlmanacResult is a partial mapping over the almanac-derived parameters.
type AlmanacResult map[string]any

// Keys returns the present keys in AlmanacFields order.
func (r AlmanacResult) Keys() []string {
	keys := make([]string, 0, len(r))
	for _, f := range AlmanacFields {
		if _, ok := r[f.Param]; ok {
			keys = append(keys, f.Param)
		}
	}
	if len(keys) == len(r) {
		return keys
	}
	var extra []string
	for k := range r {
		if !isAlmanacParam(k) {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	return append(keys, extra...)
}

func isAlmanacParam(name string) bool {
	for _, f := range AlmanacFields {
		if f.Param == name {
			return true
		}
	}
	return false
}

// AlmanacQuery holds caller input for an almanac lookup. Date takes
// precedence over MJD when both are set.
type AlmanacQuery struct {
	RA          float64
	Dec         float64
	Date        string
	At          time.Time
	MJD         *float64
	Observatory string
}

// AlmanacRequest is the normalized request sent to the almanac service.
type AlmanacRequest struct {
	RA          float64
	Dec         float64
	Time        *time.Time
	MJD         *float64
	Observatory string
}

// NewAlmanacRequest validates q and resolves its epoch.
func NewAlmanacRequest(q AlmanacQuery) (AlmanacRequest, error) {
	req := AlmanacRequest{RA: q.RA, Dec: q.Dec, Observatory: q.Observatory}

	switch {
	case !q.At.IsZero():
		ts := q.At.UTC()
		req.Time = &ts
	case q.Date != "":
		ts, err := time.Parse(almanacDateLayout, q.Date)
		if err != nil {
			return AlmanacRequest{}, fmt.Errorf("%w %q: %v", ErrInvalidDate, q.Date, err)
		}
		req.Time = &ts
	case q.MJD != nil:
		mjd := *q.MJD
		req.MJD = &mjd
	default:
		return AlmanacRequest{}, ErrNoEpoch
	}
	return req, nil
}

// Payload renders the request as the almanac service expects it.
func (r AlmanacRequest) Payload() map[string]any {
	p := map[string]any{
		"coord_ra":  r.RA,
		"coord_dec": r.Dec,
	}
	if r.Time != nil {
		p["input_type"] = "ut_time"
		p["coord_year"] = r.Time.Year()
		p["coord_month"] = int(r.Time.Month())
		p["coord_day"] = r.Time.Day()
		p["coord_ut_hour"] = r.Time.Hour()
		p["coord_ut_min"] = r.Time.Minute()
		p["coord_ut_sec"] = float64(r.Time.Second())
	} else if r.MJD != nil {
		p["input_type"] = "mjd"
		p["mjd"] = *r.MJD
	}
	if r.Observatory != "" {
		p["observatory"] = r.Observatory
	}
	return p
}

// ReturnType selects the in-memory representation of a sky spectrum.
type ReturnType string

const (
	ReturnTable    ReturnType = "table"
	ReturnTableExt ReturnType = "table-ext"
	ReturnArray    ReturnType = "array"
	ReturnFITS     ReturnType = "fits"
)
