package skycalc

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/astrogo/fitsio"

	"github.com/i474232898/skycalc/internal/common"
)

const (
	waveUnit    = "um"
	fluxUnit    = "ph s-1 m-2 um-1 arcsec-2"
	rawFluxUnit = "ph/s/m2/micron/arcsec2"
)

var (
	// ErrMissingColumn is returned when the sky table lacks lam, trans or flux.
	ErrMissingColumn = errors.New("sky table is missing a required column")
	// ErrUnexpectedUnit is returned for flux columns in an unknown unit.
	ErrUnexpectedUnit = errors.New("unexpected flux unit")
	// ErrUnsupportedReturnType is returned by ParseReturnType.
	ErrUnsupportedReturnType = errors.New("unsupported return type")
)

// ParseReturnType accepts loose spellings: anything containing "tab" (plus
// "ext" for all columns), "arr" or "fit". Empty selects the table.
func ParseReturnType(s string) (ReturnType, error) {
	switch {
	case s == "":
		return ReturnTable, nil
	case common.HasAny(s, "tab"):
		if common.HasAny(s, "ext") {
			return ReturnTableExt, nil
		}
		return ReturnTable, nil
	case common.HasAny(s, "arr"):
		return ReturnArray, nil
	case common.HasAny(s, "fit"):
		return ReturnFITS, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedReturnType, s)
}

// Column is one named, unit-tagged column of the sky table.
type Column struct {
	Name string    `json:"name"`
	Unit string    `json:"unit,omitempty"`
	Data []float64 `json:"data"`
}

// MetaEntry is a metadata keyword with an optional comment.
type MetaEntry struct {
	Key     string `json:"key"`
	Value   any    `json:"value"`
	Comment string `json:"comment,omitempty"`
}

// Table is the columnar form of the sky-model response.
type Table struct {
	Columns []Column    `json:"columns"`
	Meta    []MetaEntry `json:"meta,omitempty"`
}

// Column returns the column called name.
func (t *Table) Column(name string) (*Column, bool) {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i], true
		}
	}
	return nil, false
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if len(t.Columns) == 0 {
		return 0
	}
	return len(t.Columns[0].Data)
}

// Select returns a table with only the named columns, in the given order.
func (t *Table) Select(names ...string) (*Table, error) {
	out := &Table{Meta: t.Meta}
	for _, name := range names {
		col, ok := t.Column(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}
		out.Columns = append(out.Columns, *col)
	}
	return out, nil
}

// Arrays is the plain-array form: wavelength, transmission and emission.
type Arrays struct {
	Wave     []float64 `json:"wave"`
	WaveUnit string    `json:"wave_unit"`
	Trans    []float64 `json:"trans"`
	Flux     []float64 `json:"flux"`
	FluxUnit string    `json:"flux_unit"`
}

// Spectrum holds one representation of a sky-model response.
type Spectrum struct {
	Type   ReturnType `json:"type"`
	Table  *Table     `json:"table,omitempty"`
	Arrays *Arrays    `json:"arrays,omitempty"`
	FITS   []byte     `json:"-"`
}

// DecodeFITS reads the first binary table of a sky-model FITS payload into
// float64 columns. Vector and non-numeric columns are skipped.
func DecodeFITS(raw []byte) (*Table, error) {
	f, err := fitsio.Open(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("open fits: %w", err)
	}
	defer f.Close()

	var tbl *fitsio.Table
	for _, hdu := range f.HDUs() {
		if t, ok := hdu.(*fitsio.Table); ok {
			tbl = t
			break
		}
	}
	if tbl == nil {
		return nil, errors.New("fits payload has no table extension")
	}

	cols := tbl.Cols()
	ptrs := make([]any, len(cols))
	out := &Table{}
	index := make([]int, len(cols))
	for i, col := range cols {
		ptrs[i] = reflect.New(col.Type()).Interface()
		index[i] = -1
		if isScalarNumeric(col.Type().Kind()) {
			index[i] = len(out.Columns)
			out.Columns = append(out.Columns, Column{
				Name: col.Name,
				Unit: strings.TrimSpace(col.Unit),
				Data: make([]float64, 0, tbl.NumRows()),
			})
		}
	}

	rows, err := tbl.Read(0, tbl.NumRows())
	if err != nil {
		return nil, fmt.Errorf("read fits table: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan fits row: %w", err)
		}
		for i, p := range ptrs {
			if index[i] < 0 {
				continue
			}
			c := &out.Columns[index[i]]
			c.Data = append(c.Data, toFloat64(reflect.ValueOf(p).Elem()))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read fits rows: %w", err)
	}

	return out, nil
}

func isScalarNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Float32, reflect.Float64,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

func toFloat64(v reflect.Value) float64 {
	switch v.Kind() {
	case reflect.Float32, reflect.Float64:
		return v.Float()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int())
	default:
		return float64(v.Uint())
	}
}

// NormalizeUnits fills in the wavelength unit when missing and rewrites the
// service's flux unit spelling. Any other flux unit is an error.
func NormalizeUnits(t *Table) error {
	for _, name := range []string{"lam", "trans", "flux"} {
		if _, ok := t.Column(name); !ok {
			return fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}
	}

	for i := range t.Columns {
		c := &t.Columns[i]
		switch {
		case c.Name == "lam":
			if c.Unit == "" {
				c.Unit = waveUnit
			}
		case strings.Contains(c.Name, "flux"):
			switch c.Unit {
			case "", "None", rawFluxUnit, fluxUnit:
				c.Unit = fluxUnit
			default:
				return fmt.Errorf("%w: %s in column %s", ErrUnexpectedUnit, c.Unit, c.Name)
			}
		}
	}
	return nil
}

// BuildSpectrum converts a decoded table into the requested representation.
// ReturnFITS passes the server's payload through untouched; meta is only
// attached to the table forms.
func BuildSpectrum(t *Table, rt ReturnType, meta []MetaEntry, raw []byte) (*Spectrum, error) {
	if rt == ReturnFITS {
		return &Spectrum{Type: rt, FITS: raw}, nil
	}

	if err := NormalizeUnits(t); err != nil {
		return nil, err
	}

	switch rt {
	case ReturnTableExt:
		full := *t
		full.Meta = meta
		return &Spectrum{Type: rt, Table: &full}, nil

	case ReturnTable:
		small, err := t.Select("lam", "trans", "flux")
		if err != nil {
			return nil, err
		}
		small.Meta = meta
		return &Spectrum{Type: rt, Table: small}, nil

	case ReturnArray:
		lam, _ := t.Column("lam")
		trans, _ := t.Column("trans")
		flux, _ := t.Column("flux")
		return &Spectrum{Type: rt, Arrays: &Arrays{
			Wave:     lam.Data,
			WaveUnit: lam.Unit,
			Trans:    trans.Data,
			Flux:     flux.Data,
			FluxUnit: flux.Unit,
		}}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnsupportedReturnType, rt)
}
