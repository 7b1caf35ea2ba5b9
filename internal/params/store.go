package params

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// MergeMode selects how bulk updates treat individual failures.
type MergeMode int

const (
	// BestEffort applies every valid key and reports the rest.
	BestEffort MergeMode = iota
	// Strict applies nothing unless every key is valid.
	Strict
)

// ParseMergeMode maps "best-effort" / "strict" to a MergeMode. An empty string
// selects BestEffort.
func ParseMergeMode(s string) (MergeMode, error) {
	switch s {
	case "", "best-effort", "best_effort":
		return BestEffort, nil
	case "strict":
		return Strict, nil
	}
	return BestEffort, fmt.Errorf("unknown merge mode %q", s)
}

func (m MergeMode) String() string {
	if m == Strict {
		return "strict"
	}
	return "best-effort"
}

// MergeFailure records a key skipped during a bulk update.
type MergeFailure struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
	Err   error  `json:"-"`
}

// MarshalJSON includes the error text.
func (f MergeFailure) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Name   string `json:"name"`
		Value  any    `json:"value"`
		Reason string `json:"reason"`
	}{f.Name, f.Value, f.Err.Error()})
}

// MergeReport summarizes a bulk update.
type MergeReport struct {
	Applied  int            `json:"applied"`
	Snapped  []string       `json:"snapped,omitempty"`
	Failures []MergeFailure `json:"failures,omitempty"`
}

// Err joins the failures into a single error, or returns nil.
func (r MergeReport) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failures))
	for _, f := range r.Failures {
		errs = append(errs, f.Err)
	}
	return errors.Join(errs...)
}

// Failed reports whether name was skipped.
func (r MergeReport) Failed(name string) bool {
	for _, f := range r.Failures {
		if f.Name == name {
			return true
		}
	}
	return false
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the logger used for snapping notices.
func WithLogger(l *zap.Logger) StoreOption {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// Store holds the current parameter values of one session. Every value
// satisfies its definition, or is nil for a parameter without a default that
// has not been supplied yet.
//
// A Store is not safe for concurrent use; give each session its own.
type Store struct {
	schema *Schema
	values map[string]any
	log    *zap.Logger
}

// NewStore creates a store populated with the schema defaults.
func NewStore(schema *Schema, opts ...StoreOption) *Store {
	s := &Store{
		schema: schema,
		values: make(map[string]any, schema.Len()),
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ResetAll()
	return s
}

// Schema returns the catalog backing the store.
func (s *Store) Schema() *Schema {
	return s.schema
}

// Get returns the current value of name.
func (s *Store) Get(name string) (any, error) {
	if !s.schema.Has(name) {
		return nil, &UnknownParameterError{Name: name}
	}
	return s.values[name], nil
}

// Lookup is the map-style accessor: it returns the value and whether name is
// a known parameter.
func (s *Store) Lookup(name string) (any, bool) {
	v, err := s.Get(name)
	return v, err == nil
}

// Float returns name as a float64. It fails for unset or non-numeric values.
func (s *Store) Float(name string) (float64, error) {
	v, err := s.Get(name)
	if err != nil {
		return 0, err
	}
	if v == nil {
		return 0, fmt.Errorf("%s is unset", name)
	}
	return toFloat(v)
}

// String returns name as a string. It fails for unset values.
func (s *Store) String(name string) (string, error) {
	v, err := s.Get(name)
	if err != nil {
		return "", err
	}
	if v == nil {
		return "", fmt.Errorf("%s is unset", name)
	}
	return fmt.Sprint(v), nil
}

// Set validates v and stores it. On error the store is unchanged.
func (s *Store) Set(name string, v any) error {
	res, err := s.check(name, v)
	if err != nil {
		return err
	}
	s.apply(name, v, res)
	return nil
}

func (s *Store) check(name string, v any) (Result, error) {
	def, err := s.schema.DefinitionFor(name)
	if err != nil {
		return Result{}, err
	}
	return Check(def, v)
}

func (s *Store) apply(name string, raw any, res Result) {
	if res.Snapped {
		s.log.Info("parameter snapped to nearest allowed value",
			zap.String("param", name),
			zap.Any("requested", raw),
			zap.Any("value", res.Value),
		)
	}
	s.values[name] = res.Value
}

// SetMany applies updates with best-effort semantics: each key is validated
// and applied independently, failures are collected in the report and leave
// the prior value in place.
func (s *Store) SetMany(updates map[string]any) MergeReport {
	report, _ := s.Merge(updates, BestEffort)
	return report
}

// Merge applies updates in schema declaration order. Unknown names are
// processed last, in lexical order. In Strict mode nothing is applied if any
// key fails, and the returned error joins all failures.
func (s *Store) Merge(updates map[string]any, mode MergeMode) (MergeReport, error) {
	type pending struct {
		name string
		raw  any
		res  Result
	}

	var (
		report MergeReport
		ok     []pending
	)
	for _, name := range s.orderedKeys(updates) {
		raw := updates[name]
		res, err := s.check(name, raw)
		if err != nil {
			report.Failures = append(report.Failures, MergeFailure{Name: name, Value: raw, Err: err})
			continue
		}
		ok = append(ok, pending{name: name, raw: raw, res: res})
	}

	if mode == Strict && len(report.Failures) > 0 {
		return report, report.Err()
	}

	for _, p := range ok {
		s.apply(p.name, p.raw, p.res)
		report.Applied++
		if p.res.Snapped {
			report.Snapped = append(report.Snapped, p.name)
		}
	}
	for _, f := range report.Failures {
		s.log.Warn("parameter update skipped", zap.String("param", f.Name), zap.Error(f.Err))
	}
	return report, nil
}

func (s *Store) orderedKeys(updates map[string]any) []string {
	keys := make([]string, 0, len(updates))
	for _, name := range s.schema.names {
		if _, ok := updates[name]; ok {
			keys = append(keys, name)
		}
	}
	var unknown []string
	for name := range updates {
		if !s.schema.Has(name) {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	return append(keys, unknown...)
}

// Reset restores name to its default.
func (s *Store) Reset(name string) error {
	def, err := s.schema.DefinitionFor(name)
	if err != nil {
		return err
	}
	s.values[name] = def.Default
	return nil
}

// ResetAll restores every parameter to its default.
func (s *Store) ResetAll() {
	for _, name := range s.schema.names {
		s.values[name] = s.schema.defs[name].Default
	}
}

// Snapshot returns a copy of the current values.
func (s *Store) Snapshot() Snapshot {
	return newSnapshot(s.schema.names, s.values)
}

// Keys returns the parameter names in declaration order.
func (s *Store) Keys() []string {
	return s.schema.Names()
}

// Values is an alias for Snapshot.
func (s *Store) Values() Snapshot {
	return s.Snapshot()
}

// Defaults returns the schema defaults.
func (s *Store) Defaults() Snapshot {
	defaults := make(map[string]any, s.schema.Len())
	for name, def := range s.schema.defs {
		defaults[name] = def.Default
	}
	return newSnapshot(s.schema.names, defaults)
}

// Comments maps each parameter name to its description. Map order is
// random; range over Keys for declaration order.
func (s *Store) Comments() map[string]string {
	out := make(map[string]string, s.schema.Len())
	for name, def := range s.schema.defs {
		out[name] = def.Description
	}
	return out
}

// Allowed maps each parameter name to its constraint bound. Range over
// Keys for declaration order.
func (s *Store) Allowed() map[string]any {
	out := make(map[string]any, s.schema.Len())
	for name, def := range s.schema.defs {
		out[name] = cloneBound(def.Bound)
	}
	return out
}

// Unset lists the parameters that currently hold no value.
func (s *Store) Unset() []string {
	var out []string
	for _, name := range s.schema.names {
		if s.values[name] == nil {
			out = append(out, name)
		}
	}
	return out
}

// Describe returns "name : description" lines for the given names, or for all
// parameters when none are given. Unknown names are reported as not found.
func (s *Store) Describe(names ...string) []string {
	if len(names) == 0 {
		names = s.schema.names
	}
	out := make([]string, 0, len(names))
	for _, name := range names {
		def, err := s.schema.DefinitionFor(name)
		if err != nil {
			out = append(out, name+" not found")
			continue
		}
		out = append(out, fmt.Sprintf("%s : %s", name, def.Description))
	}
	return out
}

// Snapshot is an immutable, ordered copy of parameter values.
type Snapshot struct {
	names  []string
	values map[string]any
}

func newSnapshot(names []string, values map[string]any) Snapshot {
	snap := Snapshot{
		names:  make([]string, len(names)),
		values: make(map[string]any, len(names)),
	}
	copy(snap.names, names)
	for _, name := range names {
		snap.values[name] = values[name]
	}
	return snap
}

// Names returns the names in declaration order.
func (s Snapshot) Names() []string {
	return append([]string(nil), s.names...)
}

// Get returns the value of name and whether it is present.
func (s Snapshot) Get(name string) (any, bool) {
	v, ok := s.values[name]
	return v, ok
}

// Len returns the number of entries.
func (s Snapshot) Len() int {
	return len(s.names)
}

// Map returns a copy of the values as a plain map.
func (s Snapshot) Map() map[string]any {
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Equal reports whether both snapshots hold the same names and values.
func (s Snapshot) Equal(other Snapshot) bool {
	if len(s.names) != len(other.names) {
		return false
	}
	for i, name := range s.names {
		if other.names[i] != name || other.values[name] != s.values[name] {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the snapshot as a flat object in declaration order.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range s.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(s.values[name])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
