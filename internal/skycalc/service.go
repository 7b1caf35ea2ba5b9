package skycalc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/i474232898/skycalc/internal/params"
	"github.com/i474232898/skycalc/internal/store"
)

// Service wires the parameter schema to the remote collaborators and the
// response cache. It is safe for concurrent use; per-client state lives in
// Sessions.
type Service struct {
	schema   *params.Schema
	cache    Cache
	almanac  AlmanacProvider
	skyModel SkyModelProvider
	log      *zap.Logger
	now      Clock
}

// NewService creates a new Service. cache may be nil to disable caching.
func NewService(schema *params.Schema, cache Cache, almanac AlmanacProvider, skyModel SkyModelProvider, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		schema:   schema,
		cache:    cache,
		almanac:  almanac,
		skyModel: skyModel,
		log:      log,
		now:      time.Now,
	}
}

// SetClock replaces the clock used for metadata timestamps and tracking.
func (s *Service) SetClock(c Clock) {
	s.now = c
}

// Schema returns the shared parameter catalog.
func (s *Service) Schema() *params.Schema {
	return s.schema
}

// NewSession creates a session whose store holds the schema defaults.
func (s *Service) NewSession(id string) *Session {
	return &Session{
		ID:        id,
		CreatedAt: s.now().UTC(),
		svc:       s,
		store:     params.NewStore(s.schema, params.WithLogger(s.log.With(zap.String("session", id)))),
	}
}

// QueryAlmanac resolves the almanac-derived parameters for q without touching
// any session. An empty observatory falls back to the schema default.
func (s *Service) QueryAlmanac(ctx context.Context, q AlmanacQuery) (AlmanacResult, error) {
	if s.almanac == nil {
		return nil, errors.New("no almanac provider configured")
	}
	if q.Observatory == "" {
		if def, err := s.schema.DefinitionFor("observatory"); err == nil && def.HasDefault() {
			q.Observatory = fmt.Sprint(def.Default)
		}
	}

	req, err := NewAlmanacRequest(q)
	if err != nil {
		return nil, err
	}

	payload := req.Payload()
	key := CacheKey("almanacquery", payload)
	if raw, ok := s.cached(key); ok {
		var result AlmanacResult
		if err := json.Unmarshal(raw, &result); err == nil {
			return result, nil
		}
	}

	result, err := s.almanac.QueryAlmanac(ctx, req)
	if err != nil {
		return nil, err
	}
	s.remember(key, "almanac", result)
	return result, nil
}

// FetchSpectrum submits a parameter snapshot to the sky-model service and
// returns the raw FITS payload.
func (s *Service) FetchSpectrum(ctx context.Context, snap params.Snapshot) ([]byte, error) {
	if s.skyModel == nil {
		return nil, errors.New("no sky-model provider configured")
	}

	payload, err := RequestPayload(snap)
	if err != nil {
		return nil, err
	}

	key := CacheKey("skymodel", payload)
	if raw, ok := s.cached(key); ok {
		return raw, nil
	}

	raw, err := s.skyModel.FetchSpectrum(ctx, payload)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Put(key, "skymodel", raw); err != nil {
			s.log.Warn("failed to cache sky spectrum", zap.Error(err))
		}
	}
	return raw, nil
}

func (s *Service) cached(key string) ([]byte, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, err := s.cache.Get(key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.log.Warn("cache lookup failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	s.log.Debug("cache hit", zap.String("key", key))
	return raw, true
}

func (s *Service) remember(key, kind string, v any) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err == nil {
		err = s.cache.Put(key, kind, raw)
	}
	if err != nil {
		s.log.Warn("failed to cache response", zap.String("kind", kind), zap.Error(err))
	}
}

// RequestPayload turns a snapshot into the flat mapping sent to the sky-model
// service. Observatory names are replaced by ESO site IDs.
func RequestPayload(snap params.Snapshot) (map[string]any, error) {
	payload := snap.Map()
	if obs, ok := payload["observatory"].(string); ok {
		id, err := params.ObservatoryID(obs)
		if err != nil {
			return nil, err
		}
		payload["observatory"] = id
	}
	return payload, nil
}

// CacheKey hashes a request payload into a stable cache key. Pairs are
// rendered as key__value and joined by three underscores in key order.
func CacheKey(prefix string, payload map[string]any) string {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := payload[k]
		if v == nil {
			v = "None"
		}
		parts = append(parts, fmt.Sprintf("%s__%v", k, v))
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "___")))
	return prefix + "_" + hex.EncodeToString(sum[:])
}

// Session is one client's parameter state. The underlying params.Store is
// not thread-safe; Session serializes access to it so HTTP handlers and the
// scheduler can share a session.
type Session struct {
	ID        string
	CreatedAt time.Time

	svc *Service

	mu      sync.Mutex
	store   *params.Store
	last    []byte
	tracked bool
}

// Update runs fn with exclusive access to the session's store.
func (s *Session) Update(fn func(st *params.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.store)
}

// Snapshot returns the current parameter values.
func (s *Session) Snapshot() params.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Snapshot()
}

// Tracked reports whether the scheduler refreshes this session's almanac data.
func (s *Session) Tracked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracked
}

// SetTracked enables or disables periodic almanac refreshes.
func (s *Session) SetTracked(on bool) {
	s.mu.Lock()
	s.tracked = on
	s.mu.Unlock()
}

// LastResponse returns the raw payload of the last sky-model call.
func (s *Session) LastResponse() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// GetAlmanacData queries the almanac. With updateValues the result is merged
// into the store with best-effort semantics; otherwise the store is left
// untouched and the returned report is empty.
func (s *Session) GetAlmanacData(ctx context.Context, q AlmanacQuery, updateValues bool) (AlmanacResult, params.MergeReport, error) {
	if q.Observatory == "" {
		if obs, err := s.observatory(); err == nil {
			q.Observatory = obs
		}
	}

	result, err := s.svc.QueryAlmanac(ctx, q)
	if err != nil {
		return nil, params.MergeReport{}, err
	}
	if !updateValues {
		return result, params.MergeReport{}, nil
	}

	s.mu.Lock()
	report := s.store.SetMany(result)
	s.mu.Unlock()
	if len(report.Failures) > 0 {
		s.svc.log.Warn("almanac values rejected",
			zap.String("session", s.ID),
			zap.Int("applied", report.Applied),
			zap.Error(report.Err()),
		)
	}
	return result, report, nil
}

// RefreshAlmanac queries the almanac at the session's own pointing for the
// given instant and merges the result.
func (s *Session) RefreshAlmanac(ctx context.Context, at time.Time) (params.MergeReport, error) {
	var (
		ra, dec float64
		err     error
	)
	s.mu.Lock()
	ra, err = s.store.Float("ra")
	if err == nil {
		dec, err = s.store.Float("dec")
	}
	s.mu.Unlock()
	if err != nil {
		return params.MergeReport{}, fmt.Errorf("session %s has no pointing: %w", s.ID, err)
	}

	_, report, err := s.GetAlmanacData(ctx, AlmanacQuery{RA: ra, Dec: dec, At: at}, true)
	return report, err
}

func (s *Session) observatory() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.String("observatory")
}

// GetSkySpectrum submits the current parameters and converts the response.
func (s *Session) GetSkySpectrum(ctx context.Context, rt ReturnType) (*Spectrum, error) {
	s.mu.Lock()
	snap := s.store.Snapshot()
	comments := s.store.Comments()
	s.mu.Unlock()

	raw, err := s.svc.FetchSpectrum(ctx, snap)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.last = raw
	s.mu.Unlock()

	if rt == ReturnFITS {
		return BuildSpectrum(nil, rt, nil, raw)
	}

	tbl, err := DecodeFITS(raw)
	if err != nil {
		return nil, err
	}
	return BuildSpectrum(tbl, rt, s.svc.metadata(snap, comments), raw)
}

func (s *Service) metadata(snap params.Snapshot, comments map[string]string) []MetaEntry {
	meta := []MetaEntry{
		{Key: "DESCRIPT", Value: "Sky transmission and emission curves"},
		{Key: "SOURCE", Value: "ESO Skycalc utility"},
		{Key: "AUTHOR", Value: "ESO Skycalc utility"},
		{Key: "STATUS", Value: "Tested - Generated from ESO Skycalc utility"},
		{Key: "DATE_CRE", Value: s.now().UTC().Format(params.DateLayout)},
		{Key: "ETYPE", Value: "TERCurve"},
		{Key: "EDIM", Value: 1},
	}
	for _, name := range snap.Names() {
		v, _ := snap.Get(name)
		meta = append(meta, MetaEntry{Key: name, Value: v, Comment: comments[name]})
	}
	return meta
}
