package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/i474232898/skycalc/internal/params"
	"github.com/i474232898/skycalc/internal/skycalc"
)

const almanacPath = "/observing/etc/api/skycalc_almanac"

// AlmanacClient implements skycalc.AlmanacProvider for the ESO almanac.
type AlmanacClient struct {
	name    string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	log     *zap.Logger
}

// NewAlmanacClient creates a client for the almanac endpoint of server.
func NewAlmanacClient(client *http.Client, server string, log *zap.Logger) *AlmanacClient {
	if server == "" {
		server = DefaultServer
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AlmanacClient{
		name:    "eso-almanac",
		baseURL: strings.TrimRight(server, "/") + almanacPath,
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: DefaultBackoff,
		},
		circuit: newBreaker("eso-almanac"),
		log:     log.Named("almanac"),
	}
}

func (p *AlmanacClient) Name() string {
	return p.name
}

// QueryAlmanac posts the request and extracts the almanac-derived parameters.
// Keywords missing from the response are skipped with a warning.
func (p *AlmanacClient) QueryAlmanac(ctx context.Context, req skycalc.AlmanacRequest) (skycalc.AlmanacResult, error) {
	body, err := json.Marshal(req.Payload())
	if err != nil {
		return nil, err
	}

	buildRequest := func() (*http.Request, error) {
		r, err := http.NewRequest(http.MethodPost, p.baseURL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		r.Header.Set("Content-Type", "application/json")
		return r, nil
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, p.log, buildRequest)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload struct {
		Output map[string]map[string]json.RawMessage `json:"output"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode almanac response: %w", err)
	}
	if payload.Output == nil {
		return nil, fmt.Errorf("almanac response has no output section")
	}

	result := make(skycalc.AlmanacResult, len(skycalc.AlmanacFields))
	for _, f := range skycalc.AlmanacFields {
		raw, ok := payload.Output[f.Section()][f.Output]
		if !ok {
			p.log.Warn("keyword not found in almanac response",
				zap.String("section", f.Section()),
				zap.String("keyword", f.Output),
			)
			continue
		}

		var v any
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&v); err != nil {
			p.log.Warn("unreadable almanac value", zap.String("keyword", f.Output), zap.Error(err))
			continue
		}
		result[f.Param] = normalizeAlmanacValue(f.Param, v)
	}
	return result, nil
}

func normalizeAlmanacValue(param string, v any) any {
	if param == "observatory" {
		s := fmt.Sprint(v)
		if name, err := params.ObservatoryName(s); err == nil {
			return name
		}
		return s
	}
	if n, ok := v.(json.Number); ok {
		if f, err := n.Float64(); err == nil {
			return f
		}
		return n.String()
	}
	return v
}
