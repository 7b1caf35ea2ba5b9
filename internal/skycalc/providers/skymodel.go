package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const (
	skyModelPath = "/observing/etc/api/skycalc"
	tmpPath      = "/observing/etc/tmp/"
	rmtmpPath    = "/observing/etc/api/rmtmp"
)

// ErrValidation is returned when the sky-model service rejects the parameters.
var ErrValidation = errors.New("parameter validation error")

// SkyModelClient implements skycalc.SkyModelProvider for the ESO sky model.
type SkyModelClient struct {
	name    string
	server  string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	log     *zap.Logger
}

// NewSkyModelClient creates a client for the sky-model endpoints of server.
func NewSkyModelClient(client *http.Client, server string, log *zap.Logger) *SkyModelClient {
	if server == "" {
		server = DefaultServer
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &SkyModelClient{
		name:   "eso-skymodel",
		server: strings.TrimRight(server, "/"),
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: DefaultBackoff,
		},
		circuit: newBreaker("eso-skymodel"),
		log:     log.Named("skymodel"),
	}
}

func (p *SkyModelClient) Name() string {
	return p.name
}

// FetchSpectrum posts the parameters, downloads the resulting FITS table and
// asks the server to remove its temporary directory.
func (p *SkyModelClient) FetchSpectrum(ctx context.Context, payload map[string]any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, p.log, func() (*http.Request, error) {
		r, err := http.NewRequest(http.MethodPost, p.server+skyModelPath, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		r.Header.Set("Content-Type", "application/json")
		return r, nil
	})
	if err != nil {
		return nil, err
	}

	var status struct {
		Status string `json:"status"`
		TmpDir string `json:"tmpdir"`
		Error  string `json:"error"`
	}
	err = json.NewDecoder(resp.Body).Decode(&status)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("decode sky-model response: %w", err)
	}
	if status.Status != "success" {
		return nil, fmt.Errorf("%w: %s", ErrValidation, status.Error)
	}
	if status.TmpDir == "" {
		return nil, errors.New("sky-model response has no tmpdir")
	}

	raw, err := p.download(ctx, p.server+tmpPath+url.PathEscape(status.TmpDir)+"/skytable.fits")
	if err != nil {
		return nil, fmt.Errorf("could not retrieve FITS data from server: %w", err)
	}

	p.deleteTmpDir(ctx, status.TmpDir)
	return raw, nil
}

func (p *SkyModelClient) download(ctx context.Context, u string) ([]byte, error) {
	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, p.log, func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, u, nil)
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// deleteTmpDir failures are logged only; the spectrum is already in hand.
func (p *SkyModelClient) deleteTmpDir(ctx context.Context, tmpDir string) {
	u := p.server + rmtmpPath + "?" + url.Values{"d": {tmpDir}}.Encode()
	raw, err := p.download(ctx, u)
	if err != nil {
		p.log.Warn("could not delete server tmpdir", zap.String("tmpdir", tmpDir), zap.Error(err))
		return
	}
	if strings.TrimSpace(string(raw)) != "ok" {
		p.log.Warn("could not delete server tmpdir",
			zap.String("tmpdir", tmpDir),
			zap.String("response", strings.TrimSpace(string(raw))),
		)
	}
}
