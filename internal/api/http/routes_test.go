package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/skycalc/internal/params"
	"github.com/i474232898/skycalc/internal/skycalc"
)

type stubAlmanac struct{}

func (stubAlmanac) Name() string { return "stub" }

func (stubAlmanac) QueryAlmanac(ctx context.Context, req skycalc.AlmanacRequest) (skycalc.AlmanacResult, error) {
	return skycalc.AlmanacResult{"airmass": 1.8, "msolflux": -1.0, "moon_alt": 12.0}, nil
}

type stubSkyModel struct {
	raw []byte
	err error
}

func (s stubSkyModel) Name() string { return "stub" }

func (s stubSkyModel) FetchSpectrum(ctx context.Context, payload map[string]any) ([]byte, error) {
	return s.raw, s.err
}

func newTestApp(sky skycalc.SkyModelProvider) (*fiber.App, *skycalc.Registry) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	svc := skycalc.NewService(params.MustDefault(), nil, stubAlmanac{}, sky, nil)
	reg := skycalc.NewRegistry(svc)
	RegisterRoutes(app, reg)
	return app, reg
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string) (int, map[string]any) {
	t.Helper()

	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var out map[string]any
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func createSession(t *testing.T, app *fiber.App) string {
	t.Helper()
	status, body := doJSON(t, app, http.MethodPost, "/api/v1/sessions", "")
	require.Equal(t, http.StatusCreated, status)
	return body["id"].(string)
}

func TestSessionLifecycle(t *testing.T) {
	app, reg := newTestApp(nil)
	id := createSession(t, app)

	status, body := doJSON(t, app, http.MethodGet, "/api/v1/sessions/"+id, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, id, body["id"])
	assert.Equal(t, 1.0, body["params"].(map[string]any)["airmass"])

	status, _ = doJSON(t, app, http.MethodDelete, "/api/v1/sessions/"+id, "")
	assert.Equal(t, http.StatusNoContent, status)
	assert.Empty(t, reg.Sessions())

	status, body = doJSON(t, app, http.MethodGet, "/api/v1/sessions/"+id, "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, true, body["error"])
}

func TestSchemaListsDefinitionsInOrder(t *testing.T) {
	app, _ := newTestApp(nil)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/schema", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	var defs []params.Definition
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&defs))
	require.NotEmpty(t, defs)
	assert.Equal(t, "airmass", defs[0].Name)
	assert.Equal(t, "mjd", defs[len(defs)-1].Name)
}

func TestParamsResponseKeepsDeclarationOrder(t *testing.T) {
	app, _ := newTestApp(nil)
	id := createSession(t, app)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+id+"/params", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(string(raw), `{"airmass":1`), string(raw))
}

func TestPatchParamsBestEffort(t *testing.T) {
	app, _ := newTestApp(nil)
	id := createSession(t, app)

	status, body := doJSON(t, app, http.MethodPatch, "/api/v1/sessions/"+id+"/params",
		`{"airmass": 1.5, "pwv": 0.7, "msolflux": -1}`)
	require.Equal(t, http.StatusOK, status)

	report := body["report"].(map[string]any)
	assert.Equal(t, 2.0, report["applied"])
	assert.Equal(t, []any{"pwv"}, report["snapped"])
	failures := report["failures"].([]any)
	require.Len(t, failures, 1)
	assert.Equal(t, "msolflux", failures[0].(map[string]any)["name"])

	values := body["params"].(map[string]any)
	assert.Equal(t, 1.5, values["airmass"])
	assert.Equal(t, 0.5, values["pwv"])
	assert.Equal(t, 130.0, values["msolflux"])
}

func TestPatchParamsStrict(t *testing.T) {
	app, _ := newTestApp(nil)
	id := createSession(t, app)
	path := "/api/v1/sessions/" + id + "/params"

	status, body := doJSON(t, app, http.MethodPatch, path+"?mode=strict", `{"airmass": 1.5, "msolflux": -1}`)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Len(t, body["failures"], 1)

	status, _ = doJSON(t, app, http.MethodPatch, path+"?mode=strict", `{"nope": 1}`)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = doJSON(t, app, http.MethodPatch, path+"?mode=sometimes", `{"airmass": 1.5}`)
	assert.Equal(t, http.StatusBadRequest, status)

	_, body = doJSON(t, app, http.MethodGet, path+"/airmass", "")
	assert.Equal(t, 1.0, body["value"])
}

func TestReplaceParams(t *testing.T) {
	app, _ := newTestApp(nil)
	id := createSession(t, app)
	path := "/api/v1/sessions/" + id + "/params"

	status, _ := doJSON(t, app, http.MethodPatch, path, `{"moon_alt": 10}`)
	require.Equal(t, http.StatusOK, status)

	status, _ = doJSON(t, app, http.MethodPut, path, `{"airmass": "high"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	status, body := doJSON(t, app, http.MethodPut, path, `{"airmass": 2.0}`)
	require.Equal(t, http.StatusOK, status)
	values := body["params"].(map[string]any)
	assert.Equal(t, 2.0, values["airmass"])
	assert.Equal(t, 45.0, values["moon_alt"])
}

func TestGetAndResetParam(t *testing.T) {
	app, _ := newTestApp(nil)
	id := createSession(t, app)
	path := "/api/v1/sessions/" + id + "/params"

	status, body := doJSON(t, app, http.MethodGet, path+"/observatory", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "paranal", body["value"])
	assert.Contains(t, body["allowed"], "lasilla")

	status, _ = doJSON(t, app, http.MethodGet, path+"/bogus", "")
	assert.Equal(t, http.StatusNotFound, status)

	doJSON(t, app, http.MethodPatch, path, `{"observatory": "lasilla"}`)
	status, _ = doJSON(t, app, http.MethodDelete, path+"/observatory", "")
	assert.Equal(t, http.StatusNoContent, status)

	_, body = doJSON(t, app, http.MethodGet, path+"/observatory", "")
	assert.Equal(t, "paranal", body["value"])

	doJSON(t, app, http.MethodPatch, path, `{"airmass": 2.5}`)
	status, body = doJSON(t, app, http.MethodPost, path+"/reset", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1.0, body["airmass"])
}

func TestAlmanacEndpoint(t *testing.T) {
	app, _ := newTestApp(nil)
	id := createSession(t, app)
	base := "/api/v1/sessions/" + id + "/almanac"

	status, _ := doJSON(t, app, http.MethodGet, base+"?dec=10&mjd=59000", "")
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = doJSON(t, app, http.MethodGet, base+"?ra=10&dec=10", "")
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = doJSON(t, app, http.MethodGet, base+"?ra=10&dec=10&date=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, status)

	status, body := doJSON(t, app, http.MethodGet, base+"?ra=10&dec=10&mjd=59000", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1.8, body["almanac"].(map[string]any)["airmass"])
	assert.NotContains(t, body, "params")

	status, body = doJSON(t, app, http.MethodGet, base+"?ra=10&dec=10&date=2020-1-1T0:0:0&update=true", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1.8, body["params"].(map[string]any)["airmass"])
	assert.Equal(t, 2.0, body["report"].(map[string]any)["applied"])
}

func TestSpectrumEndpoint(t *testing.T) {
	app, _ := newTestApp(stubSkyModel{raw: []byte("SIMPLE")})
	id := createSession(t, app)
	base := "/api/v1/sessions/" + id + "/spectrum"

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, base+"?format=fits", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/fits", resp.Header.Get("Content-Type"))
	raw, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "SIMPLE", string(raw))

	status, _ := doJSON(t, app, http.MethodGet, base+"?format=synphot", "")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestSpectrumUpstreamFailure(t *testing.T) {
	app, _ := newTestApp(stubSkyModel{err: errors.New("connection reset")})
	id := createSession(t, app)

	status, body := doJSON(t, app, http.MethodGet, "/api/v1/sessions/"+id+"/spectrum?format=fits", "")
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Contains(t, body["message"], "connection reset")
}

func TestTracking(t *testing.T) {
	app, reg := newTestApp(nil)
	id := createSession(t, app)

	status, _ := doJSON(t, app, http.MethodPut, "/api/v1/sessions/"+id+"/tracking", `{}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body := doJSON(t, app, http.MethodPut, "/api/v1/sessions/"+id+"/tracking", `{"enabled": true}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["tracked"])

	sess, err := reg.Get(id)
	require.NoError(t, err)
	assert.True(t, sess.Tracked())
}
