package httpapi

import (
	"context"
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/skycalc/internal/params"
	"github.com/i474232898/skycalc/internal/skycalc"
	"github.com/i474232898/skycalc/internal/skycalc/providers"
)

var validate = validator.New()

// ErrorHandler renders every error as {"error": true, "message": ...}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": err.Error(),
	})
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, reg *skycalc.Registry) {
	h := &handlers{reg: reg}

	v1 := app.Group("/api/v1")
	v1.Get("/schema", h.schema)

	v1.Post("/sessions", h.createSession)

	s := v1.Group("/sessions/:id", h.loadSession)
	s.Get("/", h.getSession)
	s.Delete("/", h.deleteSession)
	s.Put("/tracking", h.setTracking)

	s.Get("/params", h.getParams)
	s.Put("/params", h.replaceParams)
	s.Patch("/params", h.patchParams)
	s.Post("/params/reset", h.resetParams)
	s.Get("/params/:name", h.getParam)
	s.Delete("/params/:name", h.resetParam)

	s.Get("/almanac", h.almanac)
	s.Get("/spectrum", h.spectrum)
}

type handlers struct {
	reg *skycalc.Registry
}

const sessionKey = "session"

func (h *handlers) loadSession(c *fiber.Ctx) error {
	sess, err := h.reg.Get(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}
	c.Locals(sessionKey, sess)
	return c.Next()
}

func session(c *fiber.Ctx) *skycalc.Session {
	return c.Locals(sessionKey).(*skycalc.Session)
}

func (h *handlers) schema(c *fiber.Ctx) error {
	return c.JSON(h.reg.Service().Schema().Definitions())
}

type sessionView struct {
	ID        string          `json:"id"`
	CreatedAt string          `json:"created_at"`
	Tracked   bool            `json:"tracked"`
	Params    params.Snapshot `json:"params"`
}

func viewOf(sess *skycalc.Session) sessionView {
	return sessionView{
		ID:        sess.ID,
		CreatedAt: sess.CreatedAt.Format(params.DateLayout),
		Tracked:   sess.Tracked(),
		Params:    sess.Snapshot(),
	}
}

func (h *handlers) createSession(c *fiber.Ctx) error {
	sess := h.reg.Create()
	return c.Status(fiber.StatusCreated).JSON(viewOf(sess))
}

func (h *handlers) getSession(c *fiber.Ctx) error {
	return c.JSON(viewOf(session(c)))
}

func (h *handlers) deleteSession(c *fiber.Ctx) error {
	if err := h.reg.Delete(session(c).ID); err != nil {
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type trackingRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

func (h *handlers) setTracking(c *fiber.Ctx) error {
	var req trackingRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	sess := session(c)
	sess.SetTracked(*req.Enabled)
	return c.JSON(viewOf(sess))
}

func (h *handlers) getParams(c *fiber.Ctx) error {
	return c.JSON(session(c).Snapshot())
}

type paramView struct {
	Name        string `json:"name"`
	Value       any    `json:"value"`
	Default     any    `json:"default"`
	Allowed     any    `json:"allowed"`
	Description string `json:"description"`
}

func (h *handlers) getParam(c *fiber.Ctx) error {
	name := c.Params("name")
	def, err := h.reg.Service().Schema().DefinitionFor(name)
	if err != nil {
		return paramsError(err)
	}
	v, _ := session(c).Snapshot().Get(name)
	return c.JSON(paramView{
		Name:        name,
		Value:       v,
		Default:     def.Default,
		Allowed:     def.Bound,
		Description: def.Description,
	})
}

func decodeUpdates(c *fiber.Ctx) (map[string]any, error) {
	var updates map[string]any
	if err := c.BodyParser(&updates); err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "body must be a JSON object of parameter values")
	}
	return updates, nil
}

// replaceParams resets the session to defaults and applies the body. The
// update is all-or-nothing.
func (h *handlers) replaceParams(c *fiber.Ctx) error {
	updates, err := decodeUpdates(c)
	if err != nil {
		return err
	}

	var report params.MergeReport
	err = session(c).Update(func(st *params.Store) error {
		trial := params.NewStore(st.Schema())
		if report, err = trial.Merge(updates, params.Strict); err != nil {
			return err
		}
		st.ResetAll()
		report, err = st.Merge(updates, params.Strict)
		return err
	})
	if err != nil {
		return mergeFailed(c, report, err)
	}
	return c.JSON(fiber.Map{"report": report, "params": session(c).Snapshot()})
}

// patchParams merges the body into the current values. mode=strict makes the
// update all-or-nothing; the default skips rejected keys.
func (h *handlers) patchParams(c *fiber.Ctx) error {
	mode, err := params.ParseMergeMode(c.Query("mode"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	updates, err := decodeUpdates(c)
	if err != nil {
		return err
	}

	var report params.MergeReport
	err = session(c).Update(func(st *params.Store) error {
		report, err = st.Merge(updates, mode)
		return err
	})
	if err != nil {
		return mergeFailed(c, report, err)
	}
	return c.JSON(fiber.Map{"report": report, "params": session(c).Snapshot()})
}

func mergeFailed(c *fiber.Ctx, report params.MergeReport, err error) error {
	code := fiber.StatusUnprocessableEntity
	if len(report.Failures) > 0 && allUnknown(report) {
		code = fiber.StatusNotFound
	}
	return c.Status(code).JSON(fiber.Map{
		"error":    true,
		"message":  err.Error(),
		"failures": report.Failures,
	})
}

func allUnknown(report params.MergeReport) bool {
	for _, f := range report.Failures {
		if !errors.Is(f.Err, params.ErrUnknownParameter) {
			return false
		}
	}
	return true
}

func (h *handlers) resetParams(c *fiber.Ctx) error {
	sess := session(c)
	_ = sess.Update(func(st *params.Store) error {
		st.ResetAll()
		return nil
	})
	return c.JSON(sess.Snapshot())
}

func (h *handlers) resetParam(c *fiber.Ctx) error {
	name := c.Params("name")
	err := session(c).Update(func(st *params.Store) error {
		return st.Reset(name)
	})
	if err != nil {
		return paramsError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// almanacQuery holds query parameters for the almanac endpoint.
type almanacQuery struct {
	RA          *float64 `validate:"required,gte=0,lte=360"`
	Dec         *float64 `validate:"required,gte=-90,lte=90"`
	Date        string   `validate:"required_without=MJD"`
	MJD         *float64 `validate:"required_without=Date"`
	Observatory string   `validate:"omitempty,oneof=paranal lasilla armazones 3060m highanddry 5000m"`
	Update      bool
}

func (q *almanacQuery) bind(c *fiber.Ctx) error {
	var err error
	if q.RA, err = queryFloat(c, "ra"); err != nil {
		return err
	}
	if q.Dec, err = queryFloat(c, "dec"); err != nil {
		return err
	}
	if q.MJD, err = queryFloat(c, "mjd"); err != nil {
		return err
	}
	q.Date = c.Query("date")
	q.Observatory = c.Query("observatory")
	q.Update = c.QueryBool("update", false)
	return validate.Struct(q)
}

func (q *almanacQuery) toQuery() skycalc.AlmanacQuery {
	return skycalc.AlmanacQuery{
		RA:          *q.RA,
		Dec:         *q.Dec,
		Date:        q.Date,
		MJD:         q.MJD,
		Observatory: q.Observatory,
	}
}

func queryFloat(c *fiber.Ctx, name string) (*float64, error) {
	s := c.Query(name)
	if s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, errors.New("invalid " + name + ": " + s)
	}
	return &f, nil
}

func (h *handlers) almanac(c *fiber.Ctx) error {
	var q almanacQuery
	if err := q.bind(c); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	result, report, err := session(c).GetAlmanacData(c.UserContext(), q.toQuery(), q.Update)
	if err != nil {
		return upstreamError(err)
	}

	resp := fiber.Map{"almanac": result}
	if q.Update {
		resp["report"] = report
		resp["params"] = session(c).Snapshot()
	}
	return c.JSON(resp)
}

func (h *handlers) spectrum(c *fiber.Ctx) error {
	rt, err := skycalc.ParseReturnType(c.Query("format"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	spec, err := session(c).GetSkySpectrum(c.UserContext(), rt)
	if err != nil {
		return upstreamError(err)
	}

	if rt == skycalc.ReturnFITS {
		c.Set(fiber.HeaderContentType, "application/fits")
		c.Set(fiber.HeaderContentDisposition, `attachment; filename="skytable.fits"`)
		return c.Send(spec.FITS)
	}
	return c.JSON(spec)
}

func paramsError(err error) error {
	switch {
	case errors.Is(err, params.ErrUnknownParameter):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, params.ErrTypeMismatch), errors.Is(err, params.ErrConstraintViolation):
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}

// upstreamError maps failures of the remote services. Anything not caused by
// the caller's input is reported as a bad gateway.
func upstreamError(err error) error {
	switch {
	case errors.Is(err, skycalc.ErrNoEpoch), errors.Is(err, skycalc.ErrInvalidDate):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, params.ErrUnknownParameter),
		errors.Is(err, params.ErrTypeMismatch),
		errors.Is(err, params.ErrConstraintViolation),
		errors.Is(err, providers.ErrValidation):
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.NewError(fiber.StatusGatewayTimeout, err.Error())
	default:
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	}
}
