package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"AltPull/internal/domain/errs"
	"AltPull/internal/domain/models"
	drepo "AltPull/internal/domain/repository"
	"AltPull/internal/service/cache"
	"AltPull/internal/services/alignment"
	"AltPull/internal/usecase"
	xhttp "AltPull/pkg/http"
	xlogger "AltPull/pkg/logger"
	"AltPull/pkg/util"
)

// FeatureAligner produces an aligned frame for several source specs.
type FeatureAligner interface {
	Align(ctx context.Context, specs []usecase.SourceSpec, start, end *time.Time, opts alignment.AlignOptions) (*alignment.Frame, error)
}

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// ETLEchoHandler serves run triggers, run keys, run history, aligned features and health.
type ETLEchoHandler struct {
	logger  *xlogger.Logger
	runner  usecase.RunExecutor
	catalog drepo.RunCatalog
	aligner FeatureAligner
	checks  map[string]HealthCheck

	respCache cache.BytesCache
	cacheTTL  time.Duration
}

func NewETLEchoHandler(logger *xlogger.Logger, runner usecase.RunExecutor, catalog drepo.RunCatalog, aligner FeatureAligner, checks map[string]HealthCheck) *ETLEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &ETLEchoHandler{logger: logger, runner: runner, catalog: catalog, aligner: aligner, checks: checks}
}

// SetResponseCache enables caching of aligned feature responses for ttl.
func (h *ETLEchoHandler) SetResponseCache(c cache.BytesCache, ttl time.Duration) {
	h.respCache = c
	h.cacheTTL = ttl
}

func (h *ETLEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api")
	g.POST("/etl/runs", h.TriggerRun)
	g.GET("/etl/runs", h.RunHistory)
	g.GET("/etl/runkey", h.RunKey)
	g.GET("/features/aligned", h.AlignedFeatures)
}

func (h *ETLEchoHandler) TriggerRun(c echo.Context) error {
	req := &models.TriggerRunRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	runReq, err := usecase.RunRequestFromTrigger(*req)
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	}

	res, err := h.runner.Run(c.Request().Context(), runReq)
	if err != nil {
		h.logger.Error("etl run error", xlogger.String("source", runReq.Source), xlogger.String("symbol", runReq.Symbol), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, appError(err))
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *ETLEchoHandler) RunKey(c echo.Context) error {
	req := &models.RunKeyRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	start, end, aerr := parseWindow(req.Start, req.End)
	if aerr != nil {
		return xhttp.AppErrorResponse(c, aerr)
	}
	key := usecase.BuildRunKey(models.RunKeyInputs{Source: req.Source, Symbol: req.Symbol, Start: start, End: end})
	return xhttp.SuccessResponse(c, map[string]string{"run_key": key})
}

func (h *ETLEchoHandler) RunHistory(c echo.Context) error {
	req := &models.RunHistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if h.catalog == nil {
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("run history is not configured"))
	}
	rows, err := h.catalog.List(c.Request().Context(), req.Source, req.Symbol, req.Limit)
	if err != nil {
		h.logger.Error("run history error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("run history unavailable").WithError(err))
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

// AlignedFeatures fetches every requested source and returns one aligned frame.
func (h *ETLEchoHandler) AlignedFeatures(c echo.Context) error {
	req := &models.AlignedFeaturesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	specs, err := usecase.ParseSourceSpecs(req.Sources)
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()).WithParam("field", "sources"))
	}
	start, end, aerr := parseWindow(req.Start, req.End)
	if aerr != nil {
		return xhttp.AppErrorResponse(c, aerr)
	}
	opts, err := alignOptions(req)
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	}

	ctx := c.Request().Context()
	key := alignedCacheKey(specs, start, end, opts)
	if h.respCache != nil {
		if b, ok, cerr := h.respCache.GetBytes(ctx, key); cerr != nil {
			h.logger.Warn("aligned cache read", xlogger.Error(cerr))
		} else if ok {
			c.Response().Header().Set("X-Cache", "HIT")
			return h.writeAligned(c, json.RawMessage(b))
		}
	}

	frame, err := h.aligner.Align(ctx, specs, start, end, opts)
	if err != nil {
		h.logger.Error("aligned features error", xlogger.String("sources", req.Sources), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, appError(err))
	}
	payload, err := json.Marshal(map[string]interface{}{
		"frequency": opts.Frequency,
		"columns":   frame.Names,
		"count":     frame.Len(),
		"rows":      frame.Records(),
	})
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.InternalError("encode aligned frame").WithError(err))
	}
	if h.respCache != nil {
		if cerr := h.respCache.SetBytes(ctx, key, payload, h.cacheTTL); cerr != nil {
			h.logger.Warn("aligned cache write", xlogger.Error(cerr))
		}
		c.Response().Header().Set("X-Cache", "MISS")
	}
	return h.writeAligned(c, json.RawMessage(payload))
}

func (h *ETLEchoHandler) writeAligned(c echo.Context, payload json.RawMessage) error {
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, payload)
}

func unixNano(t *time.Time) string {
	if t == nil {
		return ""
	}
	return strconv.FormatInt(t.UnixNano(), 10)
}

func alignedCacheKey(specs []usecase.SourceSpec, start, end *time.Time, opts alignment.AlignOptions) string {
	var b strings.Builder
	b.WriteString("aligned:")
	for i, s := range specs {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s.Source + ":" + s.Symbol)
	}
	for _, part := range []string{
		unixNano(start), unixNano(end),
		strings.ToUpper(opts.Frequency), string(opts.Join), string(opts.Aggregation),
		string(opts.Fill), strconv.Itoa(opts.FillLimit),
	} {
		b.WriteByte('|')
		b.WriteString(part)
	}
	return b.String()
}

func (h *ETLEchoHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	results := make(map[string]string, len(names))
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}
	return xhttp.DataResponse(c, status, map[string]interface{}{"checks": results})
}

func parseWindow(rawStart, rawEnd string) (*time.Time, *time.Time, *xhttp.AppError) {
	start, ok := util.ParseTimePtr(rawStart)
	if !ok {
		return nil, nil, xhttp.BadRequestErrorf("invalid start %q", rawStart).WithParam("field", "start")
	}
	end, ok := util.ParseTimePtr(rawEnd)
	if !ok {
		return nil, nil, xhttp.BadRequestErrorf("invalid end %q", rawEnd).WithParam("field", "end")
	}
	if start != nil && end != nil && end.Before(*start) {
		return nil, nil, xhttp.BadRequestError("end must not be before start")
	}
	return start, end, nil
}

func alignOptions(req *models.AlignedFeaturesRequest) (alignment.AlignOptions, error) {
	if _, err := alignment.ParseFrequency(req.Freq); err != nil {
		return alignment.AlignOptions{}, err
	}
	join, err := alignment.ParseJoin(req.Join)
	if err != nil {
		return alignment.AlignOptions{}, err
	}
	agg, err := alignment.ParseAggregation(req.Agg)
	if err != nil {
		return alignment.AlignOptions{}, err
	}
	fill, err := alignment.ParseFillMethod(req.Fill)
	if err != nil {
		return alignment.AlignOptions{}, err
	}
	return alignment.AlignOptions{Frequency: req.Freq, Join: join, Aggregation: agg, Fill: fill, FillLimit: req.FillLimit}, nil
}

// appError maps domain failures to HTTP statuses.
func appError(err error) *xhttp.AppError {
	var runErr *usecase.RunError
	if errors.As(err, &runErr) && runErr.Validation != nil {
		return xhttp.UnprocessableError("schema validation failed").
			WithParam("run_key", runErr.RunKey).
			WithParam("errors", runErr.Validation.Errors).
			WithError(err)
	}
	if errors.Is(err, alignment.ErrTooManyBins) {
		return xhttp.BadRequestError(err.Error()).WithError(err)
	}
	if errors.Is(err, usecase.ErrRunInProgress) {
		return xhttp.ConflictError("run already in progress").WithError(err)
	}
	switch errs.KindOf(err) {
	case errs.KindValidation, errs.KindConfig:
		return xhttp.BadRequestError(err.Error()).WithError(err)
	case errs.KindCircuitOpen, errs.KindRateLimited:
		return xhttp.ServiceUnavailableError(err.Error()).WithError(err)
	case errs.KindNetwork, errs.KindTimeout, errs.KindProviderResponse, errs.KindAuth:
		return xhttp.BadGatewayError(err.Error()).WithError(err)
	default:
		return xhttp.InternalError("internal error").WithError(err)
	}
}
