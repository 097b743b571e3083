// Package api serves curves and rate equivalences over HTTP and WebSocket.
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"fairrate/internal/domain"
	"fairrate/internal/logger"
	"fairrate/internal/observability"
	"fairrate/internal/query"
	"fairrate/internal/reporting"
	"fairrate/internal/stats"
)

const (
	curvesBasePath = "/api/v1/curves"
	latestDate     = "latest"
)

var errBadRequest = errors.New("bad request")

// Handler routes API requests to the query service.
type Handler struct {
	router   *gin.Engine
	svc      *query.Service
	cache    Cache
	cacheTTL time.Duration
	metrics  *observability.Metrics
	log      *logger.Entry
	upgrader websocket.Upgrader
}

// NewHandler creates the API handler. cache may be nil.
func NewHandler(svc *query.Service, cache Cache, cacheTTL time.Duration, opts ...Option) *Handler {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	h := &Handler{
		router:   router,
		svc:      svc,
		cache:    cache,
		cacheTTL: cacheTTL,
		log:      logger.Discard().WithComponent("api"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	h.router.Use(h.requestLogger())
	h.registerRoutes()
	return h
}

// Option configures Handler.
type Option func(*Handler)

// WithMetrics records cache hits and serves /metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(h *Handler) {
		h.metrics = m
	}
}

// WithLogger sets the request logger.
func WithLogger(log *logger.Log) Option {
	return func(h *Handler) {
		h.log = log.WithComponent("api")
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	if h.metrics != nil {
		h.router.GET("/metrics", gin.WrapH(observability.Handler()))
	}

	curves := h.router.Group(curvesBasePath)
	if h.cache != nil && h.cacheTTL > 0 {
		curves.Use(h.cacheMiddleware())
	}
	{
		curves.GET("", h.listDates)
		curves.GET("/:date", h.getCurve)
		curves.GET("/:date/points/:day", h.getPoint)
		curves.GET("/:date/summary", h.getSummary)
	}

	h.router.POST("/api/v1/equivalence", h.postEquivalence)
	h.router.GET("/ws/equivalence", h.serveWS)
}

type datesResponse struct {
	Dates  []civil.Date `json:"dates"`
	Latest *civil.Date  `json:"latest,omitempty"`
}

func (h *Handler) listDates(c *gin.Context) {
	dates, err := h.svc.ListAvailableDates(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	resp := datesResponse{Dates: dates}
	if resp.Dates == nil {
		resp.Dates = []civil.Date{}
	}
	if len(dates) > 0 {
		resp.Latest = &dates[0]
	}
	c.JSON(http.StatusOK, resp)
}

type vertexResponse struct {
	Day         int     `json:"day"`
	NominalRate float64 `json:"nominal_rate"`
	RealRate    float64 `json:"real_rate"`
}

type curveResponse struct {
	ReferenceDate civil.Date          `json:"reference_date"`
	Method        string              `json:"method"`
	Source        string              `json:"source,omitempty"`
	BuildID       string              `json:"build_id,omitempty"`
	BuiltAt       time.Time           `json:"built_at"`
	Fingerprint   string              `json:"fingerprint,omitempty"`
	MaxDay        int                 `json:"max_day"`
	Step          int                 `json:"step"`
	Vertices      []vertexResponse    `json:"vertices,omitempty"`
	Points        []domain.CurvePoint `json:"points"`
}

func (h *Handler) getCurve(c *gin.Context) {
	date, err := parseDateParam(c.Param("date"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	step, err := parseStep(c.Query("step"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	crv, err := h.svc.Load(c.Request.Context(), date)
	if err != nil {
		h.writeError(c, err)
		return
	}

	if strings.EqualFold(c.Query("format"), "csv") {
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=curve_%s.csv", crv.ReferenceDate))
		c.Data(http.StatusOK, "text/csv; charset=utf-8", []byte(reporting.RenderCurveCSV(crv, step)))
		return
	}

	resp := curveResponse{
		ReferenceDate: crv.ReferenceDate,
		Method:        crv.Method.String(),
		Source:        crv.Source,
		BuildID:       crv.BuildID,
		BuiltAt:       crv.BuiltAt,
		Fingerprint:   crv.Fingerprint,
		MaxDay:        crv.MaxDay(),
		Step:          step,
		Points:        crv.Points(step),
	}
	for _, v := range crv.Vertices {
		resp.Vertices = append(resp.Vertices, vertexResponse{Day: v.Day, NominalRate: v.NominalRate, RealRate: v.RealRate})
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) getSummary(c *gin.Context) {
	date, err := parseDateParam(c.Param("date"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	crv, err := h.svc.Load(c.Request.Context(), date)
	if err != nil {
		h.writeError(c, err)
		return
	}
	summary, err := stats.Summarize(crv)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

type pointResponse struct {
	ReferenceDate civil.Date        `json:"reference_date"`
	RequestedDay  int               `json:"requested_day"`
	Point         domain.CurvePoint `json:"point"`
}

func (h *Handler) getPoint(c *gin.Context) {
	date, err := parseDateParam(c.Param("date"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	day, err := strconv.Atoi(c.Param("day"))
	if err != nil || day < 1 {
		h.writeError(c, fmt.Errorf("%w: day must be a positive integer, got %q", errBadRequest, c.Param("day")))
		return
	}

	refDate, p, err := h.svc.Point(c.Request.Context(), date, day)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, pointResponse{ReferenceDate: refDate, RequestedDay: day, Point: p})
}

// EquivalenceRequest is the body of POST /api/v1/equivalence and of each
// WebSocket message. Date is optional; empty or "latest" uses the newest curve.
type EquivalenceRequest struct {
	ID         string  `json:"id,omitempty"`
	Date       string  `json:"date,omitempty"`
	Indexation string  `json:"indexation"`
	TenorValue float64 `json:"tenor_value"`
	TenorUnit  string  `json:"tenor_unit"`
	Rate       float64 `json:"rate"`
}

func (r EquivalenceRequest) parse() (civil.Date, domain.Quote, error) {
	date, err := parseDateParam(r.Date)
	if err != nil {
		return civil.Date{}, domain.Quote{}, err
	}
	ix, err := domain.ParseIndexation(r.Indexation)
	if err != nil {
		return civil.Date{}, domain.Quote{}, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	unit := domain.TenorBusinessDays
	if r.TenorUnit != "" {
		if unit, err = domain.ParseTenorUnit(r.TenorUnit); err != nil {
			return civil.Date{}, domain.Quote{}, fmt.Errorf("%w: %v", errBadRequest, err)
		}
	}
	return date, domain.Quote{Indexation: ix, TenorValue: r.TenorValue, TenorUnit: unit, Rate: r.Rate}, nil
}

func (h *Handler) postEquivalence(c *gin.Context) {
	var req EquivalenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	date, q, err := req.parse()
	if err != nil {
		h.writeError(c, err)
		return
	}
	answer, err := h.svc.Compute(c.Request.Context(), date, q)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, answer)
}

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// statusFor maps an error to its HTTP status and error code.
func statusFor(err error) (int, string) {
	if errors.Is(err, errBadRequest) {
		return http.StatusBadRequest, "bad_request"
	}
	switch outcome := query.Outcome(err); outcome {
	case query.OutcomeNotFound:
		return http.StatusNotFound, outcome
	case query.OutcomeInvalidBenchmark, query.OutcomeInvalidTenor:
		return http.StatusUnprocessableEntity, outcome
	case query.OutcomeInvalidQuote:
		return http.StatusBadRequest, outcome
	}
	return http.StatusInternalServerError, query.OutcomeError
}

func (h *Handler) writeError(c *gin.Context, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.WithError(err).WithField("path", c.Request.URL.Path).Error("request failed")
		c.JSON(status, ErrorResponse{Error: "internal error", Code: code})
		return
	}
	c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
}

func parseDateParam(s string) (civil.Date, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, latestDate) {
		return civil.Date{}, nil
	}
	d, err := civil.ParseDate(s)
	if err != nil {
		return civil.Date{}, fmt.Errorf("%w: date must be YYYY-MM-DD or %q, got %q", errBadRequest, latestDate, s)
	}
	return d, nil
}

func parseStep(s string) (int, error) {
	if s == "" {
		return 1, nil
	}
	step, err := strconv.Atoi(s)
	if err != nil || step < 1 {
		return 0, fmt.Errorf("%w: step must be a positive integer, got %q", errBadRequest, s)
	}
	return step, nil
}

// cacheMiddleware serves and stores successful GET responses for explicit
// dates older than the most recent stored curve. The most recent date is
// the one a rebuild replaces, so it is always read from the repository.
func (h *Handler) cacheMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		date := c.Param("date")
		if c.Request.Method != http.MethodGet || date == "" || strings.EqualFold(date, latestDate) {
			c.Next()
			return
		}
		ctx := c.Request.Context()
		if !h.cacheable(c, date) {
			c.Next()
			return
		}

		key := h.cacheKey(c)
		if entry, ok := h.cacheLookup(c, key); ok {
			h.metrics.RecordCache(true)
			if entry.Disposition != "" {
				c.Header("Content-Disposition", entry.Disposition)
			}
			c.Data(http.StatusOK, entry.ContentType, entry.Body)
			c.Abort()
			return
		}
		h.metrics.RecordCache(false)

		recorder := &responseRecorder{
			ResponseWriter: c.Writer,
			status:         http.StatusOK,
			body:           &bytes.Buffer{},
		}
		c.Writer = recorder

		c.Next()

		if recorder.status != http.StatusOK || recorder.body.Len() == 0 {
			return
		}
		payload, err := json.Marshal(cachedResponse{
			ContentType: recorder.Header().Get("Content-Type"),
			Disposition: recorder.Header().Get("Content-Disposition"),
			Body:        recorder.body.Bytes(),
		})
		if err != nil {
			h.log.WithError(err).Warn("encode cache entry failed")
			return
		}
		if err := h.cache.Set(ctx, key, payload, h.cacheTTL); err != nil {
			h.log.WithError(err).Warn("cache store failed")
		}
	}
}

// cachedResponse is what the cache holds for one GET response.
type cachedResponse struct {
	ContentType string `json:"content_type"`
	Disposition string `json:"disposition,omitempty"`
	Body        []byte `json:"body"`
}

// cacheable reports whether date names a stored curve older than the
// most recent one. Unparseable dates and lookup failures are not cached.
func (h *Handler) cacheable(c *gin.Context, date string) bool {
	d, err := parseDateParam(date)
	if err != nil || d.IsZero() {
		return false
	}
	latest, err := h.svc.Latest(c.Request.Context())
	if err != nil {
		return false
	}
	return d.Before(latest)
}

func (h *Handler) cacheLookup(c *gin.Context, key string) (cachedResponse, bool) {
	var entry cachedResponse
	raw, err := h.cache.Get(c.Request.Context(), key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			h.log.WithError(err).Warn("cache lookup failed")
		}
		return entry, false
	}
	if err := json.Unmarshal(raw, &entry); err != nil || entry.ContentType == "" {
		h.log.WithField("key", key).Warn("discarding unreadable cache entry")
		return entry, false
	}
	return entry, true
}

type responseRecorder struct {
	gin.ResponseWriter
	body   *bytes.Buffer
	status int
}

func (r *responseRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(data []byte) (int, error) {
	if len(data) > 0 {
		r.body.Write(data)
	}
	return r.ResponseWriter.Write(data)
}

func (h *Handler) cacheKey(c *gin.Context) string {
	return fmt.Sprintf("cache:%s:%s?%s", c.Request.Method, c.Request.URL.Path, c.Request.URL.RawQuery)
}

func (h *Handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.log.WithFields(logger.Fields{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status":      c.Writer.Status(),
			"duration_ms": float64(time.Since(start).Nanoseconds()) / 1e6,
		}).Debug("request served")
	}
}
