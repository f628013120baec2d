package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/oarkflow/cinefusion"
	"github.com/oarkflow/cinefusion/utils"
)

const (
	defaultDirectors = 50
	maxDirectors     = 200
	defaultMovies    = 20
	maxMovies        = 100
)

type handlers struct {
	engine  *cinefusion.Engine
	log     *zap.SugaredLogger
	started time.Time
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code"`
	Field     string `json:"field,omitempty"`
	Path      string `json:"path"`
}

type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	Total   int  `json:"total"`
	HasNext bool `json:"has_next"`
	HasPrev bool `json:"has_prev"`
}

type SearchResponse struct {
	RequestID       string              `json:"request_id"`
	Movies          []cinefusion.Record `json:"movies"`
	TotalCount      int                 `json:"total_count"`
	Query           cinefusion.Query    `json:"query"`
	Cached          bool                `json:"cached"`
	Strategy        string              `json:"strategy"`
	ExecutionTimeMS float64             `json:"execution_time_ms"`
	Pagination      Pagination          `json:"pagination"`
}

type SuggestionsResponse struct {
	Suggestions     []string `json:"suggestions"`
	Query           string   `json:"query"`
	ExecutionTimeMS float64  `json:"execution_time_ms"`
}

func milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func (h *handlers) fail(c *gin.Context, status int, code, detail, field string) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Detail:    detail,
		ErrorCode: code,
		Field:     field,
		Path:      c.Request.URL.Path,
	})
}

func (h *handlers) health(c *gin.Context) {
	st := h.engine.Stats()
	c.JSON(http.StatusOK, gin.H{
		"status":         "healthy",
		"timestamp":      time.Now().Format(time.RFC3339),
		"uptime_seconds": time.Since(h.started).Seconds(),
		"movies_loaded":  st.Records,
		"cache":          st.Cache,
		"performance":    st.Performance,
	})
}

func (h *handlers) suggestions(c *gin.Context) {
	start := time.Now()
	q := c.Query("q")
	if strings.TrimSpace(q) == "" {
		h.fail(c, http.StatusBadRequest, "VALIDATION_ERROR", "q is required", "q")
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			h.fail(c, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be an integer", "limit")
			return
		}
		limit = v
	}
	c.JSON(http.StatusOK, SuggestionsResponse{
		Suggestions:     h.engine.Suggest(q, limit),
		Query:           q,
		ExecutionTimeMS: milliseconds(time.Since(start)),
	})
}

// queryParams flattens URL values. Repeated genre parameters are merged.
func queryParams(c *gin.Context) map[string]string {
	values := c.Request.URL.Query()
	params := make(map[string]string, len(values))
	for key, vs := range values {
		if len(vs) == 0 {
			continue
		}
		if key == "genre" || key == "genres" {
			params["genres"] = strings.Join(append(utils.SplitList(params["genres"]), vs...), ",")
			continue
		}
		params[key] = vs[0]
	}
	return params
}

func (h *handlers) search(c *gin.Context) {
	res, err := h.engine.SearchParams(c.Request.Context(), queryParams(c), c.ClientIP())
	if !h.admitted(c, res, err) {
		return
	}
	c.JSON(http.StatusOK, SearchResponse{
		RequestID:       res.RequestID,
		Movies:          res.Records,
		TotalCount:      res.TotalCount,
		Query:           res.Query,
		Cached:          res.Cached,
		Strategy:        res.Strategy,
		ExecutionTimeMS: milliseconds(res.Took),
		Pagination: Pagination{
			Limit:   res.Limit,
			Offset:  res.Offset,
			Total:   res.TotalCount,
			HasNext: res.Offset+res.Limit < res.TotalCount,
			HasPrev: res.Offset > 0,
		},
	})
}

// admitted writes the rate-limit headers and reports whether res can be
// answered. Errors and rejections are written to c.
func (h *handlers) admitted(c *gin.Context, res *cinefusion.SearchResult, err error) bool {
	if err != nil {
		if errors.Is(err, cinefusion.ErrValidation) {
			h.validationError(c, err)
			return false
		}
		h.log.Errorw("search failed", "error", err)
		h.fail(c, http.StatusInternalServerError, "SEARCH_FAILED", "search failed", "")
		return false
	}
	c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	if res.ResetAt != nil {
		c.Header("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
	}
	if err := res.Err(); err != nil {
		h.log.Warnw("rate limit exceeded", "client_ip", c.ClientIP(), "path", c.Request.URL.Path)
		c.Header("Retry-After", strconv.Itoa(max(1, int(time.Until(*res.ResetAt).Seconds()+0.5))))
		h.fail(c, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", err.Error(), "")
		return false
	}
	return true
}

func (h *handlers) validationError(c *gin.Context, err error) {
	var ve *cinefusion.ValidationError
	field := ""
	if errors.As(err, &ve) {
		field = ve.Field
	}
	h.fail(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), field)
}

// movies lists the catalog page by page in the requested order.
func (h *handlers) movies(c *gin.Context) {
	q := cinefusion.Query{Limit: defaultMovies}
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > maxMovies {
			h.fail(c, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be between 1 and 100", "limit")
			return
		}
		q.Limit = v
	}
	if raw := c.Query("offset"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			h.fail(c, http.StatusBadRequest, "VALIDATION_ERROR", "offset must be a non-negative integer", "offset")
			return
		}
		q.Offset = v
	}
	var err error
	if q.Sort, err = cinefusion.ParseSortKey(c.Query("sort_by")); err != nil {
		h.validationError(c, err)
		return
	}
	if q.Order, err = cinefusion.ParseSortOrder(c.Query("sort_order")); err != nil {
		h.validationError(c, err)
		return
	}
	res, err := h.engine.Search(c.Request.Context(), q, c.ClientIP())
	if !h.admitted(c, res, err) {
		return
	}
	c.JSON(http.StatusOK, res.Records)
}

func (h *handlers) movie(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		h.fail(c, http.StatusBadRequest, "VALIDATION_ERROR", "id must be a non-negative integer", "id")
		return
	}
	r, ok := h.engine.Get(uint32(id))
	if !ok {
		h.fail(c, http.StatusNotFound, "NOT_FOUND", "movie not found", "")
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *handlers) genres(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"genres": h.engine.Genres()})
}

func (h *handlers) directors(c *gin.Context) {
	limit := defaultDirectors
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > maxDirectors {
			h.fail(c, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be between 1 and 200", "limit")
			return
		}
		limit = v
	}
	directors := h.engine.Directors(c.Query("search"), limit)
	if directors == nil {
		directors = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"directors": directors})
}

func (h *handlers) stats(c *gin.Context) {
	st := h.engine.Stats()
	body := gin.H{
		"engine":         st,
		"uptime_seconds": time.Since(h.started).Seconds(),
	}
	if lo, hi, ok := h.engine.YearRange(); ok {
		body["year_range"] = gin.H{"min": lo, "max": hi}
	}
	c.JSON(http.StatusOK, body)
}

func (h *handlers) clearCache(c *gin.Context) {
	h.engine.ClearCache()
	c.JSON(http.StatusOK, gin.H{
		"message":   "cache cleared",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (h *handlers) cacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Stats().Cache)
}

func (h *handlers) performance(c *gin.Context) {
	st := h.engine.Stats()
	c.JSON(http.StatusOK, gin.H{
		"performance":    st.Performance,
		"cache":          st.Cache,
		"rate_limiter":   st.RateLimiter,
		"uptime_seconds": time.Since(h.started).Seconds(),
	})
}
