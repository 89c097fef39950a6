package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/casebook/internal/casebook"
	"github.com/mesh-intelligence/casebook/internal/exchange"
	"github.com/mesh-intelligence/casebook/internal/view"
	"github.com/mesh-intelligence/casebook/pkg/types"
)

// TestCaseHandler serves the test case catalog.
type TestCaseHandler struct {
	log *zap.SugaredLogger
	svc *casebook.Service
}

func NewTestCaseHandler(log *zap.SugaredLogger, svc *casebook.Service) *TestCaseHandler {
	return &TestCaseHandler{
		log: log.With("handler", "TestCaseHandler"),
		svc: svc,
	}
}

// GET /api/testcases?search=&tag=&status=&iteration=&failingFirst=
func (h *TestCaseHandler) List(c *gin.Context) {
	failingFirst := false
	if raw := c.Query("failingFirst"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_query", err)
			return
		}
		failingFirst = v
	}
	criteria := view.Criteria{
		Query:     c.Query("search"),
		Tags:      c.QueryArray("tag"),
		Status:    c.Query("status"),
		Iteration: c.Query("iteration"),
	}
	res, err := h.svc.View(c.Request.Context(), criteria, view.Options{FailingFirst: failingFirst})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	RespondOK(c, res)
}

// GET /api/testcases/:id
func (h *TestCaseHandler) Get(c *gin.Context) {
	tc, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	RespondOK(c, tc)
}

// POST /api/testcases
func (h *TestCaseHandler) Create(c *gin.Context) {
	var draft types.TestCase
	if err := c.ShouldBindJSON(&draft); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	draft.ID = ""
	saved, err := h.svc.Save(c.Request.Context(), draft)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, saved)
}

// PUT /api/testcases/:id replaces the whole record.
func (h *TestCaseHandler) Replace(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	if _, err := h.svc.Get(ctx, id); err != nil {
		respondServiceError(c, err)
		return
	}
	var draft types.TestCase
	if err := c.ShouldBindJSON(&draft); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	draft.ID = id
	saved, err := h.svc.Save(ctx, draft)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	RespondOK(c, saved)
}

// DELETE /api/testcases/:id
func (h *TestCaseHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DELETE /api/testcases
func (h *TestCaseHandler) Clear(c *gin.Context) {
	if err := h.svc.ClearAll(c.Request.Context()); err != nil {
		respondServiceError(c, err)
		return
	}
	h.log.Infow("cleared via api", "remote", c.ClientIP())
	c.Status(http.StatusNoContent)
}

// POST /api/import?globalTag=
func (h *TestCaseHandler) Import(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	res, err := h.svc.ImportBatch(c.Request.Context(), body, c.QueryArray("globalTag"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	RespondOK(c, res)
}

// GET /api/export?format=json|jsonl
func (h *TestCaseHandler) Export(c *gin.Context) {
	format := c.DefaultQuery("format", exchange.FormatJSON)
	if format != exchange.FormatJSON && format != exchange.FormatJSONL {
		RespondError(c, http.StatusBadRequest, "invalid_query", fmt.Errorf("unknown export format %q", format))
		return
	}
	data, err := h.svc.ExportAs(c.Request.Context(), format)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	contentType := "application/json"
	if format == exchange.FormatJSONL {
		contentType = "application/x-ndjson"
	}
	c.Header("Content-Disposition", `attachment; filename="casebook.`+format+`"`)
	c.Data(http.StatusOK, contentType, data)
}

// GET /api/facets
func (h *TestCaseHandler) Facets(c *gin.Context) {
	facets, err := h.svc.Facets(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	RespondOK(c, facets)
}
