package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/choraleia/daydigest/pkg/db"
	"github.com/choraleia/daydigest/pkg/models"
	"github.com/choraleia/daydigest/pkg/service"
	"github.com/gin-gonic/gin"
)

// SummaryHandler provides HTTP handlers for daily summaries and analysis runs
type SummaryHandler struct {
	Summaries *service.SummaryStore
	Analyzer  *service.AnalyzerService
	History   *service.RunHistoryService
	Logger    *slog.Logger
}

func NewSummaryHandler(summaries *service.SummaryStore, analyzer *service.AnalyzerService, history *service.RunHistoryService, logger *slog.Logger) *SummaryHandler {
	return &SummaryHandler{Summaries: summaries, Analyzer: analyzer, History: history, Logger: logger}
}

// AnalyzeResult is returned by the manual analyze route.
type AnalyzeResult struct {
	Date    string          `json:"date"`
	Outcome service.Outcome `json:"outcome"`
}

// List handles listing dates that have a summary, newest first
func (h *SummaryHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, models.OK(h.Summaries.List()))
}

// Get handles reading one summary document
func (h *SummaryHandler) Get(c *gin.Context) {
	date := c.Param("date")
	if !service.ValidDate(date) {
		c.JSON(http.StatusBadRequest, models.Fail(service.ErrInvalidDate.Error()))
		return
	}
	content, ok := h.Summaries.Get(date)
	if !ok {
		c.JSON(http.StatusNotFound, models.Fail("Summary not found"))
		return
	}
	c.JSON(http.StatusOK, models.OK(content))
}

// Analyze handles a manual summarize request; an existing summary is overwritten
func (h *SummaryHandler) Analyze(c *gin.Context) {
	date := c.Param("date")
	if !service.ValidDate(date) {
		c.JSON(http.StatusBadRequest, models.Fail(service.ErrInvalidDate.Error()))
		return
	}
	outcome, err := h.Analyzer.SummarizeDate(c.Request.Context(), date, db.TriggerManual)
	if err != nil {
		h.Logger.Error("Manual analysis failed", "date", date, "error", err)
		c.JSON(http.StatusInternalServerError, models.Fail(err.Error()))
		return
	}
	msg := fmt.Sprintf("Analyzed dialogues of %s", date)
	if outcome == service.OutcomeSkipped {
		msg = fmt.Sprintf("No dialogues recorded on %s", date)
	}
	c.JSON(http.StatusOK, models.Response{
		Success: true,
		Data:    AnalyzeResult{Date: date, Outcome: outcome},
		Message: msg,
	})
}

// AnalyzeWithCursor stores a summary produced by an external tool verbatim
func (h *SummaryHandler) AnalyzeWithCursor(c *gin.Context) {
	date := c.Param("date")
	var req models.AnalyzeWithCursorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.Fail("Invalid request: "+err.Error()))
		return
	}
	if err := h.Analyzer.StoreExternal(date, req.Summary); err != nil {
		if service.IsValidationError(err) {
			c.JSON(http.StatusBadRequest, models.Fail(err.Error()))
			return
		}
		h.Logger.Error("Failed to store external summary", "date", date, "error", err)
		c.JSON(http.StatusInternalServerError, models.Fail(err.Error()))
		return
	}
	c.JSON(http.StatusOK, models.Response{Success: true, Message: fmt.Sprintf("Summary for %s saved", date)})
}

// Runs handles listing recent analysis attempts
func (h *SummaryHandler) Runs(c *gin.Context) {
	date := c.Query("date")
	if date != "" && !service.ValidDate(date) {
		c.JSON(http.StatusBadRequest, models.Fail(service.ErrInvalidDate.Error()))
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	runs, err := h.History.List(date, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.Fail(err.Error()))
		return
	}
	c.JSON(http.StatusOK, models.OK(runs))
}
