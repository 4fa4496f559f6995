package handler

import (
	"log/slog"
	"net/http"

	"github.com/choraleia/daydigest/pkg/models"
	"github.com/choraleia/daydigest/pkg/service"
	"github.com/gin-gonic/gin"
)

// DialogueHandler provides HTTP handlers for recording and reading dialogues
type DialogueHandler struct {
	Svc    *service.DialogueService
	Logger *slog.Logger
}

func NewDialogueHandler(svc *service.DialogueService, logger *slog.Logger) *DialogueHandler {
	return &DialogueHandler{Svc: svc, Logger: logger}
}

// List handles listing every recorded message
func (h *DialogueHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, models.OK(h.Svc.ListAll()))
}

// ListByDate handles listing messages of one UTC day
func (h *DialogueHandler) ListByDate(c *gin.Context) {
	date := c.Param("date")
	if !service.ValidDate(date) {
		c.JSON(http.StatusBadRequest, models.Fail(service.ErrInvalidDate.Error()))
		return
	}
	c.JSON(http.StatusOK, models.OK(h.Svc.ListByDate(date)))
}

func (h *DialogueHandler) ListByConversation(c *gin.Context) {
	c.JSON(http.StatusOK, models.OK(h.Svc.ListByConversation(c.Param("id"))))
}

func (h *DialogueHandler) ListByRepository(c *gin.Context) {
	c.JSON(http.StatusOK, models.OK(h.Svc.ListByRepository(c.Param("name"))))
}

// Create handles recording a new message
func (h *DialogueHandler) Create(c *gin.Context) {
	var req models.CreateDialogueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.Fail("Invalid request: "+err.Error()))
		return
	}
	if msg := req.Validate(); msg != "" {
		c.JSON(http.StatusBadRequest, models.Fail(msg))
		return
	}
	created := h.Svc.Append(req)
	c.JSON(http.StatusOK, models.Response{Success: true, Data: created, Message: "Dialogue recorded"})
}

func (h *DialogueHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, models.OK(h.Svc.Stats()))
}

func (h *DialogueHandler) Conversations(c *gin.Context) {
	c.JSON(http.StatusOK, models.OK(h.Svc.Conversations()))
}

func (h *DialogueHandler) Repositories(c *gin.Context) {
	c.JSON(http.StatusOK, models.OK(h.Svc.Repositories()))
}
