package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/atharvakonge/portfolio-ai/internal/apperrors"
	"github.com/atharvakonge/portfolio-ai/internal/middleware"
	"github.com/atharvakonge/portfolio-ai/internal/models"
)

// PortfolioService is implemented by *portfolio.Service.
type PortfolioService interface {
	Create(ctx context.Context, userID string, req models.CreatePortfolioRequest) (*models.Portfolio, error)
	Get(ctx context.Context, userID, id string) (*models.Portfolio, error)
	List(ctx context.Context, userID string, limit, offset int) ([]models.Portfolio, error)
	Update(ctx context.Context, userID, id string, req models.UpdatePortfolioRequest) (*models.Portfolio, error)
	SetPositions(ctx context.Context, userID, id string, inputs []models.PositionInput) (*models.Portfolio, error)
	Delete(ctx context.Context, userID, id string) error
	Allocate(ctx context.Context, userID, id string, amount float64) (*models.AllocationPlan, error)
	Generate(ctx context.Context, userID string, req models.GenerateRequest) (*models.Portfolio, bool, error)
}

type PortfolioHandler struct {
	svc PortfolioService
}

func NewPortfolioHandler(svc PortfolioService) *PortfolioHandler {
	return &PortfolioHandler{svc: svc}
}

// Register mounts the portfolio routes on an authenticated group.
// generateLimit runs only in front of the generate endpoint.
func (h *PortfolioHandler) Register(rg *gin.RouterGroup, generateLimit gin.HandlerFunc) {
	p := rg.Group("/portfolios")
	p.POST("", h.Create)
	p.GET("", h.List)
	if generateLimit != nil {
		p.POST("/generate", generateLimit, h.Generate)
	} else {
		p.POST("/generate", h.Generate)
	}
	p.GET("/:id", h.Get)
	p.PATCH("/:id", h.Update)
	p.DELETE("/:id", h.Delete)
	p.PUT("/:id/positions", h.SetPositions)
	p.POST("/:id/allocate", h.Allocate)
}

// Create handles POST /api/portfolios
func (h *PortfolioHandler) Create(c *gin.Context) {
	var req models.CreatePortfolioRequest
	if !bindJSON(c, &req) {
		return
	}

	p, err := h.svc.Create(c.Request.Context(), middleware.UserID(c), req)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// List handles GET /api/portfolios?limit=&offset=
func (h *PortfolioHandler) List(c *gin.Context) {
	limit, ok := queryInt(c, "limit", 0)
	if !ok {
		return
	}
	offset, ok := queryInt(c, "offset", 0)
	if !ok {
		return
	}

	portfolios, err := h.svc.List(c.Request.Context(), middleware.UserID(c), limit, offset)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"portfolios": portfolios,
		"count":      len(portfolios),
	})
}

func (h *PortfolioHandler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	p, err := h.svc.Get(c.Request.Context(), middleware.UserID(c), id)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *PortfolioHandler) Update(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req models.UpdatePortfolioRequest
	if !bindJSON(c, &req) {
		return
	}

	p, err := h.svc.Update(c.Request.Context(), middleware.UserID(c), id, req)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *PortfolioHandler) SetPositions(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req models.SetPositionsRequest
	if !bindJSON(c, &req) {
		return
	}

	p, err := h.svc.SetPositions(c.Request.Context(), middleware.UserID(c), id, req.Positions)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *PortfolioHandler) Delete(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.svc.Delete(c.Request.Context(), middleware.UserID(c), id); err != nil {
		middleware.WriteError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *PortfolioHandler) Allocate(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req models.AllocateRequest
	if !bindJSON(c, &req) {
		return
	}

	plan, err := h.svc.Allocate(c.Request.Context(), middleware.UserID(c), id, req.Amount)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

// Generate handles POST /api/portfolios/generate. A saved portfolio is
// 201, an unsaved draft 200.
func (h *PortfolioHandler) Generate(c *gin.Context) {
	var req models.GenerateRequest
	if !bindJSON(c, &req) {
		return
	}

	p, saved, err := h.svc.Generate(c.Request.Context(), middleware.UserID(c), req)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}

	status := http.StatusOK
	if saved {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{
		"portfolio": p,
		"saved":     saved,
	})
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		middleware.WriteError(c, apperrors.New(apperrors.KindValidation, "malformed JSON body", err))
		return false
	}
	return true
}

func pathID(c *gin.Context) (string, bool) {
	raw := c.Param("id")
	id, err := uuid.Parse(raw)
	if err != nil {
		middleware.WriteError(c, apperrors.Validation("invalid portfolio id", map[string]string{"id": "must be a UUID"}))
		return "", false
	}
	return id.String(), true
}

func queryInt(c *gin.Context, key string, def int) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		middleware.WriteError(c, apperrors.Validation("invalid query parameter", map[string]string{key: "must be an integer"}))
		return 0, false
	}
	return n, true
}
