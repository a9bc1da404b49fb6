package rest

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/zlnvch/garden/logging"
	"github.com/zlnvch/garden/models"
	"github.com/zlnvch/garden/service"
	"github.com/zlnvch/garden/store"
)

type Handler struct {
	Service       *service.Service
	MaxUploadSize int64
}

func NewHandler(svc *service.Service, maxUploadSize int64) *Handler {
	return &Handler{Service: svc, MaxUploadSize: maxUploadSize}
}

type errorResponse struct {
	Error string `json:"error"`
}

type quotaResponse struct {
	Error        string `json:"error"`
	Message      string `json:"message"`
	RateLimited  bool   `json:"rateLimited"`
	CurrentCount int    `json:"currentCount"`
}

// writeError maps service errors onto HTTP statuses. Only the flower quota
// response carries rateLimited, which clients treat as a hard stop.
func writeError(c *gin.Context, err error) {
	if qe, ok := service.IsQuotaError(err); ok {
		c.JSON(http.StatusTooManyRequests, quotaResponse{
			Error:        "Rate limit exceeded",
			Message:      service.QuotaMessage,
			RateLimited:  true,
			CurrentCount: qe.CurrentCount,
		})
		return
	}

	switch {
	case errors.Is(err, service.ErrInvalidCategory),
		errors.Is(err, service.ErrInvalidProbability),
		errors.Is(err, service.ErrInvalidImage):
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, service.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, errorResponse{Error: "Too many requests"})
	case errors.Is(err, service.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
	case errors.Is(err, store.ErrItemNotFound):
		c.JSON(http.StatusNotFound, errorResponse{Error: "not found"})
	case errors.Is(err, service.ErrClassificationFailed):
		c.JSON(http.StatusBadGateway, errorResponse{Error: "Classification failed"})
	case errors.Is(err, service.ErrPersistenceFailed):
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "Failed to save image"})
	default:
		logging.Logger.Error("unhandled request error", zap.String("path", c.Request.URL.Path), zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func pageParam(c *gin.Context) int {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		return 1
	}
	return page
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type classifyRequest struct {
	ImageData string `json:"imageData" binding:"required"`
}

type classifyResponse struct {
	IsFlower            bool               `json:"isFlower"`
	FlowerProbability   float64            `json:"flowerProbability"`
	IsEggplant          bool               `json:"isEggplant"`
	EggplantProbability float64            `json:"eggplantProbability"`
	Verdict             string             `json:"verdict"`
	Probabilities       map[string]float64 `json:"probabilities"`
	Identity            string             `json:"identity"`
}

func (h *Handler) Classify(c *gin.Context) {
	var req classifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	res, err := h.Service.ClassifyDrawing(c.Request.Context(), identityFrom(c), req.ImageData)
	if err != nil {
		writeError(c, err)
		return
	}

	r := res.Result
	c.JSON(http.StatusOK, classifyResponse{
		IsFlower:            r.IsFlower(),
		FlowerProbability:   r.FlowerProbability(),
		IsEggplant:          r.IsEggplant(),
		EggplantProbability: r.EggplantProbability(),
		Verdict:             r.Verdict().String(),
		Probabilities:       r.Probabilities(),
		Identity:            res.Identity,
	})
}

type submitResponse struct {
	Id  string `json:"id"`
	URL string `json:"url"`
}

func (h *Handler) Submit(c *gin.Context) {
	if h.MaxUploadSize > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxUploadSize)
	}

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "No file uploaded"})
		return
	}
	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "No file uploaded"})
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "failed to read file"})
		return
	}

	probability, err := strconv.ParseFloat(c.PostForm("probability"), 64)
	if err != nil {
		writeError(c, service.ErrInvalidProbability)
		return
	}

	sub, err := h.Service.SubmitDrawing(c.Request.Context(), service.SubmitParams{
		Identity:    identityFrom(c),
		PlantType:   c.PostForm("plantType"),
		Probability: probability,
		Image:       data,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, submitResponse{Id: sub.Id, URL: sub.ImageURL})
}

func (h *Handler) Gallery(c *gin.Context) {
	page, err := h.Service.Gallery(c.Request.Context(), c.Param("category"), pageParam(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) Garden(c *gin.Context) {
	items, err := h.Service.Garden(c.Request.Context(), c.Param("category"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.Service.Stats(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

type loginRequest struct {
	Provider string `json:"provider" binding:"required"`
	Code     string `json:"code" binding:"required"`
}

type loginResponse struct {
	Username string `json:"username"`
	Id       string `json:"id"`
	Provider string `json:"provider"`
	Token    string `json:"token"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	moderator, token, err := h.Service.Login(c.Request.Context(), req.Provider, req.Code)
	if err != nil {
		logging.Logger.Warn("login failed", zap.String("provider", req.Provider), zap.Error(err))
		if errors.Is(err, service.ErrUnauthorized) {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "login failed"})
		return
	}

	c.JSON(http.StatusOK, loginResponse{
		Username: moderator.Username,
		Id:       moderator.Id,
		Provider: moderator.Provider,
		Token:    token,
	})
}

func moderatorFrom(c *gin.Context) models.Moderator {
	m, _ := c.MustGet(moderatorKey).(models.Moderator)
	return m
}

func (h *Handler) Me(c *gin.Context) {
	m := moderatorFrom(c)
	c.JSON(http.StatusOK, gin.H{"id": m.Id, "username": m.Username, "provider": m.Provider})
}

func (h *Handler) ModerationQueue(c *gin.Context) {
	page, err := h.Service.ModerationQueue(c.Request.Context(), c.Param("category"), pageParam(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) Flag(c *gin.Context) {
	sub, err := h.Service.FlagSubmission(c.Request.Context(), moderatorFrom(c), c.Param("category"), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (h *Handler) Orphans(c *gin.Context) {
	orphans, err := h.Service.Orphans(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": orphans})
}

// Register mounts the REST routes on r.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/health", h.Health)

	api := r.Group("/api")
	{
		api.POST("/classify", h.Classify)
		api.POST("/submissions", h.Submit)
		api.GET("/gallery/:category", h.Gallery)
		api.GET("/garden/:category", h.Garden)
		api.GET("/stats", h.Stats)
		api.POST("/moderation/login", h.Login)
	}

	mod := api.Group("/moderation", h.RequireModerator())
	{
		mod.GET("/me", h.Me)
		mod.GET("/queue/:category", h.ModerationQueue)
		mod.POST("/queue/:category/:id/flag", h.Flag)
		mod.GET("/orphans", h.Orphans)
	}
}
