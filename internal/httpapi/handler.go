package httpapi

import (
	"net/http"

	"questboard/pkg/db/pagination"
	"questboard/pkg/errutil"
	"questboard/services/completion"
	"questboard/services/points"
	"questboard/services/reward"
	"questboard/services/task"
	"questboard/services/top3"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

// Handler is the HTTP facade over the reward core. Authentication lives in
// front of this service; the authenticated user arrives in the X-User-ID
// header.
type Handler struct {
	db         *gorm.DB
	points     *points.Service
	rewards    *reward.Service
	top3       *top3.Service
	tasks      *task.Store
	completion *completion.Service
}

type HandlerParams struct {
	fx.In
	DB         *gorm.DB
	Points     *points.Service
	Rewards    *reward.Service
	Top3       *top3.Service
	Tasks      *task.Store
	Completion *completion.Service
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{
		db:         p.DB,
		points:     p.Points,
		rewards:    p.Rewards,
		top3:       p.Top3,
		tasks:      p.Tasks,
		completion: p.Completion,
	}
}

func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", h.health)

	v1 := r.Group("/api/v1")
	v1.Use(requireUser())
	{
		v1.POST("/tasks", h.createTask)
		v1.POST("/tasks/:taskID/complete", h.completeTask)

		v1.GET("/points/balance", h.balance)
		v1.GET("/points/transactions", h.listTransactions)

		v1.POST("/top3", h.setTop3)
		v1.GET("/top3", h.getTop3)

		v1.GET("/rewards/mine", h.ownedRewards)
		v1.GET("/rewards/recipes", h.listRecipes)
		v1.POST("/rewards/recipes/:recipeID/redeem", h.redeemRecipe)
	}

	return r
}

func (h *Handler) health(c *gin.Context) {
	sqlDB, err := h.db.DB()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "down"})
		return
	}
	if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "down"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) completeTask(c *gin.Context) {
	taskID, err := parseID(c.Param("taskID"))
	if err != nil {
		fail(c, err)
		return
	}

	result, err := h.completion.Complete(c.Request.Context(), taskID, userID(c))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, result)
}

type createTaskRequest struct {
	Title string `json:"title" binding:"required"`
}

func (h *Handler) createTask(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errutil.ValidationFailed("title is required", errutil.WithErr(err)))
		return
	}

	t := &task.Task{UserID: userID(c), Title: req.Title}
	if err := h.tasks.Create(c.Request.Context(), t); err != nil {
		fail(c, err)
		return
	}
	respond(c, t)
}

func (h *Handler) balance(c *gin.Context) {
	balance, err := h.points.Balance(c.Request.Context(), userID(c))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, gin.H{"balance": balance})
}

func (h *Handler) listTransactions(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		fail(c, errutil.ValidationFailed("invalid pagination", errutil.WithErr(err)))
		return
	}

	rows, pageInfo, err := h.points.ListTransactions(c.Request.Context(), userID(c), page)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, gin.H{"transactions": rows, "page_info": pageInfo})
}

type setTop3Request struct {
	Date    string   `json:"date" binding:"required"`
	TaskIDs []string `json:"task_ids" binding:"required"`
}

func (h *Handler) setTop3(c *gin.Context) {
	var req setTop3Request
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errutil.ValidationFailed("date and task_ids are required", errutil.WithErr(err)))
		return
	}

	taskIDs := make([]snowflake.ID, 0, len(req.TaskIDs))
	for _, raw := range req.TaskIDs {
		id, err := parseID(raw)
		if err != nil {
			fail(c, err)
			return
		}
		taskIDs = append(taskIDs, id)
	}

	remaining, err := h.top3.Set(c.Request.Context(), userID(c), req.Date, taskIDs)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, gin.H{"remaining_balance": remaining})
}

func (h *Handler) getTop3(c *gin.Context) {
	date := c.Query("date")
	if date == "" {
		fail(c, errutil.ValidationFailed("date query parameter is required"))
		return
	}

	selection, err := h.top3.Get(c.Request.Context(), userID(c), date)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, selection)
}

func (h *Handler) ownedRewards(c *gin.Context) {
	owned, err := h.rewards.OwnedRewards(c.Request.Context(), userID(c))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, gin.H{"rewards": owned})
}

func (h *Handler) listRecipes(c *gin.Context) {
	recipes, err := h.rewards.ListRecipes(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, gin.H{"recipes": recipes})
}

// redeemRecipe accepts either the recipe's row id or its slug, the stable
// identifier clients usually hold.
func (h *Handler) redeemRecipe(c *gin.Context) {
	ref := c.Param("recipeID")

	recipeID, err := snowflake.ParseString(ref)
	if err != nil {
		recipe, err := h.rewards.FindRecipeBySlug(c.Request.Context(), ref)
		if err != nil {
			fail(c, err)
			return
		}
		recipeID = recipe.ID
	}

	group, err := h.rewards.Redeem(c.Request.Context(), userID(c), recipeID)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, gin.H{"transaction_group": group})
}

func parseID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(raw)
	if err != nil {
		return 0, errutil.ValidationFailed("invalid id: " + raw)
	}
	return id, nil
}

var Module = fx.Module("httpapi",
	fx.Provide(
		NewHandler,
		fx.Annotate(NewRouter, fx.As(new(http.Handler))),
	),
)
