package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"production-tracker-backend/internal/mw"
	"production-tracker-backend/internal/project"
	"production-tracker-backend/internal/record"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(h *Handler) *gin.Engine {
	record.SetupValidator()

	r := gin.New()
	r.Use(gin.Recovery(), mw.RequestLogger(h.log))

	rateLimiter := mw.RateLimiter(rate.Limit(h.server.RateLimitPerSec), h.server.RateLimitBurst)

	// Sessions closed by the sweeper change these without an API write.
	responses := mw.NewResponseCache(time.Duration(h.server.CacheTTLSeconds)*time.Second,
		"/api/machines/logged-in", "/api/machines/usage/duration")

	api := r.Group("/api")
	api.Use(rateLimiter, responses.Middleware())
	{
		api.GET("/projects", h.ListProjects)

		api.POST("/uids", h.GetOrCreateUniqueID)
		api.POST("/uids/barcode", h.GenerateBarcode)
		api.POST("/work-orders", h.GetOrCreateWorkOrder)

		api.GET("/skus", h.SearchSkus)
		api.GET("/skus/:code", h.GetSku)
		api.GET("/operators", h.SearchOperators)
		api.GET("/operators/:code", h.GetOperator)
		api.GET("/machines", h.SearchMachines)
		api.GET("/machines/:hostname", h.GetMachine)
		api.GET("/production-steps", h.ListProductionSteps)
		api.POST("/zeroing-logs", h.CreateZeroingLog)

		// Machine usage
		api.POST("/machines/ping", h.MachinePing)
		api.GET("/machines/logged-in", h.LoggedInMachines)
		api.GET("/machines/usage/duration", h.ActiveDuration)

		api.GET("/subscriptions", h.GetSubscription)
		api.PUT("/subscriptions", h.PutSubscription)
		api.DELETE("/subscriptions", h.DeleteSubscription)
		api.GET("/vapid_public_key", h.GetVAPIDPublicKey)

		for _, p := range project.All() {
			registerProject(api.Group("/"+p.Name), &projectHandler{Handler: h, project: p})
		}
	}

	return r
}

func registerProject(g *gin.RouterGroup, h *projectHandler) {
	g.POST("/items", h.GetOrCreateItem)
	g.GET("/items/:id", h.GetItem)
	g.PUT("/items/:id", h.UpdateItem)
	g.GET("/items/:id/past-events", h.PastEvents)
	g.GET("/past-events/:uid", h.PastEventsByUID)

	g.POST("/events", h.StartEvent)
	g.GET("/events/search", h.SearchEvents)
	g.GET("/events/fail-states", h.FailStates)
	g.GET("/events/csv/logs", h.MultiEventLogCSV)
	g.GET("/events/csv/details", h.MultiEventDetailsCSV)
	g.GET("/events/:id", h.GetEvent)
	g.PUT("/events/:id", h.FinishEvent)
	g.GET("/events/:id/logs", h.EventLogs)
	g.GET("/events/:id/logs/csv", h.SingleEventLogCSV)

	if h.project.HasConfiguration() {
		g.GET("/configurations/:sku", h.GetConfiguration)
		g.PUT("/configurations/:sku", h.PutConfiguration)
		g.GET("/configurable-skus", h.SearchConfigurableSkus)
	}
}
