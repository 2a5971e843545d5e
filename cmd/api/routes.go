package main

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tulen-chik/beltelekom-sub000/internal/auth"
	"github.com/tulen-chik/beltelekom-sub000/internal/httpapi"
	"github.com/tulen-chik/beltelekom-sub000/internal/rbac"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, authMW gin.HandlerFunc, health func(ctx context.Context) error) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if err := health(c.Request.Context()); err != nil {
			_ = c.Error(err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	v1.POST("/auth/login", h.Login)
	v1.POST("/auth/refresh", h.Refresh)

	// protected API group
	api := v1.Group("")
	api.Use(authMW)
	{
		api.GET("/me", func(c *gin.Context) {
			uid, _ := auth.UserID(c.Request.Context())
			role, _ := auth.Role(c.Request.Context())
			sid, _ := auth.SubscriberID(c.Request.Context())
			c.JSON(http.StatusOK, gin.H{"user_id": uid, "role": role, "subscriber_id": sid})
		})

		// Subscribers read their own calls and bills; handlers scope the id.
		readers := api.Group("")
		readers.Use(rbac.RequireAnyRole(rbac.RoleOperator, rbac.RoleSubscriber))
		{
			readers.GET("/calls", h.ListCalls)
			readers.GET("/bills", h.ListBills)
			readers.GET("/bills/:id", h.GetBill)
		}

		staff := api.Group("")
		staff.Use(rbac.RequireAnyRole(rbac.RoleOperator))
		{
			staff.GET("/tariffs/:zone", h.GetTariff)

			staff.POST("/bills/preview", h.PreviewBill)
			staff.POST("/bills", h.CreateBill)
			staff.POST("/bills/:id/paid", h.MarkBillPaid)

			staff.POST("/bonuses", h.CreateBonus)
			staff.GET("/bonuses/:id", h.GetBonus)
			staff.POST("/bonuses/:id/apply", h.ApplyBonus)
		}
	}
}
