package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/tablekeep/tablekeep/internal/middleware"
)

type RouterDeps struct {
	Locks     *LockHandler
	Rows      *RowHandler
	Subscribe *SubscribeHandler
	JWTSecret []byte
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	authGroup := api.Group("")
	authGroup.Use(middleware.HolderAuth(deps.JWTSecret))

	authGroup.POST("/locks/:row_id", deps.Locks.Acquire)
	authGroup.DELETE("/locks/:row_id", deps.Locks.Release)
	authGroup.DELETE("/locks", deps.Locks.ReleaseAll)

	authGroup.GET("/rows", deps.Rows.List)
	authGroup.POST("/rows", deps.Rows.Create)
	authGroup.GET("/rows/:row_id", deps.Rows.Get)
	authGroup.PUT("/rows/:row_id", deps.Rows.Update)
	authGroup.DELETE("/rows/:row_id", deps.Rows.Delete)

	authGroup.GET("/pages", deps.Rows.ListPages)

	authGroup.GET("/subscribe", deps.Subscribe.Subscribe)
}
