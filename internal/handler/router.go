package handler

import (
	"github.com/gin-gonic/gin"
)

type RouterDeps struct {
	Projects *ProjectHandler
	Research *ResearchHandler
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.POST("/projects", deps.Projects.Create)
	api.GET("/projects", deps.Projects.List)
	api.GET("/projects/:id", deps.Projects.Get)
	api.PUT("/projects/:id", deps.Projects.Update)
	api.DELETE("/projects/:id", deps.Projects.Delete)

	api.POST("/projects/:id/research", deps.Research.Research)
	api.POST("/projects/:id/ask", deps.Research.Ask)
}
