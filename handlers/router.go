package handlers

import (
	"casecounsel-backend/auth"

	"github.com/gin-gonic/gin"
)

// Routes groups the handlers served under /api
type Routes struct {
	Cases *CaseHandler
	Chat  *ChatHandler
	Files *FileHandler
}

// Register mounts the API on r behind bearer authentication
func (rt Routes) Register(r gin.IRouter, verifier auth.Verifier) {
	api := r.Group("/api", RequireAuth(verifier))
	{
		// Case endpoints
		api.POST("/cases", rt.Cases.CreateCase)
		api.GET("/cases", rt.Cases.ListCases)
		api.GET("/cases/:id", rt.Cases.GetCase)
		api.PUT("/cases/:id", rt.Cases.UpdateCase)
		api.GET("/cases/:id/context", rt.Cases.GetContext)
		api.POST("/cases/:id/summarize", rt.Cases.Summarize)
		api.GET("/cases/:id/summary", rt.Cases.GetSummary)

		// Reasoning endpoints
		api.POST("/chat", rt.Chat.Chat)
		api.POST("/research", rt.Chat.Research)
		api.POST("/cases/:id/redraft", rt.Chat.Redraft)
		api.POST("/cases/:id/analyze", rt.Chat.Analyze)

		// Document endpoints
		api.POST("/cases/:id/documents", rt.Files.UploadDocument)
		api.GET("/files/:id", rt.Files.GetFile)
	}
}
