package http

import (
	"github.com/gin-gonic/gin"

	"documind/internal/bootstrap"
	"documind/internal/transport/http/handler"
	"documind/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	authHandler := handler.NewAuthHandler(app.AuthService)
	documentHandler := handler.NewDocumentHandler(app.DocumentService)
	ragHandler := handler.NewRAGHandler(app.RAGService)
	validationHandler := handler.NewValidationHandler(app.ValidationService)

	auth := middleware.AuthJWT(app.Config.Auth.JWTSecret)

	v1 := router.Group("/api/v1")
	authGroup := v1.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.GET("/me", auth, authHandler.Me)

	docGroup := v1.Group("/documents")
	docGroup.Use(auth)
	docGroup.POST("/", documentHandler.Upload)
	docGroup.GET("/", documentHandler.List)
	docGroup.GET("/:id", documentHandler.Get)
	docGroup.DELETE("/:id", documentHandler.Delete)

	ragGroup := v1.Group("/rag")
	ragGroup.Use(auth)
	ragGroup.POST("/process-document/:id", documentHandler.Process)
	ragGroup.POST("/ask", ragHandler.Ask)
	ragGroup.GET("/search", ragHandler.Search)
	ragGroup.GET("/answers/:id", ragHandler.GetAnswer)
	ragGroup.GET("/stats", ragHandler.Stats)

	validationGroup := v1.Group("/validation")
	validationGroup.Use(auth)
	validationGroup.POST("/tasks", validationHandler.Create)
	validationGroup.GET("/tasks", validationHandler.List)
	validationGroup.GET("/tasks/:id", validationHandler.Get)
	validationGroup.POST("/tasks/:id/assign", validationHandler.Assign)
	validationGroup.POST("/tasks/:id/results", validationHandler.SubmitResult)
	validationGroup.POST("/tasks/:id/reject", validationHandler.Reject)

	return router
}
