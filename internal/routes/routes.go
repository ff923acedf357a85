// internal/routes/routes.go
package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerfiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"unilog-service/internal/config"
	"unilog-service/internal/database"
	"unilog-service/internal/handler"
	"unilog-service/internal/middleware"
	"unilog-service/internal/service"
	"unilog-service/internal/utils"
)

// Router holds all dependencies for routing. DB is nil with in-memory
// storage.
type Router struct {
	config             *config.Config
	logger             *zap.Logger
	db                 *database.DB
	deviceService      *service.DeviceService
	acquisitionService *service.AcquisitionService
	operationService   *service.OperationService
	sessionService     *service.SessionService
	discoveryService   *service.DiscoveryService
	wsHandler          *handler.WebSocketHandler
}

// Services groups the services served over HTTP
type Services struct {
	Devices     *service.DeviceService
	Acquisition *service.AcquisitionService
	Operations  *service.OperationService
	Sessions    *service.SessionService
	Discovery   *service.DiscoveryService
}

// NewRouter creates a new router instance
func NewRouter(
	config *config.Config,
	logger *zap.Logger,
	db *database.DB,
	services Services,
	wsHandler *handler.WebSocketHandler,
) *Router {
	return &Router{
		config:             config,
		logger:             logger,
		db:                 db,
		deviceService:      services.Devices,
		acquisitionService: services.Acquisition,
		operationService:   services.Operations,
		sessionService:     services.Sessions,
		discoveryService:   services.Discovery,
		wsHandler:          wsHandler,
	}
}

// SetupRouter creates and configures the Gin router
func (r *Router) SetupRouter() *gin.Engine {
	if r.config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.MaxMultipartMemory = r.config.Server.MaxUploadSize

	r.addMiddleware(router)
	r.addRoutes(router)

	return router
}

// addMiddleware adds middleware to the router
func (r *Router) addMiddleware(router *gin.Engine) {
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.RecoveryMiddleware(r.logger))

	serviceLogger := utils.NewServiceLogger(r.logger, "http-server")
	router.Use(middleware.LoggingMiddleware(serviceLogger))

	router.Use(middleware.CORSMiddleware(r.config.Server.AllowedOrigins))

	r.logger.Info("Middleware configured")
}

// addRoutes sets up all application routes
func (r *Router) addRoutes(router *gin.Engine) {
	var live func() []string
	if r.acquisitionService != nil {
		live = r.acquisitionService.Running
	}
	healthHandler := handler.NewHealthHandler(r.db, r.config, live, r.logger)
	healthHandler.RegisterRoutes(router)

	apiV1 := router.Group("/api/v1")
	handler.NewDeviceHandler(r.deviceService, r.logger).RegisterRoutes(apiV1)
	handler.NewLiveHandler(r.acquisitionService, r.logger).RegisterRoutes(apiV1)
	handler.NewOperationHandler(r.operationService, r.config.Server.MaxUploadSize, r.logger).RegisterRoutes(apiV1)
	handler.NewSessionHandler(r.sessionService, r.logger).RegisterRoutes(apiV1)
	handler.NewDiscoveryHandler(r.discoveryService, r.logger).RegisterRoutes(apiV1)

	if r.wsHandler != nil {
		r.addWebSocketRoutes(router, r.wsHandler)
	}

	r.addDocumentationRoutes(router)

	r.logger.Info("All routes configured successfully")
}

// addWebSocketRoutes sets up WebSocket routes
func (r *Router) addWebSocketRoutes(router *gin.Engine, handler *handler.WebSocketHandler) {
	ws := router.Group("/ws")
	{
		ws.GET("/devices/:id", handler.HandleDeviceConnection)
		ws.GET("/events", handler.HandleEventConnection)
		ws.GET("/stats", func(c *gin.Context) {
			utils.SuccessResponse(c, http.StatusOK, "WebSocket statistics", handler.GetConnectionStats())
		})
	}
}

// addDocumentationRoutes sets up documentation routes
func (r *Router) addDocumentationRoutes(router *gin.Engine) {
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerfiles.Handler))

	router.GET("/docs", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, "/swagger/index.html")
	})
}
