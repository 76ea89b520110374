package routes

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"passgate/internal/config"
	"passgate/internal/handlers"
	"passgate/internal/middleware"
	"passgate/internal/websocket"
)

func SetupRouter(db *gorm.DB, config *config.Config) *gin.Engine {
	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-API-Key"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	encryptionKey := []byte(config.EncryptionKey)

	authMiddleware := middleware.NewAuthMiddleware(db, config.JWTSecret)
	apiKeyMiddleware := middleware.NewAPIKeyMiddleware(config)

	authHandler := handlers.NewAuthHandler(db, authMiddleware)
	userHandler := handlers.NewUserHandler(db)
	merchantHandler := handlers.NewMerchantHandler(db)
	passcodeHandler := handlers.NewPasscodeHandler(db, encryptionKey)
	accessHandler := handlers.NewAccessHandler(db, encryptionKey)
	applicationHandler := handlers.NewApplicationHandler(db)
	statsHandler := handlers.NewStatsHandler(db)

	var wsHandler *websocket.WebSocketHandler
	if config.EnableWebsocket {
		wsHandler = websocket.NewWebSocketHandler(authMiddleware)

		passcodeHandler.SetWebSocketHandler(wsHandler)
		accessHandler.SetWebSocketHandler(wsHandler)

		router.GET("/ws", wsHandler.HandleWebSocket)
	}

	auth := router.Group("/api/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/register", authMiddleware.AuthRequired(), authMiddleware.AdminRequired(), authHandler.Register)
		auth.GET("/me", authMiddleware.AuthRequired(), authHandler.GetMe)
		auth.POST("/change-password", authMiddleware.AuthRequired(), authHandler.ChangePassword)
	}

	// Visitors submit applications without an account.
	router.POST("/api/applications", applicationHandler.Submit)

	api := router.Group("/api")
	api.Use(authMiddleware.AuthRequired())
	{
		users := api.Group("/users")
		users.Use(authMiddleware.AdminRequired())
		{
			users.GET("", userHandler.GetUsers)
			users.GET("/:id", userHandler.GetUser)
			users.POST("", userHandler.CreateUser)
			users.PUT("/:id", userHandler.UpdateUser)
			users.DELETE("/:id", userHandler.DeleteUser)
			users.GET("/:id/passcodes", userHandler.GetUserPasscodes)
			users.GET("/:id/records", accessHandler.GetUserAccessRecords)
		}

		merchants := api.Group("/merchants")
		merchants.Use(authMiddleware.AdminRequired())
		{
			merchants.GET("", merchantHandler.GetMerchants)
			merchants.GET("/:id", merchantHandler.GetMerchant)
			merchants.POST("", merchantHandler.CreateMerchant)
			merchants.PUT("/:id", merchantHandler.UpdateMerchant)
			merchants.DELETE("/:id", merchantHandler.DeleteMerchant)
		}

		passcodes := api.Group("/passcodes")
		passcodes.Use(authMiddleware.AdminRequired())
		{
			passcodes.GET("", passcodeHandler.GetPasscodes)
			passcodes.GET("/expiring", passcodeHandler.GetExpiringPasscodes)
			passcodes.GET("/:id", passcodeHandler.GetPasscode)
			passcodes.GET("/:id/qr", passcodeHandler.GetPasscodeQR)
			passcodes.POST("", passcodeHandler.CreatePasscode)
			passcodes.PUT("/:id", passcodeHandler.UpdatePasscode)
			passcodes.DELETE("/:id", passcodeHandler.DeletePasscode)
			passcodes.POST("/:id/revoke", passcodeHandler.RevokePasscode)
			passcodes.POST("/sweep-expired", passcodeHandler.SweepExpired)
		}

		applications := api.Group("/applications")
		applications.Use(authMiddleware.AdminRequired())
		{
			applications.GET("", applicationHandler.GetApplications)
			applications.GET("/:id", applicationHandler.GetApplication)
			applications.POST("/:id/approve", applicationHandler.Approve)
			applications.POST("/:id/reject", applicationHandler.Reject)
		}

		records := api.Group("/records")
		records.Use(authMiddleware.AdminRequired())
		{
			records.GET("", accessHandler.GetAccessRecords)
			records.GET("/device/:deviceId", accessHandler.GetDeviceAccessRecords)
			records.GET("/stats", accessHandler.GetAccessStats)
			records.GET("/stats/devices", statsHandler.GetDeviceUsageStats)
			records.GET("/stats/most-active-users", statsHandler.GetMostActiveUsers)
			records.GET("/stats/time-series", statsHandler.GetAccessTimeSeries)
			records.GET("/realtime", accessHandler.GetRealtimeStatus)
			records.POST("/cleanup", accessHandler.CleanupRecords)
		}

		// Self-service endpoints for any authenticated user.
		api.GET("/my/passcode", accessHandler.GetCurrentPasscode)
		api.POST("/my/passcode/refresh", accessHandler.RefreshPasscode)
	}

	// Door terminals authenticate with an API key instead of a JWT.
	device := router.Group("/device")

	if config.APIKeyRequired {
		device.Use(apiKeyMiddleware.APIKeyRequired())
	}

	{
		device.POST("/validate", accessHandler.ValidatePasscode)
		device.POST("/validate-qr", accessHandler.ValidateQRPasscode)
		device.POST("/validate-totp", accessHandler.ValidateTOTPPasscode)
		device.GET("/passcode-info", accessHandler.GetPasscodeInfo)
		device.POST("/records/batch", accessHandler.BatchCreateRecords)
	}

	return router
}
