package main

import (
	"log"

	"backend_crm/api"
	"backend_crm/config"
	"backend_crm/database"
	"backend_crm/middleware"
	"backend_crm/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// initDB инициализирует подключение к базе данных
func initDB() {
	log.Println("🔧 Инициализация базы данных...")

	// Создаем базу данных, если она не существует
	if err := database.CreateDatabaseIfNotExists(); err != nil {
		log.Fatal("❌ Ошибка при создании базы данных:", err)
	}

	// Подключаемся к базе данных
	if err := database.ConnectDatabase(); err != nil {
		log.Fatal("❌ Ошибка подключения к базе данных:", err)
	}

	log.Println("✅ База данных успешно инициализирована")
}

func main() {
	// Загружаем конфигурацию (включая .env файл)
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("❌ Ошибка загрузки конфигурации:", err)
	}
	cfg.LogConfig()

	// Инициализируем базу данных
	initDB()
	db := database.GetDB()

	// Инициализируем Redis (кэш, сессии, rate limiting)
	if err := database.InitRedis(); err != nil {
		log.Println("⚠️  Redis недоступен, кэширование и сессии отключены:", err)
	} else {
		log.Println("✅ Redis успешно подключен")
	}

	// Собираем сервисы явно, без глобальных синглтонов
	cacheService := services.NewCacheService(database.GetRedis(), log.Default())
	leadService := services.NewLeadService(db, cacheService)
	exportService := services.NewExportService(db, leadService)
	notificationService := services.NewNotificationService(db)
	scheduler := services.NewLeadScheduler(db, leadService, cacheService, notificationService)

	// Middleware
	authMiddleware := middleware.NewAuthMiddleware(db, cfg)
	tenantMiddleware := middleware.NewTenantMiddleware(db)

	// Настраиваем Gin router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()

	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
	}
	if len(cfg.CORS.AllowedOrigins) == 1 && cfg.CORS.AllowedOrigins[0] == "*" {
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowOrigins = nil
	}
	r.Use(cors.New(corsConfig))

	// Базовые роуты
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":   "success",
			"message":  "pong",
			"database": "connected",
		})
	})

	// API роуты
	apiGroup := r.Group("/api")

	// Аутентификация: login публичный, остальное за middleware
	authAPI := api.NewAuthAPI(db, cfg)
	authAPI.RegisterAuthRoutes(apiGroup, authMiddleware)

	// Защищенные роуты: аутентификация, тенант, rate limiting
	protected := apiGroup.Group("")
	protected.Use(authMiddleware.RequireAuth())
	protected.Use(tenantMiddleware.SetTenant())
	protected.Use(middleware.APIRateLimit(cfg.Security.RateLimitRequests, cfg.Security.RateLimitWindow))

	api.NewLeadsAPI(leadService, exportService, notificationService).RegisterLeadsRoutes(protected)
	api.NewAccountsAPI(db).RegisterAccountsRoutes(protected)
	api.NewContactsAPI(db).RegisterContactsRoutes(protected)
	api.NewOpportunitiesAPI(db).RegisterOpportunitiesRoutes(protected)
	api.NewDashboardAPI(db).RegisterDashboardRoutes(protected)

	// Фоновые задачи: прогрев аналитики и контроль зависших лидов
	if err := scheduler.Start(); err != nil {
		log.Println("⚠️  Не удалось запустить планировщик:", err)
	} else {
		log.Println("✅ Планировщик фоновых задач запущен")
	}
	defer scheduler.Stop()

	log.Printf("🚀 Сервер запущен на порту %s", cfg.App.Port)
	if err := r.Run(":" + cfg.App.Port); err != nil {
		log.Fatal("❌ Ошибка запуска сервера:", err)
	}
}
