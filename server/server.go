package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"SquizFM/config"
	"SquizFM/core/auth"
	"SquizFM/core/catalog"
	"SquizFM/core/game"
	"SquizFM/db"
	"SquizFM/logger"
	"SquizFM/model"
	"SquizFM/repository"
	"SquizFM/store"

	"github.com/gorilla/mux"
	"github.com/jonboulle/clockwork"
)

// Start initializes and starts the HTTP server.
func Start() {
	cfg := config.Load()

	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogPath,
		MaxSize:    100,
		MaxBackups: 7,
		MaxAge:     30,
		Compress:   true,
	})
	defer logger.Sync()

	auth.SetSecret(cfg.JWTSecret)

	// Connect to Redis
	if err := db.ConnectRedis(cfg); err != nil {
		logger.Fatal("Failed to connect to Redis", logger.ErrorField(err))
	}
	defer db.CloseRedis()

	// Connect to MySQL for game archives
	if err := db.ConnectGormDB(cfg); err != nil {
		logger.Fatal("Failed to connect to database", logger.ErrorField(err))
	}
	defer db.CloseGormDB()
	if err := db.AutoMigrateModels(&model.GameRecord{}, &model.PlayerResult{}); err != nil {
		logger.Fatal("Failed to migrate database schema", logger.ErrorField(err))
	}

	// 共享文档存储
	sharedStore := store.NewRedisStore(db.RedisClient)
	defer sharedStore.Close()

	// 曲库客户端，响应经 Redis 缓存
	catalogClient := catalog.NewClient(cfg, db.RedisClient)

	// 会话层
	archiveRepo := repository.NewGormArchiveRepository(db.GormDB)
	archiver := repository.NewGameArchiver(archiveRepo)
	selector := game.NewSelector(time.Now().UnixNano())
	manager := game.NewSessionManager(sharedStore, catalogClient, selector, game.RulesFromConfig(cfg), archiver)

	driver := game.NewDriver(manager, clockwork.NewRealClock())
	defer driver.StopAll()

	hub := game.NewGameHub(manager)
	go hub.Run()
	defer hub.Stop()

	// 初始化处理器
	gameHandler := NewGameHandler(manager, driver)
	catalogHandler := NewCatalogHandler(catalogClient)
	archiveHandler := NewArchiveHandler(archiveRepo)
	wsHandler := NewWSHandler(manager, hub, driver)

	// 使用 gorilla/mux 创建路由器
	router := mux.NewRouter()

	// 添加 CORS 中间件
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, HEAD")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "86400") // 24 hours

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	// 游戏会话相关的API端点
	router.HandleFunc("/api/games", gameHandler.CreateGameHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/games/{id}", gameHandler.GameAuth(gameHandler.GetGameHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/games/{id}", gameHandler.HostAuth(gameHandler.RemoveGameHandler)).Methods(http.MethodDelete)
	router.HandleFunc("/api/games/{id}/players", gameHandler.JoinGameHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/games/{id}/rounds", gameHandler.HostAuth(gameHandler.StartRoundHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/games/{id}/advance", gameHandler.HostAuth(gameHandler.AdvanceHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/games/{id}/pause", gameHandler.HostAuth(gameHandler.PauseHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/games/{id}/resume", gameHandler.HostAuth(gameHandler.ResumeHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/games/{id}/end", gameHandler.HostAuth(gameHandler.EndGameHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/games/{id}/restart", gameHandler.HostAuth(gameHandler.RestartGameHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/games/{id}/track/restart", gameHandler.HostAuth(gameHandler.RestartTrackHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/games/{id}/guesses", gameHandler.PlayerAuth(gameHandler.SubmitGuessHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/games/{id}/presence", gameHandler.GameAuth(gameHandler.PresenceHandler)).Methods(http.MethodPut)

	// 曲库浏览相关的API端点
	router.HandleFunc("/api/catalog/categories", catalogHandler.CategoriesHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/catalog/categories/{id}/playlists", catalogHandler.CategoryPlaylistsHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/catalog/playlists/{id}", catalogHandler.PlaylistHandler).Methods(http.MethodGet)

	// 历史对局相关的API端点
	router.HandleFunc("/api/leaderboard", archiveHandler.LeaderboardHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/archive/recent", archiveHandler.RecentGamesHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/archive/{code}", archiveHandler.GameRecordHandler).Methods(http.MethodGet)

	// WebSocket 端点
	router.HandleFunc("/ws/games/{id}", wsHandler.ServeWS).Methods(http.MethodGet)

	// 设置服务器超时
	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// 创建一个通道来接收操作系统信号
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	// 在goroutine中启动服务器
	go func() {
		logger.Info("Server starting", logger.String("addr", cfg.ListenAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", logger.ErrorField(err))
		}
	}()

	// 等待中断信号
	<-stop
	logger.Info("Shutting down server...")

	// 创建一个5秒超时的上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 优雅关闭服务器
	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", logger.ErrorField(err))
	}

	logger.Info("Server stopped")
}
