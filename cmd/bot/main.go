package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"maptest-backend/internal/archive"
	"maptest-backend/internal/config"
	"maptest-backend/internal/database"
	"maptest-backend/internal/discord"
	"maptest-backend/internal/handlers"
	"maptest-backend/internal/mapserver"
	"maptest-backend/internal/maptest"
	"maptest-backend/internal/middleware"
	"maptest-backend/internal/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg := config.Load()

	db := database.Connect(cfg)
	database.AutoMigrate(db)

	types := config.DefaultServerTypes()
	criteria := config.DefaultCriteria()

	ratingService := services.NewRatingService(db, criteria)
	scheduleService := services.NewScheduleService(db, cfg.WeeklyBatchSize)

	session, err := discord.NewSession(cfg.DiscordToken, cfg.GuildID)
	if err != nil {
		log.Fatalf("failed to create discord session: %v", err)
	}

	registry := maptest.NewRegistry()
	manager := maptest.NewManager(session, registry, scheduleService, cfg, types)

	uploader := mapserver.NewClient(cfg.MapServerURL, cfg.MapServerToken)
	thumbs := mapserver.NewThumbnailer(cfg.ThumbnailBin, cfg.ThumbnailSize)
	archiveClient := mapserver.NewClient(cfg.ArchiveURL, cfg.ArchiveToken)

	submissions := maptest.NewSubmissionHandler(session, manager, scheduleService, uploader, thumbs, cfg, types)
	commands := maptest.NewCommandHandler(session, manager, ratingService, scheduleService, cfg.TesterRoleID, cfg.WeeklyBatchSize)

	exporter := archive.NewExporter(session, archiveClient)
	sweeper := archive.NewSweeper(session, manager, scheduleService, exporter, uploader, cfg.AnnounceChannelID)

	err = session.Open(discord.Handlers{
		OnMessage: func(ev discord.MessageEvent) {
			submissions.OnMessage(ev)
			commands.OnMessage(ev)
		},
		OnMessageEdit:   submissions.OnMessageEdit,
		OnReactionAdd:   submissions.OnReactionAdd,
		OnChannelDelete: sweeper.OnChannelDelete,
	})
	if err != nil {
		log.Fatalf("failed to open discord session: %v", err)
	}
	defer session.Close()

	if err := registry.Load(session, manager.AllShards(), cfg.PreviewBaseURL, types); err != nil {
		log.Fatalf("failed to load map channels: %v", err)
	}

	processor := maptest.NewProcessor(manager, ratingService, scheduleService)
	processor.Start()
	defer processor.Stop()

	sweeper.Start()
	defer sweeper.Stop()

	statusHandler := handlers.NewStatusHandler(registry, scheduleService, cfg.WeeklyBatchSize)

	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "X-API-Key"},
	}))

	r.GET("/healthz", statusHandler.Health)

	api := r.Group("/api/v1")
	api.Use(middleware.APIKeyAuth(cfg.APIKey))
	{
		api.GET("/queue", statusHandler.GetQueue)
		api.GET("/maps", statusHandler.GetMaps)
	}

	go func() {
		log.Printf("status API listening on :%s", cfg.ServerPort)
		if err := r.Run(":" + cfg.ServerPort); err != nil {
			log.Fatalf("failed to start status API: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("shutting down")
}
