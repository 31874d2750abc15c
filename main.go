package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"edio/config"
	"edio/handlers"
	"edio/internal/mailer"
	"edio/internal/realtime"
	"edio/internal/storage"
	"edio/internal/worker"
	"edio/internal/youtube"
	"edio/middleware"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	config.InitLogger(cfg.LogLevel)

	db, err := config.NewSupabaseClient(cfg)
	if err != nil {
		config.Log.Fatalf("Failed to initialize Supabase: %v", err)
	}
	service, err := config.NewServiceClient(cfg)
	if err != nil {
		config.Log.Fatalf("Failed to initialize service client: %v", err)
	}

	cipher, err := youtube.NewTokenCipher(cfg.TokenEncryptionKey, cfg.TokenEncryptionIV)
	if err != nil {
		config.Log.Fatalf("Failed to initialize token cipher: %v", err)
	}

	store := storage.NewService(cfg.StorageBucket, config.NewStorageClient(cfg))
	platform := youtube.NewClient(cfg.YouTubeClientID, cfg.YouTubeClientSecret, config.Log)
	hub := realtime.NewHub()
	mail := mailer.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.MailFrom, config.Log)

	dispatcher := worker.NewDispatcher(2, 32, config.Log)
	dispatcher.Run()

	h := handlers.NewApplicationHandler(cfg, config.Log, db, service, store, platform, cipher, hub, mail, dispatcher)

	app := fiber.New()

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))
	app.Use(middleware.RequestLogger())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status":  "ok",
			"message": "Edio API is healthy",
		})
	})

	apiV1 := app.Group("/api/v1")

	// Project feed websocket authenticates via query token, before upgrade.
	apiV1.Get("/projects/:id/ws", h.FeedGate, websocket.New(h.ProjectFeed))

	apiV1.Use(middleware.AuthRequired(cfg.SupabaseJWTSecret))

	// Auth / profile
	apiV1.Post("/auth/select-role", h.SelectRole)
	apiV1.Get("/me", h.GetMe)
	apiV1.Patch("/me", h.UpdateMe)

	// Projects
	apiV1.Post("/projects", h.CreateProject)
	apiV1.Get("/projects", h.ListProjects)
	apiV1.Get("/projects/:id", h.GetProject)
	apiV1.Patch("/projects/:id", h.UpdateProject)
	apiV1.Post("/projects/:id/complete", h.CompleteProject)
	apiV1.Post("/projects/:id/final-version", h.SetFinalVersion)

	// Versions
	apiV1.Post("/projects/:id/versions", h.SubmitVersion)
	apiV1.Get("/projects/:id/versions", h.ListVersions)
	apiV1.Delete("/projects/:id/versions/:versionId", h.DeleteVersion)

	// Chat / feedback
	apiV1.Get("/projects/:id/messages", h.ListMessages)
	apiV1.Post("/projects/:id/messages", h.SendMessage)
	apiV1.Post("/projects/:id/feedback", h.SubmitFeedback)

	// Editor relationships and invites
	apiV1.Post("/editors/invite", h.InviteEditor)
	apiV1.Post("/editors/invite-email", h.InviteEditorByEmail)
	apiV1.Get("/editors", h.ListEditors)
	apiV1.Get("/invitations", h.ListInvitations)
	apiV1.Post("/invitations/:id/:action", h.RespondInvitation)
	apiV1.Post("/editor-invites/:id/accept", h.AcceptEmailInvite)

	// Uploads
	apiV1.Post("/uploads/sign", h.SignUpload)
	apiV1.Post("/uploads", h.RecordUpload)
	apiV1.Get("/projects/:id/uploads", h.ListUploads)

	// Channels and publishing
	apiV1.Post("/channels/connect", h.ConnectChannel)
	apiV1.Get("/channels", h.ListChannels)
	apiV1.Delete("/channels/:id", h.DeleteChannel)
	apiV1.Post("/projects/:id/publish", h.PublishProject)
	apiV1.Get("/projects/:id/publish-status", h.PublishStatus)

	// Notifications
	apiV1.Get("/notifications", h.ListNotifications)
	apiV1.Get("/notifications/unread-count", h.UnreadCount)
	apiV1.Post("/notifications/:id/read", h.MarkNotificationRead)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		config.Log.Info("Shutting down...")
		dispatcher.Stop()
		if err := app.Shutdown(); err != nil {
			config.Log.Errorf("Shutdown error: %v", err)
		}
	}()

	config.Log.Infof("Starting Edio API on port %s...", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		config.Log.Fatalf("Server stopped: %v", err)
	}
}
