package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/launchdeck/launchdeck/app/repository"
	"github.com/launchdeck/launchdeck/internal/pkg/cache"
	"github.com/launchdeck/launchdeck/internal/pkg/database"
	"github.com/launchdeck/launchdeck/internal/pkg/env"
	"github.com/launchdeck/launchdeck/internal/pkg/retryqueue"
	"github.com/launchdeck/launchdeck/internal/pkg/router"
)

func main() {
	app := NewApplication()

	// Scheduled retry drain runs alongside the HTTP server.
	manager := retryqueue.GetManager()
	manager.Start()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		log.Println("Shutting down...")
		manager.Stop()
		_ = app.Shutdown()
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()
	repository.InitializeFactory(database.GetDB())

	app := fiber.New(fiber.Config{
		AppName: "launchdeck",
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	router.InstallRouter(app)

	return app
}
