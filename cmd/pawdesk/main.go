package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ManuelReschke/PawDesk/internal/pkg/bootstrap"
	"github.com/ManuelReschke/PawDesk/internal/pkg/env"
	"github.com/ManuelReschke/PawDesk/internal/pkg/router"
)

func main() {
	env.SetupEnvFile()

	rt, err := bootstrap.NewRuntime(context.Background())
	if err != nil {
		log.Fatalf("[PawDesk] Startup failed: %v", err)
	}
	rt.Start()

	app := NewApplication(rt)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Info("[PawDesk] Shutting down")
		if err := app.Shutdown(); err != nil {
			log.Errorf("[PawDesk] Shutdown: %v", err)
		}
	}()

	err = app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	rt.Close()
	if err != nil {
		log.Fatal(err)
	}
}

func NewApplication(rt *bootstrap.Runtime) *fiber.App {
	basePath := findBasePath()

	// init fiber app
	app := fiber.New(fiber.Config{
		BodyLimit: 1 << 20, // 1 MiB
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// prometheus metrics
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("METRICS_USER", "admin"): env.GetEnv("METRICS_PASSWORD", "test"),
		},
	}), adaptor.HTTPHandler(promhttp.Handler()))

	// SWAGGER / OPENAPI
	if basePath != "" {
		openAPICfg := swagger.Config{
			BasePath: "/docs/api/",
			FilePath: basePath + "public/docs/v1/openapi.yml",
			Path:     "v1",
		}
		app.Use(swagger.New(openAPICfg))
	}

	// ROUTER
	router.InstallRouter(app, rt.Billing, rt.APIKey, rt.LimiterStorage)

	return app
}

// findBasePath locates the project root from the binary's working directory.
func findBasePath() string {
	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/pawdesk to project root
		"../../../", // Fallback
	}
	for _, path := range basePaths {
		if _, err := os.Stat(path + "public/docs/v1/openapi.yml"); err == nil {
			return path
		}
	}
	log.Warn("[PawDesk] openapi.yml not found, API docs disabled")
	return ""
}
