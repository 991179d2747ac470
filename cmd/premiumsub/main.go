package main

import (
	"fmt"
	"log"
	"os"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/FoxUshiha/ServerPremiumSub/app/controllers"
	"github.com/FoxUshiha/ServerPremiumSub/app/repository"
	"github.com/FoxUshiha/ServerPremiumSub/internal/pkg/billing"
	"github.com/FoxUshiha/ServerPremiumSub/internal/pkg/cache"
	"github.com/FoxUshiha/ServerPremiumSub/internal/pkg/coinpay"
	"github.com/FoxUshiha/ServerPremiumSub/internal/pkg/config"
	"github.com/FoxUshiha/ServerPremiumSub/internal/pkg/constants"
	"github.com/FoxUshiha/ServerPremiumSub/internal/pkg/database"
	"github.com/FoxUshiha/ServerPremiumSub/internal/pkg/entitlements"
	"github.com/FoxUshiha/ServerPremiumSub/internal/pkg/env"
	"github.com/FoxUshiha/ServerPremiumSub/internal/pkg/notify"
	"github.com/FoxUshiha/ServerPremiumSub/internal/pkg/router"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()
	repository.InitializeFactory(database.GetDB())

	cfg, err := config.LoadBilling()
	if err != nil {
		log.Fatalf("Billing configuration invalid: %v", err)
	}

	// Payment pipeline: client -> verifier -> orchestrator.
	client := coinpay.NewClient(cfg.APIBaseURL, cfg.HTTPTimeout)
	verifier := coinpay.NewVerifier(client)
	repos := repository.GetGlobalRepositories()
	orchestrator := billing.NewOrchestrator(client, verifier, repos.PaymentLog)

	// Notification queue with its single delivery worker. The LogMessenger
	// stands in until a chat gateway is attached.
	queue := notify.NewQueue(notify.NewLogMessenger(), cfg.NotifyDelay)
	queue.Start()

	sink := entitlements.NewLogSink()
	svc := billing.NewService(cfg, repos.Guild, repos.Subscription, orchestrator, sink, queue)

	// Renewal scheduler sweeping every guild on its own cycle.
	scheduler := billing.NewScheduler(cfg, repos.Guild, repos.Subscription, orchestrator, sink, queue)
	scheduler.Start()

	controllers.InitializeControllers(svc, scheduler, queue)

	// Define possible base paths
	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/premiumsub to project root
		"../../../", // Fallback
	}

	// Find the correct base path
	basePath := ""
	for _, path := range basePaths {
		if _, err := os.Stat(path + "public"); !os.IsNotExist(err) {
			basePath = path
			break
		}
	}

	if basePath == "" {
		panic("Could not find project root directory")
	}

	// init fiber app
	app := fiber.New(fiber.Config{
		AppName: "ServerPremiumSub",
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("METRICS_USER", "admin"): env.GetEnv("METRICS_PASS", "admin"),
		},
	}), monitor.New())

	// SWAGGER / OPENAPI
	openAPICfg := swagger.Config{
		BasePath: constants.DocsRoute,
		FilePath: basePath + "public/docs/v1/openapi.yml",
		Path:     "v1",
	}
	app.Use(swagger.New(openAPICfg))

	// ROUTER
	router.InstallRouter(app)

	return app
}
