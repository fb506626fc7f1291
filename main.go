package main

import (
	"log"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"artmarket-service/cache"
	"artmarket-service/controller"
	"artmarket-service/gateway"
	kafkax "artmarket-service/kafka"
	"artmarket-service/middleware"
	"artmarket-service/model"
	"artmarket-service/notify"
	"artmarket-service/provision"
	"artmarket-service/reconcile"
	"artmarket-service/routes"
	"artmarket-service/search"
)

var DB *gorm.DB

// ======================
// INIT DATABASE
// ======================
func initDB() {
	host := getEnv("DB_HOST", "localhost")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "postgres")
	pass := getEnv("DB_PASS", "postgres")
	name := getEnv("DB_NAME", "artmarketdb")

	dsn := "host=" + host +
		" user=" + user +
		" password=" + pass +
		" dbname=" + name +
		" port=" + port +
		" sslmode=disable TimeZone=UTC"

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect db:", err)
	}

	if err := DB.AutoMigrate(
		&model.User{},
		&model.Course{},
		&model.Artwork{},
		&model.Book{},
		&model.Product{},
		&model.Enrollment{},
		&model.Purchase{},
		&model.Donation{},
		&model.ReconcileAlert{},
	); err != nil {
		log.Fatal(err)
	}
}

func main() {
	initDB()

	// redis
	cache.ConnectRedis(getEnv("REDIS_ADDR", "localhost:6379"))

	// kafka
	broker := getEnv("KAFKA_BROKER", "kafka:9092")
	producer := notify.NewProducer(broker)
	go kafkax.StartConsumer(broker, "purchase.completed",
		kafkax.HandlePurchaseCompleted(DB, kafkax.LogMailer{}))

	// elasticsearch
	indexer, err := search.NewIndexer(getEnv("ELASTIC_URL", "http://localhost:9200"))
	if err != nil {
		log.Printf("elasticsearch unavailable, search disabled: %v", err)
	}

	// stripe
	gw := gateway.New(gateway.Config{
		SecretKey:            os.Getenv("STRIPE_SECRET_KEY"),
		WebhookSecret:        os.Getenv("STRIPE_WEBHOOK_SECRET"),
		ConnectWebhookSecret: os.Getenv("STRIPE_CONNECT_WEBHOOK_SECRET"),
		SuccessURL:           getEnv("CHECKOUT_SUCCESS_URL", "http://localhost:3000/checkout/success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:            getEnv("CHECKOUT_CANCEL_URL", "http://localhost:3000/checkout/cancel"),
	})

	// reconciliation core
	registry := provision.Registry{
		model.KindCourse:  &provision.CourseProvisioner{DB: DB},
		model.KindArtwork: &provision.ArtworkProvisioner{DB: DB},
		model.KindBook:    &provision.BookProvisioner{DB: DB},
		model.KindProduct: &provision.ProductProvisioner{DB: DB},
	}
	reconciler := reconcile.New(&reconcile.GormStore{DB: DB}, gw, registry, producer)

	// ======================
	// HTTP SERVER (Fiber)
	// ======================
	app := fiber.New()
	app.Use(logger.New())

	routes.Register(
		app,
		middleware.AuthRequired(getEnv("JWT_SECRET", "secret")),
		&controller.WebhookController{Gateway: gw, Reconciler: reconciler},
		&controller.CheckoutController{DB: DB, Gateway: gw, Reconciler: reconciler},
		&controller.CatalogController{DB: DB, Indexer: indexer},
		&controller.AdminController{DB: DB},
	)

	port := getEnv("PORT", "3000")
	log.Println("HTTP server running on port " + port)
	if err := app.Listen(":" + port); err != nil {
		log.Fatal("fiber error:", err)
	}
}

func getEnv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}
