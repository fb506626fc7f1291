package routes

import (
	"github.com/gofiber/fiber/v2"

	"artmarket-service/controller"
	"artmarket-service/middleware"
)

func Register(
	app *fiber.App,
	authMiddleware fiber.Handler,
	webhook *controller.WebhookController,
	checkout *controller.CheckoutController,
	catalog *controller.CatalogController,
	admin *controller.AdminController,
) {
	api := app.Group("/api")

	// =========================
	// WEBHOOK (no auth, stripe signs)
	// =========================
	api.Post("/webhook/stripe", webhook.HandleStripe)

	// =========================
	// CHECKOUT
	// =========================
	co := api.Group("/checkout")
	co.Post("/verify", authMiddleware, checkout.Verify)
	co.Post("/capture", authMiddleware, checkout.Capture)
	co.Post("/:kind/:id", authMiddleware, checkout.Create)

	api.Post("/donate", authMiddleware, checkout.Donate)

	// =========================
	// CATALOG
	// =========================
	courses := api.Group("/courses")
	courses.Get("/", catalog.ListCourses)
	courses.Get("/:id", catalog.GetCourse)
	courses.Post("/", authMiddleware, middleware.RoleRequired("artist", "admin"), catalog.CreateCourse)

	artworks := api.Group("/artworks")
	artworks.Get("/", catalog.ListArtworks)
	artworks.Get("/:id", catalog.GetArtwork)
	artworks.Post("/", authMiddleware, middleware.RoleRequired("artist", "admin"), catalog.CreateArtwork)
	artworks.Delete("/:id", authMiddleware, middleware.RoleRequired("artist", "admin"), catalog.DeleteArtwork)

	books := api.Group("/books")
	books.Get("/", catalog.ListBooks)
	books.Get("/:id", catalog.GetBook)
	books.Post("/", authMiddleware, middleware.RoleRequired("artist", "admin"), catalog.CreateBook)

	products := api.Group("/products")
	products.Get("/", catalog.ListProducts)
	products.Get("/:id", catalog.GetProduct)
	products.Post("/", authMiddleware, middleware.RoleRequired("artist", "admin"), catalog.CreateProduct)

	app.Get("/search", catalog.Search)

	// =========================
	// ADMIN
	// =========================
	alerts := api.Group("/admin/alerts", authMiddleware, middleware.RoleRequired("admin"))
	alerts.Get("/", admin.ListAlerts)
	alerts.Post("/:id/resolve", admin.ResolveAlert)
}
