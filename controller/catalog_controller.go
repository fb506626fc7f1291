package controller

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"artmarket-service/cache"
	"artmarket-service/model"
	"artmarket-service/search"
)

// CatalogController is the thin CRUD glue over the purchasable catalog.
// Lists are cached in redis and invalidated on every write; artworks,
// products and courses are mirrored into elasticsearch.
type CatalogController struct {
	DB      *gorm.DB
	Indexer *search.Indexer
}

// ===== courses =====

func (cc *CatalogController) ListCourses(c *fiber.Ctx) error {
	var courses []model.Course
	if cached, ok := getCachedList("courses:all", &courses); ok {
		return c.JSON(cached)
	}
	cc.DB.Order("created_at DESC").Find(&courses)
	putCachedList("courses:all", courses)
	return c.JSON(courses)
}

func (cc *CatalogController) GetCourse(c *fiber.Ctx) error {
	id, _ := strconv.Atoi(c.Params("id"))
	var course model.Course
	if err := cc.DB.First(&course, id).Error; err != nil {
		return c.Status(404).JSON(fiber.Map{"error": "not found"})
	}
	return c.JSON(course)
}

func (cc *CatalogController) CreateCourse(c *fiber.Ctx) error {
	var in model.Course
	if err := c.BodyParser(&in); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid payload"})
	}
	in.ArtistID = c.Locals("user_id").(uint)
	in.CreatedAt = time.Now()

	if err := cc.DB.Create(&in).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "create failed"})
	}

	dropCache("courses:all")
	cc.Indexer.IndexCourse(in)
	return c.Status(201).JSON(in)
}

// ===== artworks =====

func (cc *CatalogController) ListArtworks(c *fiber.Ctx) error {
	var artworks []model.Artwork
	if cached, ok := getCachedList("artworks:all", &artworks); ok {
		return c.JSON(cached)
	}
	cc.DB.Order("created_at DESC").Find(&artworks)
	putCachedList("artworks:all", artworks)
	return c.JSON(artworks)
}

func (cc *CatalogController) GetArtwork(c *fiber.Ctx) error {
	id, _ := strconv.Atoi(c.Params("id"))
	var art model.Artwork
	if err := cc.DB.First(&art, id).Error; err != nil {
		return c.Status(404).JSON(fiber.Map{"error": "not found"})
	}
	return c.JSON(art)
}

func (cc *CatalogController) CreateArtwork(c *fiber.Ctx) error {
	var in model.Artwork
	if err := c.BodyParser(&in); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid payload"})
	}
	in.ArtistID = c.Locals("user_id").(uint)
	in.Sold = false
	in.CreatedAt = time.Now()

	if err := cc.DB.Create(&in).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "create failed"})
	}

	dropCache("artworks:all")
	cc.Indexer.IndexArtwork(in)
	return c.Status(201).JSON(in)
}

func (cc *CatalogController) DeleteArtwork(c *fiber.Ctx) error {
	id, _ := strconv.Atoi(c.Params("id"))
	var art model.Artwork
	if err := cc.DB.First(&art, id).Error; err != nil {
		return c.Status(404).JSON(fiber.Map{"error": "not found"})
	}
	if art.Sold {
		return c.Status(409).JSON(fiber.Map{"error": "sold artwork cannot be deleted"})
	}
	if err := cc.DB.Delete(&art).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "delete failed"})
	}

	dropCache("artworks:all")
	cc.Indexer.Delete("artworks", c.Params("id"))
	return c.SendStatus(204)
}

// ===== books =====

func (cc *CatalogController) ListBooks(c *fiber.Ctx) error {
	var books []model.Book
	if cached, ok := getCachedList("books:all", &books); ok {
		return c.JSON(cached)
	}
	cc.DB.Order("created_at DESC").Find(&books)
	putCachedList("books:all", books)
	return c.JSON(books)
}

func (cc *CatalogController) GetBook(c *fiber.Ctx) error {
	id, _ := strconv.Atoi(c.Params("id"))
	var book model.Book
	if err := cc.DB.First(&book, id).Error; err != nil {
		return c.Status(404).JSON(fiber.Map{"error": "not found"})
	}
	return c.JSON(book)
}

func (cc *CatalogController) CreateBook(c *fiber.Ctx) error {
	var in model.Book
	if err := c.BodyParser(&in); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid payload"})
	}
	in.ArtistID = c.Locals("user_id").(uint)
	in.Sold = false
	in.CreatedAt = time.Now()

	if err := cc.DB.Create(&in).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "create failed"})
	}

	dropCache("books:all")
	cc.Indexer.IndexBook(in)
	return c.Status(201).JSON(in)
}

// ===== products =====

func (cc *CatalogController) ListProducts(c *fiber.Ctx) error {
	var products []model.Product
	if cached, ok := getCachedList("products:all", &products); ok {
		return c.JSON(cached)
	}
	cc.DB.Order("created_at DESC").Find(&products)
	putCachedList("products:all", products)
	return c.JSON(products)
}

func (cc *CatalogController) GetProduct(c *fiber.Ctx) error {
	id, _ := strconv.Atoi(c.Params("id"))
	var p model.Product
	if err := cc.DB.First(&p, id).Error; err != nil {
		return c.Status(404).JSON(fiber.Map{"error": "not found"})
	}
	return c.JSON(p)
}

func (cc *CatalogController) CreateProduct(c *fiber.Ctx) error {
	var in model.Product
	if err := c.BodyParser(&in); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid payload"})
	}
	if in.Stock < model.StockUnlimited {
		return c.Status(400).JSON(fiber.Map{"error": "invalid stock"})
	}
	in.SellerID = c.Locals("user_id").(uint)
	in.CreatedAt = time.Now()

	if err := cc.DB.Create(&in).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "create failed"})
	}

	dropCache("products:all")
	cc.Indexer.IndexProduct(in)
	return c.Status(201).JSON(in)
}

// ===== search =====

func (cc *CatalogController) Search(c *fiber.Ctx) error {
	query := c.Query("q")
	if query == "" {
		return c.Status(400).JSON(fiber.Map{"error": "query parameter 'q' is required"})
	}
	index := c.Query("index", "artworks")

	hits, err := cc.Indexer.Search(index, query)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "search failed"})
	}
	return c.JSON(fiber.Map{"hits": hits})
}

// ===== cache helpers =====

func getCachedList(key string, dst interface{}) (interface{}, bool) {
	if cache.Redis == nil {
		return nil, false
	}
	cached, err := cache.Redis.Get(cache.Ctx, key).Result()
	if err != nil {
		return nil, false
	}
	if err := json.Unmarshal([]byte(cached), dst); err != nil {
		return nil, false
	}
	return dst, true
}

func putCachedList(key string, val interface{}) {
	if cache.Redis == nil {
		return
	}
	js, err := json.Marshal(val)
	if err != nil {
		return
	}
	cache.Redis.Set(cache.Ctx, key, js, 5*time.Minute)
}

func dropCache(keys ...string) {
	if cache.Redis == nil {
		return
	}
	cache.Redis.Del(cache.Ctx, keys...)
}
