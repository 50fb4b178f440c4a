// services/product_service.go
package services

import (
	"errors"
	"log"

	"stream-coin-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProductService mirrors the purchasable coin packages. The payment
// confirmation flow resolves product refs against it to size new lots.
type ProductService struct {
	DB *gorm.DB
}

func NewProductService(db *gorm.DB) *ProductService {
	return &ProductService{DB: db}
}

// defaultProducts seed the catalog on an empty database
var defaultProducts = []models.CoinProduct{
	{Name: "Starter Pack 100", BaseCoins: 100, BonusCoins: 0, Price: 1000},
	{Name: "Value Pack 550", BaseCoins: 500, BonusCoins: 50, Price: 5000},
	{Name: "Mega Pack 1200", BaseCoins: 1000, BonusCoins: 200, Price: 10000},
}

// SeedDefaults inserts the default coin packs, skipping slugs that already exist
func (s *ProductService) SeedDefaults() error {
	products := make([]models.CoinProduct, len(defaultProducts))
	for i, p := range defaultProducts {
		p.ID = uuid.NewString()
		p.Slug = slug.Make(p.Name)
		p.TotalCoins = p.BaseCoins + p.BonusCoins
		p.Active = true
		products[i] = p
	}
	return s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "slug"}},
		DoNothing: true,
	}).Create(&products).Error
}

// GetByRef resolves a product reference, raw id or slug, to the catalog row.
func (s *ProductService) GetByRef(ref string) (*models.CoinProduct, error) {
	query := s.DB.Where("slug = ?", slug.Make(ref))
	if _, err := uuid.Parse(ref); err == nil {
		query = s.DB.Where("id = ?", ref)
	}

	var product models.CoinProduct
	if err := query.First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// --- Handlers ---

// ListProducts returns the active coin packs
func (s *ProductService) ListProducts(c *fiber.Ctx) error {
	var products []models.CoinProduct
	if err := s.DB.Where("active = ?", true).Order("price asc").Find(&products).Error; err != nil {
		log.Printf("DB Error fetching products: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch products"})
	}
	return c.JSON(products)
}

// CreateProduct adds a coin pack to the catalog (Admin only)
func (s *ProductService) CreateProduct(c *fiber.Ctx) error {
	var req struct {
		Name       string `json:"name"`
		BaseCoins  int64  `json:"base_coins"`
		BonusCoins int64  `json:"bonus_coins"`
		Price      int64  `json:"price"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Name == "" || req.BaseCoins <= 0 || req.Price <= 0 || req.BonusCoins < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "name, positive base_coins and price are required"})
	}

	product := models.CoinProduct{
		ID:         uuid.NewString(),
		Name:       req.Name,
		Slug:       slug.Make(req.Name),
		BaseCoins:  req.BaseCoins,
		BonusCoins: req.BonusCoins,
		TotalCoins: req.BaseCoins + req.BonusCoins,
		Price:      req.Price,
		Active:     true,
	}
	if err := s.DB.Create(&product).Error; err != nil {
		log.Printf("DB Error creating product: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create product"})
	}
	return c.Status(fiber.StatusCreated).JSON(product)
}

// DeactivateProduct retires a coin pack without deleting purchase history refs
func (s *ProductService) DeactivateProduct(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid product ID"})
	}

	var product models.CoinProduct
	if err := s.DB.First(&product, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Product not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	if err := s.DB.Model(&product).Update("active", false).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to deactivate product"})
	}
	return c.JSON(fiber.Map{"message": "Product deactivated", "product": product})
}
