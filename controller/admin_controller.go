package controller

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"artmarket-service/model"
)

// AdminController surfaces reconciliation alerts: held-but-unresolved
// authorizations that need a human.
type AdminController struct {
	DB *gorm.DB
}

func (ac *AdminController) ListAlerts(c *fiber.Ctx) error {
	var alerts []model.ReconcileAlert
	q := ac.DB.Order("created_at DESC")
	if c.Query("resolved") == "" {
		q = q.Where("resolved = ?", false)
	}
	q.Find(&alerts)

	if alerts == nil {
		alerts = []model.ReconcileAlert{}
	}
	return c.JSON(alerts)
}

func (ac *AdminController) ResolveAlert(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid id"})
	}

	res := ac.DB.Model(&model.ReconcileAlert{}).Where("id = ?", id).Update("resolved", true)
	if res.Error != nil {
		return c.Status(500).JSON(fiber.Map{"error": "update failed"})
	}
	if res.RowsAffected == 0 {
		return c.Status(404).JSON(fiber.Map{"error": "alert not found"})
	}
	return c.JSON(fiber.Map{"resolved": true})
}
