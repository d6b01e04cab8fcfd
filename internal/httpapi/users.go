package httpapi

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/safar/shop-orders/internal/models"
)

type userRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func (h *handler) createUser(c *fiber.Ctx) error {
	var req userRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest("body must be a JSON object with username, password and role")
	}

	role := models.Role(strings.ToUpper(strings.TrimSpace(req.Role)))
	u, err := h.Auth.CreateUser(c.UserContext(), req.Username, req.Password, role)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(u)
}
