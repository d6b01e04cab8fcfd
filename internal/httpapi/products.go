package httpapi

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/safar/shop-orders/internal/catalog"
	"github.com/safar/shop-orders/internal/models"
	"github.com/shopspring/decimal"
)

type productRequest struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	Stock int             `json:"stock"`
}

func productSaved(c *fiber.Ctx, p *models.Product) error {
	c.Location(productURL(c, p.ID))
	return c.Status(fiber.StatusCreated).JSON(toProductResource(c, *p))
}

func (h *handler) listProducts(c *fiber.Ctx) error {
	products, err := h.Catalog.ListProducts(c.UserContext())
	if err != nil {
		return err
	}

	lo, hi, page, err := pageBounds(c, len(products))
	if err != nil {
		return err
	}
	return c.JSON(productCollection(c, products[lo:hi], page))
}

func (h *handler) addProduct(c *fiber.Ctx) error {
	var req productRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest("body must be a JSON object with name, price and stock")
	}

	p, err := h.Catalog.AddProduct(c.UserContext(), req.Name, req.Price, req.Stock)
	if err != nil {
		return err
	}
	return productSaved(c, p)
}

func (h *handler) findProduct(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}

	p, err := h.Catalog.FindProduct(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(toProductResource(c, *p))
}

func (h *handler) updateProduct(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}

	var upd catalog.ProductUpdate
	if err := c.BodyParser(&upd); err != nil {
		return badRequest("body must be a JSON object with name, price, stock or version")
	}

	p, err := h.Catalog.UpdateProduct(c.UserContext(), id, upd)
	if err != nil {
		return err
	}
	return productSaved(c, p)
}

func (h *handler) updateProductName(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}

	p, err := h.Catalog.UpdateProductName(c.UserContext(), id, c.Query("newName"))
	if err != nil {
		return err
	}
	return productSaved(c, p)
}

func (h *handler) updateProductPrice(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}

	price, err := decimal.NewFromString(c.Query("newPrice"))
	if err != nil {
		return badRequest("newPrice must be a decimal number")
	}

	p, err := h.Catalog.UpdateProductPrice(c.UserContext(), id, price)
	if err != nil {
		return err
	}
	return productSaved(c, p)
}

func (h *handler) updateProductStock(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}

	stock, err := strconv.Atoi(c.Query("newStock"))
	if err != nil {
		return badRequest("newStock must be an integer")
	}

	p, err := h.Catalog.UpdateProductStock(c.UserContext(), id, stock)
	if err != nil {
		return err
	}
	return productSaved(c, p)
}

func (h *handler) deleteProduct(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}

	if err := h.Catalog.DeleteProduct(c.UserContext(), id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
