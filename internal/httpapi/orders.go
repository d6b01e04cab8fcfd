package httpapi

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/safar/shop-orders/internal/fulfillment"
	"github.com/safar/shop-orders/internal/models"
)

func parseID(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("id must be a positive integer")
	}
	return id, nil
}

// created answers a successful state change with the order and its location.
func created(c *fiber.Ctx, o *models.Order) error {
	c.Location(orderURL(c, o.ID))
	return c.Status(fiber.StatusCreated).JSON(toOrderResource(c, *o))
}

func (h *handler) listOrders(c *fiber.Ctx) error {
	orders, err := h.Orders.ListOrders(c.UserContext())
	if err != nil {
		return err
	}

	lo, hi, page, err := pageBounds(c, len(orders))
	if err != nil {
		return err
	}
	return c.JSON(orderCollection(c, orders[lo:hi], page))
}

func (h *handler) placeOrder(c *fiber.Ctx) error {
	var req fulfillment.PlaceOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest("body must be a JSON object with product_id and quantity")
	}

	order, err := h.Orders.PlaceOrder(c.UserContext(), req)
	if err != nil {
		return err
	}
	return created(c, order)
}

func (h *handler) findOrder(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}

	order, err := h.Orders.FindOrder(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(toOrderResource(c, *order))
}

func (h *handler) completeOrder(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}

	order, err := h.Orders.CompleteOrder(c.UserContext(), id)
	if err != nil {
		return err
	}
	return created(c, order)
}

func (h *handler) cancelOrder(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}

	order, err := h.Orders.CancelOrder(c.UserContext(), id)
	if err != nil {
		return err
	}
	return created(c, order)
}

func (h *handler) deleteOrder(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}

	if err := h.Orders.DeleteOrder(c.UserContext(), id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
