package httpapi

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/safar/shop-orders/internal/models"
)

type link struct {
	Href string `json:"href"`
}

type links map[string]link

type orderResource struct {
	models.Order
	Links links `json:"_links"`
}

type productResource struct {
	models.Product
	Links links `json:"_links"`
}

type collection struct {
	Embedded map[string]interface{} `json:"_embedded"`
	Links    links                  `json:"_links"`
	Page     *pageInfo              `json:"page,omitempty"`
}

func orderURL(c *fiber.Ctx, id int64) string {
	return fmt.Sprintf("%s/orders/%d", c.BaseURL(), id)
}

func productURL(c *fiber.Ctx, id int64) string {
	return fmt.Sprintf("%s/products/%d", c.BaseURL(), id)
}

// toOrderResource links the order to its product and, while it is open, to
// the transitions still available.
func toOrderResource(c *fiber.Ctx, o models.Order) orderResource {
	self := orderURL(c, o.ID)
	l := links{
		"self":    {Href: self},
		"orders":  {Href: c.BaseURL() + "/orders"},
		"product": {Href: productURL(c, o.ProductID)},
	}
	if o.Status == models.OrderStatusInProgress {
		l["complete"] = link{Href: self + "/complete"}
		l["cancel"] = link{Href: self + "/cancel"}
	}
	return orderResource{Order: o, Links: l}
}

func toProductResource(c *fiber.Ctx, p models.Product) productResource {
	return productResource{Product: p, Links: links{
		"self":     {Href: productURL(c, p.ID)},
		"products": {Href: c.BaseURL() + "/products"},
	}}
}

func orderCollection(c *fiber.Ctx, orders []models.Order, page *pageInfo) collection {
	resources := make([]orderResource, len(orders))
	for i, o := range orders {
		resources[i] = toOrderResource(c, o)
	}
	return collection{
		Embedded: map[string]interface{}{"orders": resources},
		Links:    links{"self": {Href: c.BaseURL() + "/orders"}},
		Page:     page,
	}
}

func productCollection(c *fiber.Ctx, products []models.Product, page *pageInfo) collection {
	resources := make([]productResource, len(products))
	for i, p := range products {
		resources[i] = toProductResource(c, p)
	}
	return collection{
		Embedded: map[string]interface{}{"products": resources},
		Links:    links{"self": {Href: c.BaseURL() + "/products"}},
		Page:     page,
	}
}
