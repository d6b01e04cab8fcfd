package httpapi

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
)

const maxPageSize = 100

// pageInfo describes one window of a collection. Pages are numbered from 0.
type pageInfo struct {
	Size          int `json:"size"`
	TotalElements int `json:"total_elements"`
	TotalPages    int `json:"total_pages"`
	Number        int `json:"number"`
}

// pageBounds reads the optional page and size query parameters and returns the
// slice bounds for a collection of total items. Without a size parameter the
// whole collection is one page and info is nil.
func pageBounds(c *fiber.Ctx, total int) (lo, hi int, info *pageInfo, err error) {
	if c.Query("size") == "" {
		return 0, total, nil, nil
	}

	size, err := strconv.Atoi(c.Query("size"))
	if err != nil || size < 1 {
		return 0, 0, nil, badRequest("size must be a positive integer")
	}
	if size > maxPageSize {
		size = maxPageSize
	}

	page := 0
	if raw := c.Query("page"); raw != "" {
		page, err = strconv.Atoi(raw)
		if err != nil || page < 0 {
			return 0, 0, nil, badRequest("page must be a non-negative integer")
		}
	}

	info = &pageInfo{
		Size:          size,
		TotalElements: total,
		TotalPages:    (total + size - 1) / size,
		Number:        page,
	}

	lo = page * size
	if lo > total {
		lo = total
	}
	hi = lo + size
	if hi > total {
		hi = total
	}
	return lo, hi, info, nil
}
