package api

import (
	"net/http"
	"strconv"
)

// pageParams holds parsed pagination values from query params.
type pageParams struct {
	Page   int
	Limit  int
	Offset int
}

// pageMeta contains pagination metadata for the response.
type pageMeta struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasMore    bool `json:"has_more"`
}

// page wraps a list with pagination metadata.
type page[T any] struct {
	Data       []T      `json:"data"`
	Pagination pageMeta `json:"pagination"`
}

// parsePage extracts page and limit from query params. defaultLimit applies
// when no limit is given; maxLimit caps it.
func parsePage(r *http.Request, defaultLimit, maxLimit int) pageParams {
	p, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	if p < 1 {
		p = 1
	}
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return pageParams{Page: p, Limit: limit, Offset: (p - 1) * limit}
}

func newPage[T any](data []T, p pageParams, total int) page[T] {
	if data == nil {
		data = []T{}
	}
	totalPages := (total + p.Limit - 1) / p.Limit
	if totalPages < 1 {
		totalPages = 1
	}
	return page[T]{
		Data: data,
		Pagination: pageMeta{
			Page:       p.Page,
			Limit:      p.Limit,
			Total:      total,
			TotalPages: totalPages,
			HasMore:    p.Page < totalPages,
		},
	}
}
