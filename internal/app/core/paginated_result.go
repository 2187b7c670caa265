package core

import "math"

const PerPageDefault = 10

type PaginatedResult[T any] struct {
	Items       []T
	CurrentPage int
	LastPage    int
	PerPage     int
	Total       int
}

func NewPaginatedResult[T any](items []T, currentPage int, perPage int, total int) PaginatedResult[T] {
	if perPage < 1 {
		perPage = PerPageDefault
	}

	result := PaginatedResult[T]{
		Items:       items,
		CurrentPage: currentPage,
		LastPage:    currentPage,
		PerPage:     perPage,
		Total:       total,
	}

	result.LastPage = result.getLastPage()

	return result
}

// Normalize requested page number and return matching SQL offset.
func PageOffset(page int, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}

	if perPage < 1 {
		perPage = PerPageDefault
	}

	return page, (page - 1) * perPage
}

func (r *PaginatedResult[T]) getLastPage() int {
	if r.Total == 0 {
		return 1
	}

	return int(math.Ceil(float64(r.Total) / float64(r.PerPage)))
}

func (r *PaginatedResult[T]) IsLastPage() bool {
	return r.CurrentPage >= r.LastPage
}
