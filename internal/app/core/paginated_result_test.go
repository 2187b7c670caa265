package core_test

import (
	"fabtracker/internal/app/core"
	"testing"
)

func TestPaginatedResult(t *testing.T) {
	items := []string{
		"one",
		"two",
		"three",
	}

	var result core.PaginatedResult[string]

	result = core.NewPaginatedResult(items, 1, 10, 800)
	if result.PerPage != 10 {
		t.Errorf("Invalid per page, got: %d, instead of: %d.", result.PerPage, 10)
	}

	if result.Total != 800 {
		t.Errorf("Invalid total, got: %d, instead of: %d.", result.Total, 800)
	}

	if result.LastPage != 80 {
		t.Errorf("Invalid last page, got: %d, instead of: %d.", result.LastPage, 80)
	}

	result = core.NewPaginatedResult(items, 80, 10, 800)
	if !result.IsLastPage() {
		t.Errorf("Not last page")
	}

	result = core.NewPaginatedResult([]string{}, 1, 0, 0)
	if result.PerPage != core.PerPageDefault || !result.IsLastPage() {
		t.Errorf("Empty result must be a single default-sized page")
	}
}

func TestPageOffset(t *testing.T) {
	page, offset := core.PageOffset(3, 10)
	if page != 3 || offset != 20 {
		t.Errorf("Invalid offset, got: %d/%d, instead of: 3/20.", page, offset)
	}

	page, offset = core.PageOffset(0, 10)
	if page != 1 || offset != 0 {
		t.Errorf("Invalid offset, got: %d/%d, instead of: 1/0.", page, offset)
	}
}
