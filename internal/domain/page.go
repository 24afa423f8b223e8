package domain

// PageRequest selects one page of a listing. Page is zero-based.
type PageRequest struct {
	Page int
	Size int
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Normalized clamps the request into valid bounds.
func (p PageRequest) Normalized() PageRequest {
	if p.Page < 0 {
		p.Page = 0
	}
	if p.Size <= 0 {
		p.Size = defaultPageSize
	}
	if p.Size > maxPageSize {
		p.Size = maxPageSize
	}
	return p
}

// Offset returns the row offset for this page.
func (p PageRequest) Offset() int {
	return p.Page * p.Size
}

// Page is one page of results plus the totals needed by paging clients.
type Page[T any] struct {
	Items      []T
	Page       int
	Size       int
	TotalItems int64
	TotalPages int
}

// NewPage assembles a page envelope, deriving TotalPages from the totals.
func NewPage[T any](items []T, req PageRequest, totalItems int64) Page[T] {
	totalPages := 0
	if req.Size > 0 {
		totalPages = int((totalItems + int64(req.Size) - 1) / int64(req.Size))
	}

	return Page[T]{
		Items:      items,
		Page:       req.Page,
		Size:       req.Size,
		TotalItems: totalItems,
		TotalPages: totalPages,
	}
}
