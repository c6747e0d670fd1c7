package shared

// Paging limits for list queries
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Filter is the paging, ordering and free-text part of a list query.
// Which OrderBy values are honored is up to each repository.
type Filter struct {
	Page     int
	PageSize int
	OrderBy  string
	OrderDir string
	Search   string
}

// DefaultFilter returns the first page, newest first
func DefaultFilter() Filter {
	return Filter{
		Page:     1,
		PageSize: DefaultPageSize,
		OrderBy:  "created_at",
		OrderDir: "desc",
	}
}

// Window returns the row offset and limit of the page. Out-of-range values
// fall back to the first page and the default size.
func (f Filter) Window() (offset, limit int) {
	page, size := f.Page, f.PageSize
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return (page - 1) * size, size
}

// Paginated is one page of a list result
type Paginated[T any] struct {
	Items      []T   `json:"items"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalPages int   `json:"total_pages"`
}

// NewPaginated builds the page for filter. Items is never nil so it
// encodes as an empty JSON array.
func NewPaginated[T any](items []T, total int64, filter Filter) Paginated[T] {
	offset, limit := filter.Window()
	if items == nil {
		items = []T{}
	}
	return Paginated[T]{
		Items:      items,
		Total:      total,
		Page:       offset/limit + 1,
		PageSize:   limit,
		TotalPages: int((total + int64(limit) - 1) / int64(limit)),
	}
}
