package dto

import "github.com/erp/invoicing/internal/domain/shared"

// Response is the body of every 2xx answer. Failures are ErrorEnvelopes.
type Response struct {
	Success bool  `json:"success"`
	Data    any   `json:"data,omitempty"`
	Meta    *Meta `json:"meta,omitempty"`
}

// Meta carries the counters of a paged list
type Meta struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalPages int   `json:"total_pages"`
}

func NewSuccessResponse(data any) Response {
	return Response{Success: true, Data: data}
}

// NewPageResponse puts the page items in data and the counters in meta.
// An empty page still renders "data": [].
func NewPageResponse[T any](page shared.Paginated[T]) Response {
	items := page.Items
	if items == nil {
		items = []T{}
	}
	return Response{
		Success: true,
		Data:    items,
		Meta: &Meta{
			Total:      page.Total,
			Page:       page.Page,
			PageSize:   page.PageSize,
			TotalPages: page.TotalPages,
		},
	}
}

// Path parameters

type IDRequest struct {
	ID string `uri:"id" binding:"required,uuid"`
}

type ClientIDRequest struct {
	ClientID int64 `uri:"client_id" binding:"required,gt=0"`
}

type NumberRequest struct {
	Number string `uri:"number" binding:"required,max=50"`
}
