package resource

import (
	"math"
	"strconv"
	"strings"

	errspkg "github.com/drblury/resourceflow/internal/runtime/errors"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	DefaultSort     = "id"
)

// SortFields lists the properties a listing can be ordered by.
var SortFields = map[string]bool{
	"id":          true,
	"name":        true,
	"description": true,
	"status":      true,
	"createdAt":   true,
	"updatedAt":   true,
}

// Sort orders a listing by one property.
type Sort struct {
	Field      string
	Descending bool
}

// PageRequest selects a zero-based page of a listing.
type PageRequest struct {
	Page int
	Size int
	Sort Sort
}

// Page is one slice of an ordered result set.
type Page[T any] struct {
	Content       []T   `json:"content"`
	Page          int   `json:"page"`
	Size          int   `json:"size"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
	First         bool  `json:"first"`
	Last          bool  `json:"last"`
}

// NewPage wraps content with the paging metadata derived from req and total.
func NewPage[T any](content []T, req PageRequest, total int64) Page[T] {
	if content == nil {
		content = []T{}
	}
	pages := 0
	if req.Size > 0 {
		pages = int((total + int64(req.Size) - 1) / int64(req.Size))
	}
	return Page[T]{
		Content:       content,
		Page:          req.Page,
		Size:          req.Size,
		TotalElements: total,
		TotalPages:    pages,
		First:         req.Page == 0,
		Last:          req.Page >= pages-1,
	}
}

// Offset is the number of rows skipped before the page starts.
func (r PageRequest) Offset() int {
	return r.Page * r.Size
}

// Normalize applies defaults and bounds and rejects unknown sort fields.
func (r PageRequest) Normalize() (PageRequest, error) {
	if r.Page < 0 {
		r.Page = 0
	}
	if r.Size <= 0 {
		r.Size = DefaultPageSize
	}
	if r.Size > MaxPageSize {
		r.Size = MaxPageSize
	}
	// Offset()+Size must fit in an int.
	if maxPage := (math.MaxInt - r.Size) / r.Size; r.Page > maxPage {
		r.Page = maxPage
	}
	if r.Sort.Field == "" {
		r.Sort.Field = DefaultSort
	}
	if !SortFields[r.Sort.Field] {
		return PageRequest{}, errspkg.BadRequest("Unsupported sort property '%s'", r.Sort.Field)
	}
	return r, nil
}

// ParsePageRequest reads the page, size and sort query values. sort has the
// form "field" or "field,asc|desc".
func ParsePageRequest(page, size, sort string) (PageRequest, error) {
	var req PageRequest
	var err error

	if page = strings.TrimSpace(page); page != "" {
		if req.Page, err = strconv.Atoi(page); err != nil {
			return PageRequest{}, errspkg.BadRequest("Invalid page '%s'", page)
		}
	}
	if size = strings.TrimSpace(size); size != "" {
		if req.Size, err = strconv.Atoi(size); err != nil {
			return PageRequest{}, errspkg.BadRequest("Invalid size '%s'", size)
		}
	}
	if sort = strings.TrimSpace(sort); sort != "" {
		field, direction, _ := strings.Cut(sort, ",")
		req.Sort.Field = strings.TrimSpace(field)
		switch strings.ToLower(strings.TrimSpace(direction)) {
		case "", "asc":
		case "desc":
			req.Sort.Descending = true
		default:
			return PageRequest{}, errspkg.BadRequest("Invalid sort direction '%s'", direction)
		}
	}
	return req.Normalize()
}
