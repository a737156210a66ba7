package storage

import (
	"skillswap/backend/internal/apperr"
	"skillswap/backend/internal/config"
	"skillswap/backend/internal/models"
)

// PageInfo describes where a message window sits in the session log.
type PageInfo struct {
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
	// HasPrev reports an older page (page+1) with at least one message.
	HasPrev bool `json:"hasPrev"`
	// HasNext reports a newer page (page-1).
	HasNext bool `json:"hasNext"`
}

// MessagePage is one window of a session log, oldest first.
type MessagePage struct {
	Messages []models.Message
	Info     PageInfo
	// NewlyRead counts messages from the counterpart that this fetch marked read.
	NewlyRead int
	// ReadUpToSeq is the highest sequence number marked read by this fetch.
	ReadUpToSeq int64
}

// Window returns the zero-based half-open range [start, end) of positions for
// page (1-indexed) of size over a log of total messages, newest page first.
// A page past the oldest message yields an empty range.
func Window(total int64, page, size int) (start, end int64) {
	p, l := int64(page), int64(size)
	end = total - (p-1)*l
	start = total - p*l
	if start < 0 {
		start = 0
	}
	if end < 0 {
		end = 0
	}
	return start, end
}

// NewPageInfo computes the flags for a page.
func NewPageInfo(total int64, page, size int) PageInfo {
	start, _ := Window(total, page, size)
	return PageInfo{
		Page:     page,
		PageSize: size,
		Total:    total,
		HasPrev:  start > 0,
		HasNext:  page > 1 && int64(page-2)*int64(size) < total,
	}
}

// NormalizePage applies defaults and bounds to caller paging input.
func NormalizePage(page, size int) (int, int, error) {
	if page == 0 {
		page = 1
	}
	if size == 0 {
		size = config.DefaultPageSize
	}
	if page < 1 {
		return 0, 0, apperr.New(apperr.ErrInvalidInput, "paging", "page must be at least 1")
	}
	if size < 1 {
		return 0, 0, apperr.New(apperr.ErrInvalidInput, "paging", "pageSize must be at least 1")
	}
	if size > config.MaxPageSize {
		size = config.MaxPageSize
	}
	return page, size, nil
}
