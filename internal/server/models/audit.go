package models

import (
	"encoding/json"
	"time"
)

// AuditLog is one recorded API call. Entries are written once and never
// updated by the application.
type AuditLog struct {
	ID             string          `json:"id"`
	UserID         *string         `json:"userId"`
	UserName       *string         `json:"userName,omitempty"`
	UserEmail      *string         `json:"userEmail,omitempty"`
	Endpoint       string          `json:"endpoint"`
	Method         string          `json:"method"`
	RequestBody    json.RawMessage `json:"requestBody"`
	ResponseStatus int             `json:"responseStatus"`
	IPAddress      *string         `json:"ipAddress"`
	UserAgent      *string         `json:"userAgent"`
	Timestamp      time.Time       `json:"timestamp"`
}

// AuditLogFilter selects a page of audit entries. Zero values do not filter.
type AuditLogFilter struct {
	Page
	UserID         string
	Endpoint       string
	Method         string
	ResponseStatus int
	StartDate      *time.Time
	EndDate        *time.Time
	SortBy         string
	SortOrder      SortOrder
}

type AuditLogPage struct {
	AuditLogs  []AuditLog `json:"auditLogs"`
	TotalLogs  int        `json:"totalLogs"`
	Page       int        `json:"page"`
	Limit      int        `json:"limit"`
	TotalPages int        `json:"totalPages"`
}

func NewAuditLogPage(logs []AuditLog, info PageInfo) *AuditLogPage {
	return &AuditLogPage{
		AuditLogs:  logs,
		TotalLogs:  info.Total,
		Page:       info.Page,
		Limit:      info.Limit,
		TotalPages: info.TotalPages,
	}
}
