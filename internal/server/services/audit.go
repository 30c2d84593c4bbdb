package services

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/dbx"
	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/repomanager"
)

const defaultAuditWriteTimeout = 5 * time.Second

// AuditPolicy decides which request paths are recorded.
type AuditPolicy struct {
	Exclude []string
}

// Records reports whether path is outside every excluded prefix. A prefix
// matches itself and anything below it ("/health" covers "/health/db").
func (p AuditPolicy) Records(path string) bool {
	for _, prefix := range p.Exclude {
		prefix = strings.TrimRight(prefix, "/")
		if prefix == "" {
			continue
		}
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return false
		}
	}
	return true
}

// AuditService records API calls in the background and serves the audit
// trail to admins. Write failures are logged, never returned.
type AuditService struct {
	tx           dbx.Transactor
	repomanager  repomanager.RepositoryManager
	logger       logging.Logger
	writeTimeout time.Duration

	mu      sync.Mutex
	closed  bool
	pending sync.WaitGroup
}

func NewAuditService(tx dbx.Transactor, m repomanager.RepositoryManager, logger logging.Logger, writeTimeout time.Duration) *AuditService {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	if writeTimeout <= 0 {
		writeTimeout = defaultAuditWriteTimeout
	}
	return &AuditService{
		tx:           tx,
		repomanager:  m,
		logger:       logger.With("module", "audit"),
		writeTimeout: writeTimeout,
	}
}

// Capture schedules entry for writing and returns at once. The write gets
// its own timeout and survives cancellation of ctx.
func (s *AuditService) Capture(ctx context.Context, entry models.AuditLog) {
	entry.RequestBody = bytes.Clone(entry.RequestBody)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.logger.Warn(ctx, "audit entry dropped after shutdown", "endpoint", entry.Endpoint, "method", entry.Method)
		return
	}
	s.pending.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.pending.Done()

		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.writeTimeout)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				s.logger.Error(wctx, "audit write panicked", "panic", r, "endpoint", entry.Endpoint)
			}
		}()

		if err := s.repomanager.AuditLogs(s.tx.Conn()).Create(wctx, &entry); err != nil {
			s.logger.Error(wctx, "audit write failed", "error", err,
				"endpoint", entry.Endpoint, "method", entry.Method, "status", entry.ResponseStatus)
		}
	}()
}

// Wait blocks until every scheduled write has finished.
func (s *AuditService) Wait() {
	s.pending.Wait()
}

// Close stops accepting entries and waits for in-flight writes, or for ctx.
func (s *AuditService) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *AuditService) ListAuditLogs(ctx context.Context, filter models.AuditLogFilter) (*models.AuditLogPage, error) {
	filter.Page = filter.Page.Normalize()

	logs, total, err := s.repomanager.AuditLogs(s.tx.Conn()).List(ctx, filter)
	if err != nil {
		return nil, internalError(ctx, s.logger, "list audit logs", err)
	}
	return models.NewAuditLogPage(logs, models.NewPageInfo(filter.Page, total)), nil
}

func (s *AuditService) GetAuditLog(ctx context.Context, id string) (*models.AuditLog, error) {
	entry, err := s.repomanager.AuditLogs(s.tx.Conn()).FindByID(ctx, id)
	if err != nil {
		return nil, internalError(ctx, s.logger, "get audit log", err)
	}
	return entry, nil
}
