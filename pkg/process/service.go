package process

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/getsentry/sentry-go"
	sdkerrors "github.com/wehubfusion/Ariadne/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("ariadne/process")

// Option configures a Service.
type Option func(*Service)

// WithAccessChecker enables role and ACL checks before handlers run.
func WithAccessChecker(checker AccessChecker) Option {
	return func(s *Service) {
		s.checker = checker
	}
}

// WithSentry reports unexpected handler errors to hub.
func WithSentry(hub *sentry.Hub) Option {
	return func(s *Service) {
		s.hub = hub
	}
}

// Service dispatches processes to the handler registered for their type.
type Service struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	checker  AccessChecker
	hub      *sentry.Hub
	logger   *zap.Logger
}

// NewService creates an empty process service.
func NewService(logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		handlers: make(map[string]Handler),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds a handler. Registering a second handler for the same process
// type is an error.
func (s *Service) Register(h Handler) error {
	if h == nil {
		return fmt.Errorf("handler is required")
	}
	processType := h.ProcessType()
	if processType == "" {
		return fmt.Errorf("handler %s has no process type", h.HandlerKey())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.handlers[processType]; exists {
		return fmt.Errorf("handler for process type %s already registered", processType)
	}
	s.handlers[processType] = h
	return nil
}

// Types returns the registered process types in sorted order.
func (s *Service) Types() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.handlers))
	for t := range s.handlers {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Run configures, validates, authorizes and runs p with its handler. The
// returned process carries the handler's status and messages.
func (s *Service) Run(ctx context.Context, p *Process) (*Process, error) {
	if p == nil {
		return nil, fmt.Errorf("process is required: %w", sdkerrors.ErrInvalidRequest)
	}

	ctx, span := tracer.Start(ctx, "process.run")
	defer span.End()
	span.SetAttributes(attribute.String("process.type", p.Type))

	s.mu.RLock()
	h, ok := s.handlers[p.Type]
	s.mu.RUnlock()
	if !ok {
		err := fmt.Errorf("process type %q: %w", p.Type, sdkerrors.ErrHandlerNotFound)
		span.RecordError(err)
		span.SetStatus(codes.Error, "handler not found")
		return nil, err
	}

	h.Configure(p)

	if err := h.Validate(p); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		return nil, err
	}

	if s.checker != nil {
		if err := s.checker.Check(ctx, h.RequiredAuthRole(), h.RequiredACLs(p)); err != nil {
			if !errors.Is(err, sdkerrors.ErrAccessDenied) {
				err = fmt.Errorf("%v: %w", err, sdkerrors.ErrAccessDenied)
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, "access denied")
			return nil, err
		}
	}

	if err := h.Run(ctx, p); err != nil {
		s.logger.Error("Process failed",
			zap.String("process_type", p.Type),
			zap.String("handler", h.HandlerKey()),
			zap.Error(err))
		s.report(err, p)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("process %s: %w", p.Type, err)
	}

	span.SetAttributes(attribute.String("process.status", p.Status))
	span.SetStatus(codes.Ok, "")
	return p, nil
}

func (s *Service) report(err error, p *Process) {
	if s.hub == nil {
		return
	}
	s.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("process_type", p.Type)
		s.hub.CaptureException(err)
	})
}
