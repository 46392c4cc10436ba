// Package transport exposes the mapping, process, view definition, metadata
// and search operations as NATS request/reply subjects.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/wehubfusion/Ariadne/pkg/concurrency"
	sdkerrors "github.com/wehubfusion/Ariadne/pkg/errors"
	"github.com/wehubfusion/Ariadne/pkg/mappers"
	"github.com/wehubfusion/Ariadne/pkg/metadata"
	"github.com/wehubfusion/Ariadne/pkg/process"
	"github.com/wehubfusion/Ariadne/pkg/record"
	"github.com/wehubfusion/Ariadne/pkg/viewdefs"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

// Subject suffixes, appended to the configured prefix.
const (
	SubjectProcessRun       = "process.run"
	SubjectRecordToInternal = "record.to-internal"
	SubjectRecordToExternal = "record.to-external"
	SubjectViewDefsGet      = "viewdefs.get"
	SubjectMetadataResolve  = "metadata.resolve"
	SubjectSearchRoute      = "search.route"
)

// HeaderRequestID carries the request id on requests and replies.
const HeaderRequestID = "Ariadne-Request-Id"

// DefaultRequestTimeout bounds a request when none is configured.
const DefaultRequestTimeout = 30 * time.Second

var tracer = otel.Tracer("ariadne/transport")

// ProcessRunner runs backend processes.
type ProcessRunner interface {
	Run(ctx context.Context, p *process.Process) (*process.Process, error)
}

// RecordMapper maps records between representations.
type RecordMapper interface {
	Run(ctx context.Context, rec *record.Record, direction mappers.Direction) error
}

// ViewDefinitions serves assembled view definitions.
type ViewDefinitions interface {
	GetViewDefs(ctx context.Context, module string, views []string) (*viewdefs.ViewDefinition, error)
}

// MetadataResolver resolves route metadata.
type MetadataResolver interface {
	Resolve(ctx context.Context, req metadata.Request) (*metadata.Result, error)
}

// Services are the operations the server exposes. Nil services are not subscribed.
type Services struct {
	Processes ProcessRunner
	Mapper    RecordMapper
	ViewDefs  ViewDefinitions
	Metadata  MetadataResolver
}

// Conn is the subset of *nats.Conn the server uses.
type Conn interface {
	QueueSubscribe(subj, queue string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// Config configures a Server.
type Config struct {
	SubjectPrefix  string
	QueueGroup     string
	RequestTimeout time.Duration
}

// Request is one decoded transport request.
type Request struct {
	ID      string
	Subject string
	Data    []byte
}

// ErrorBody is the reply sent for failed requests.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes a failed request.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Server dispatches NATS requests to services.
type Server struct {
	cfg     Config
	routes  map[string]HandlerFunc
	limiter *concurrency.Limiter
	logger  *zap.Logger

	mu   sync.Mutex
	subs []*nats.Subscription
}

// NewServer builds the route table. A nil limiter is replaced by one
// configured from the environment.
func NewServer(cfg Config, svcs Services, limiter *concurrency.Limiter, logger *zap.Logger) (*Server, error) {
	cfg.SubjectPrefix = strings.Trim(strings.TrimSpace(cfg.SubjectPrefix), ".")
	if cfg.SubjectPrefix == "" {
		return nil, fmt.Errorf("subject prefix is required")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if limiter == nil {
		limiter = concurrency.LoadConfig().NewLimiter()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		cfg:     cfg,
		routes:  make(map[string]HandlerFunc),
		limiter: limiter,
		logger:  logger,
	}

	wrap := Chain(
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
		TimeoutMiddleware(cfg.RequestTimeout),
	)
	if svcs.Processes != nil {
		s.routes[s.subject(SubjectProcessRun)] = wrap(processRun(svcs.Processes))
	}
	if svcs.Mapper != nil {
		s.routes[s.subject(SubjectRecordToInternal)] = wrap(mapRecord(svcs.Mapper, mappers.ToInternal))
		s.routes[s.subject(SubjectRecordToExternal)] = wrap(mapRecord(svcs.Mapper, mappers.ToExternal))
	}
	if svcs.ViewDefs != nil {
		s.routes[s.subject(SubjectViewDefsGet)] = wrap(getViewDefs(svcs.ViewDefs))
	}
	if svcs.Metadata != nil {
		s.routes[s.subject(SubjectMetadataResolve)] = wrap(resolveMetadata(svcs.Metadata))
	}
	s.routes[s.subject(SubjectSearchRoute)] = wrap(searchRoute)

	return s, nil
}

func (s *Server) subject(suffix string) string {
	return s.cfg.SubjectPrefix + "." + suffix
}

// Subjects returns the served subjects in sorted order.
func (s *Server) Subjects() []string {
	out := make([]string, 0, len(s.routes))
	for subj := range s.routes {
		out = append(out, subj)
	}
	sort.Strings(out)
	return out
}

// Start subscribes every route on conn within the configured queue group.
func (s *Server) Start(conn Conn) error {
	if conn == nil {
		return fmt.Errorf("connection is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, subj := range s.Subjects() {
		sub, err := conn.QueueSubscribe(subj, s.cfg.QueueGroup, s.handleMsg)
		if err != nil {
			s.unsubscribeLocked()
			return fmt.Errorf("failed to subscribe to %s: %w", subj, err)
		}
		s.subs = append(s.subs, sub)
		s.logger.Info("Subscribed", zap.String("subject", subj), zap.String("queue", s.cfg.QueueGroup))
	}
	return nil
}

// Stop drains the subscriptions.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unsubscribeLocked()
}

func (s *Server) unsubscribeLocked() error {
	var errs []error
	for _, sub := range s.subs {
		if err := sub.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			errs = append(errs, err)
		}
	}
	s.subs = nil
	return errors.Join(errs...)
}

// handleMsg hands msg to the limiter so subscriptions are served concurrently.
func (s *Server) handleMsg(msg *nats.Msg) {
	ctx := context.Background()
	if msg.Header != nil {
		ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(msg.Header))
	}
	id := requestID(msg.Header)

	err := s.limiter.Go(ctx, func() error {
		reply, internal := s.dispatch(ctx, id, msg.Subject, msg.Data)
		s.respond(msg, id, reply)
		return internal
	})
	if err != nil {
		s.logger.Warn("Request rejected by limiter",
			zap.String("subject", msg.Subject),
			zap.String("request_id", id),
			zap.Error(err))
		body, _ := json.Marshal(ErrorBody{Error: ErrorDetail{Code: "UNAVAILABLE", Message: err.Error()}})
		s.respond(msg, id, body)
	}
}

func (s *Server) respond(msg *nats.Msg, id string, body []byte) {
	if msg.Reply == "" {
		return
	}
	reply := nats.NewMsg(msg.Reply)
	reply.Header.Set(HeaderRequestID, id)
	reply.Data = body
	if err := msg.RespondMsg(reply); err != nil {
		s.logger.Error("Failed to send reply",
			zap.String("subject", msg.Subject),
			zap.String("request_id", id),
			zap.Error(err))
	}
}

// Dispatch serves one request and returns the JSON reply body.
func (s *Server) Dispatch(ctx context.Context, subject string, data []byte) []byte {
	body, _ := s.dispatch(ctx, uuid.NewString(), subject, data)
	return body
}

// dispatch returns the reply body and, for unexpected failures, the error so
// the limiter's breaker can count it.
func (s *Server) dispatch(ctx context.Context, id, subject string, data []byte) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "transport."+strings.TrimPrefix(subject, s.cfg.SubjectPrefix+"."))
	defer span.End()
	span.SetAttributes(
		attribute.String("messaging.destination", subject),
		attribute.String("request.id", id),
	)

	h, ok := s.routes[subject]
	if !ok {
		err := fmt.Errorf("no handler for subject %s: %w", subject, sdkerrors.ErrHandlerNotFound)
		span.SetStatus(codes.Error, "unknown subject")
		return errorBody(err), nil
	}

	reply, err := h(ctx, &Request{ID: id, Subject: subject, Data: data})
	if err == nil {
		var body []byte
		body, err = json.Marshal(reply)
		if err == nil {
			span.SetStatus(codes.Ok, "")
			return body, nil
		}
		err = fmt.Errorf("failed to encode reply: %w", err)
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if sdkerrors.Code(err) == "INTERNAL" {
		return errorBody(err), err
	}
	return errorBody(err), nil
}

func errorBody(err error) []byte {
	detail := ErrorDetail{Code: sdkerrors.Code(err), Message: err.Error()}
	var structured *sdkerrors.Error
	if errors.As(err, &structured) && structured.Message != "" {
		detail.Message = structured.Message
	}
	body, marshalErr := json.Marshal(ErrorBody{Error: detail})
	if marshalErr != nil {
		return []byte(`{"error":{"code":"INTERNAL","message":"failed to encode error"}}`)
	}
	return body
}

func requestID(h nats.Header) string {
	if h != nil {
		if id := strings.TrimSpace(h.Get(HeaderRequestID)); id != "" {
			return id
		}
	}
	return uuid.NewString()
}

func decode(req *Request, v interface{}) error {
	if len(req.Data) == 0 {
		return fmt.Errorf("empty request body: %w", sdkerrors.ErrInvalidRequest)
	}
	if err := json.Unmarshal(req.Data, v); err != nil {
		return fmt.Errorf("%v: %w", err, sdkerrors.ErrInvalidRequest)
	}
	return nil
}
