// Package portal provisions customer portal users for CRM contacts.
package portal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/wehubfusion/Ariadne/pkg/concurrency"
	"github.com/wehubfusion/Ariadne/pkg/contacts"
	sdkerrors "github.com/wehubfusion/Ariadne/pkg/errors"
	"github.com/wehubfusion/Ariadne/pkg/process"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// ProcessType is the process type served by Handler.
	ProcessType = "record-create-portal-user"

	// MsgOptionsNotFound is returned by Validate when the contact id is missing.
	MsgOptionsNotFound = "Process options is not defined"

	DefaultTimeout = 10 * time.Second
)

// Message keys set on the process.
const (
	MsgAOPNotConfigured  = "LBL_ERROR_AOP_NOT_CONFIGURED"
	MsgPortalNotEnabled  = "LBL_ERROR_PORTAL_NOT_ENABLED"
	MsgAOPNotEnabled     = "LBL_ERROR_AOP_NOT_ENABLED"
	MsgPortalURLMissing  = "LBL_ERROR_JOOMLA_URL_MISSING"
	MsgContactIncomplete = "LBL_ERROR_CONTACT_ID_OR_EMAIL_EMPTY"
	MsgFailedToConnect   = "LBL_FAILED_TO_CONNECT_JOOMLA"
	MsgCreateFailed      = "LBL_CREATE_PORTAL_USER_FAILED"
	MsgCreateSucceeded   = "LBL_CREATE_PORTAL_USER_SUCCESS"
)

const (
	portalPath            = "/index.php"
	portalOption          = "com_advancedopenportal"
	portalTask            = "create"
	maxResponseBodyLength = 1 << 20
)

// AOPConfig is the advanced open portal section of the system configuration.
type AOPConfig struct {
	EnableAOP    bool   `yaml:"enable_aop" json:"enable_aop"`
	EnablePortal bool   `yaml:"enable_portal" json:"enable_portal"`
	JoomlaURL    string `yaml:"joomla_url" json:"joomla_url"`
}

// Config configures Handler. A nil AOP means the portal is not configured.
type Config struct {
	AOP      *AOPConfig
	Timeout  time.Duration
	Language string
}

// Translator resolves message keys for log output.
type Translator interface {
	Translate(ctx context.Context, lang, key string) string
}

// HTTPDoer performs outbound HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Option configures a Handler.
type Option func(*Handler)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(client HTTPDoer) Option {
	return func(h *Handler) {
		h.client = client
	}
}

// WithCircuitBreaker replaces the breaker fronting portal calls.
func WithCircuitBreaker(cb *concurrency.CircuitBreaker) Option {
	return func(h *Handler) {
		h.breaker = cb
	}
}

// WithTranslator localizes logged messages.
func WithTranslator(t Translator) Option {
	return func(h *Handler) {
		h.translator = t
	}
}

// WithLogger sets the handler logger.
func WithLogger(logger *zap.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// Handler creates a portal user for a contact by calling the portal's
// provisioning endpoint.
type Handler struct {
	cfg        Config
	contacts   contacts.Repository
	client     HTTPDoer
	breaker    *concurrency.CircuitBreaker
	translator Translator
	policy     *bluemonday.Policy
	logger     *zap.Logger
}

var _ process.Handler = (*Handler)(nil)

// NewHandler creates the handler.
func NewHandler(cfg Config, repo contacts.Repository, opts ...Option) (*Handler, error) {
	if repo == nil {
		return nil, fmt.Errorf("contact repository is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	h := &Handler{
		cfg:      cfg,
		contacts: repo,
		client:   &http.Client{Timeout: cfg.Timeout},
		breaker:  concurrency.NewCircuitBreaker(5, 30*time.Second),
		policy:   bluemonday.StrictPolicy(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// HandlerKey implements process.Handler.
func (h *Handler) HandlerKey() string { return ProcessType }

// ProcessType implements process.Handler.
func (h *Handler) ProcessType() string { return ProcessType }

// RequiredAuthRole implements process.Handler.
func (h *Handler) RequiredAuthRole() string { return "ROLE_USER" }

// RequiredACLs requires edit access on the contact.
func (h *Handler) RequiredACLs(p *process.Process) map[string][]process.ACL {
	return map[string][]process.ACL{
		p.Option("module"): {{Action: "edit", Record: p.Option("id")}},
	}
}

// Configure implements process.Handler.
func (h *Handler) Configure(p *process.Process) {
	p.ID = ProcessType
	p.Async = false
}

// Validate requires an id option.
func (h *Handler) Validate(p *process.Process) error {
	if len(p.Options) == 0 || p.Option("id") == "" {
		return sdkerrors.NewError("INVALID_OPTIONS", MsgOptionsNotFound, sdkerrors.ErrInvalidOptions)
	}
	return nil
}

type portalResponse struct {
	Success bool        `json:"success"`
	Error   interface{} `json:"error"`
}

// errorText renders the portal's error value as plain text. Tags are
// stripped and entities left by the sanitizer are decoded again.
func (h *Handler) errorText(v interface{}) string {
	var text string
	switch e := v.(type) {
	case nil:
		return ""
	case bool:
		if !e {
			return ""
		}
		text = "true"
	case string:
		text = e
	default:
		text = fmt.Sprint(e)
	}
	return strings.TrimSpace(html.UnescapeString(h.policy.Sanitize(text)))
}

// Run provisions the portal user. Configuration and remote failures are
// recorded on the process. Only an undecodable portal response is returned
// as an error.
func (h *Handler) Run(ctx context.Context, p *process.Process) error {
	aop := h.cfg.AOP
	switch {
	case aop == nil:
		return h.fail(ctx, p, MsgAOPNotConfigured, zap.WarnLevel)
	case !aop.EnablePortal:
		return h.fail(ctx, p, MsgPortalNotEnabled, zap.WarnLevel)
	case !aop.EnableAOP:
		return h.fail(ctx, p, MsgAOPNotEnabled, zap.WarnLevel)
	case strings.TrimSpace(aop.JoomlaURL) == "":
		return h.fail(ctx, p, MsgPortalURLMissing, zap.WarnLevel)
	}

	contact, err := h.contacts.GetContact(ctx, p.Option("id"))
	if err != nil && !sdkerrors.IsNotFound(err) {
		return fmt.Errorf("failed to load contact: %w", err)
	}
	if contact == nil || contact.ID == "" || contact.Email1 == "" {
		return h.fail(ctx, p, MsgContactIncomplete, zap.ErrorLevel)
	}

	body, err := h.call(ctx, aop.JoomlaURL, contact.ID)
	if err != nil {
		h.log(ctx, zap.ErrorLevel, MsgFailedToConnect, zap.Error(err))
		p.Fail(MsgCreateFailed)
		return nil
	}

	var resp portalResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("failed to decode portal response: %w", err)
	}

	if !resp.Success {
		msg := h.errorText(resp.Error)
		if msg == "" {
			msg = MsgCreateFailed
		}
		h.log(ctx, zap.ErrorLevel, msg, zap.String("contact_id", contact.ID))
		p.Fail(msg)
		return nil
	}

	p.Succeed(MsgCreateSucceeded, map[string]interface{}{"reload": true})
	h.logger.Info("Portal user created", zap.String("contact_id", contact.ID))
	return nil
}

// call performs the provisioning request behind the circuit breaker.
func (h *Handler) call(ctx context.Context, baseURL, contactID string) ([]byte, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(baseURL), "/") + portalPath + "?" +
		"option=" + portalOption + "&task=" + portalTask + "&sug=" + url.QueryEscape(contactID)

	var body []byte
	err := h.breaker.Execute(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return err
		}
		resp, err := h.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			_, _ = io.Copy(io.Discard, resp.Body)
			return fmt.Errorf("portal returned status %d", resp.StatusCode)
		}
		body, err = io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyLength))
		return err
	})
	if errors.Is(err, concurrency.ErrCircuitOpen) {
		return nil, fmt.Errorf("portal unavailable: %w", err)
	}
	return body, err
}

func (h *Handler) fail(ctx context.Context, p *process.Process, key string, level zapcore.Level) error {
	h.log(ctx, level, key, zap.String("contact_id", p.Option("id")))
	p.Fail(key)
	return nil
}

func (h *Handler) log(ctx context.Context, level zapcore.Level, key string, fields ...zap.Field) {
	msg := key
	if h.translator != nil {
		msg = h.translator.Translate(ctx, h.cfg.Language, key)
	}
	if ce := h.logger.Check(level, msg); ce != nil {
		ce.Write(fields...)
	}
}
