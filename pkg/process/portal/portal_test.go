package portal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wehubfusion/Ariadne/pkg/concurrency"
	"github.com/wehubfusion/Ariadne/pkg/contacts"
	sdkerrors "github.com/wehubfusion/Ariadne/pkg/errors"
	"github.com/wehubfusion/Ariadne/pkg/process"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeContacts map[string]*contacts.Contact

func (f fakeContacts) GetContact(_ context.Context, id string) (*contacts.Contact, error) {
	c, ok := f[id]
	if !ok {
		return nil, fmt.Errorf("contact %s: %w", id, sdkerrors.ErrNotFound)
	}
	return c, nil
}

type portalServer struct {
	*httptest.Server
	calls   int32
	lastSug atomic.Value
}

func newPortalServer(t *testing.T, status int, body string) *portalServer {
	t.Helper()
	ps := &portalServer{}
	ps.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&ps.calls, 1)
		assert.Equal(t, "/index.php", r.URL.Path)
		assert.Equal(t, "com_advancedopenportal", r.URL.Query().Get("option"))
		assert.Equal(t, "create", r.URL.Query().Get("task"))
		ps.lastSug.Store(r.URL.Query().Get("sug"))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(ps.Close)
	return ps
}

func (ps *portalServer) Calls() int {
	return int(atomic.LoadInt32(&ps.calls))
}

func enabled(url string) *AOPConfig {
	return &AOPConfig{EnableAOP: true, EnablePortal: true, JoomlaURL: url}
}

var ada = fakeContacts{
	"c1":  {ID: "c1", FirstName: "Ada", Email1: "ada@example.com"},
	"123": {ID: "123", FirstName: "No", LastName: "Email"},
}

func newProcess(id string) *process.Process {
	return &process.Process{
		Type:    ProcessType,
		Options: map[string]interface{}{"id": id, "module": "Contacts"},
	}
}

func newHandler(t *testing.T, cfg Config, opts ...Option) *Handler {
	t.Helper()
	h, err := NewHandler(cfg, ada, opts...)
	require.NoError(t, err)
	return h
}

func TestRunCreatesPortalUser(t *testing.T) {
	srv := newPortalServer(t, http.StatusOK, `{"success": true}`)
	h := newHandler(t, Config{AOP: enabled(srv.URL + "/")})

	p := newProcess("c1")
	require.NoError(t, h.Run(context.Background(), p))

	assert.Equal(t, process.StatusSuccess, p.Status)
	assert.Equal(t, []string{MsgCreateSucceeded}, p.Messages)
	assert.Equal(t, map[string]interface{}{"reload": true}, p.Data)
	assert.Equal(t, 1, srv.Calls())
	assert.Equal(t, "c1", srv.lastSug.Load())
}

func TestRunContactWithoutEmailMakesNoCall(t *testing.T) {
	srv := newPortalServer(t, http.StatusOK, `{"success": true}`)
	h := newHandler(t, Config{AOP: enabled(srv.URL)})

	p := newProcess("123")
	require.NoError(t, h.Run(context.Background(), p))

	assert.Equal(t, process.StatusError, p.Status)
	assert.Equal(t, []string{MsgContactIncomplete}, p.Messages)
	assert.Equal(t, 0, srv.Calls())
}

func TestRunMissingContact(t *testing.T) {
	srv := newPortalServer(t, http.StatusOK, `{"success": true}`)
	h := newHandler(t, Config{AOP: enabled(srv.URL)})

	p := newProcess("nobody")
	require.NoError(t, h.Run(context.Background(), p))
	assert.Equal(t, []string{MsgContactIncomplete}, p.Messages)
	assert.Equal(t, 0, srv.Calls())
}

func TestRunRemoteFailureUsesRemoteError(t *testing.T) {
	srv := newPortalServer(t, http.StatusOK, `{"success": false, "error": "Duplicate"}`)
	h := newHandler(t, Config{AOP: enabled(srv.URL)})

	p := newProcess("c1")
	require.NoError(t, h.Run(context.Background(), p))

	assert.Equal(t, process.StatusError, p.Status)
	assert.Equal(t, []string{"Duplicate"}, p.Messages)
}

func TestRunRemoteFailureSanitizesError(t *testing.T) {
	srv := newPortalServer(t, http.StatusOK, `{"success": false, "error": "<b>Duplicate</b><script>alert(1)</script>"}`)
	h := newHandler(t, Config{AOP: enabled(srv.URL)})

	p := newProcess("c1")
	require.NoError(t, h.Run(context.Background(), p))
	assert.Equal(t, []string{"Duplicate"}, p.Messages)
}

func TestRunRemoteFailureKeepsPlainText(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"apostrophe", `{"success": false, "error": "Contact's email already exists"}`, "Contact's email already exists"},
		{"ampersand", `{"success": false, "error": "Name & email taken"}`, "Name & email taken"},
		{"quotes", `{"success": false, "error": "Use \"x\" instead"}`, `Use "x" instead`},
		{"number", `{"success": false, "error": 42}`, "42"},
		{"false", `{"success": false, "error": false}`, MsgCreateFailed},
		{"null", `{"success": false, "error": null}`, MsgCreateFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newPortalServer(t, http.StatusOK, tt.body)
			h := newHandler(t, Config{AOP: enabled(srv.URL)})

			p := newProcess("c1")
			require.NoError(t, h.Run(context.Background(), p))
			assert.Equal(t, process.StatusError, p.Status)
			assert.Equal(t, []string{tt.want}, p.Messages)
		})
	}
}

func TestRunRemoteFailureWithoutError(t *testing.T) {
	srv := newPortalServer(t, http.StatusOK, `{"success": false}`)
	h := newHandler(t, Config{AOP: enabled(srv.URL)})

	p := newProcess("c1")
	require.NoError(t, h.Run(context.Background(), p))
	assert.Equal(t, []string{MsgCreateFailed}, p.Messages)
}

func TestRunNon2xxIsFailure(t *testing.T) {
	srv := newPortalServer(t, http.StatusBadGateway, `oops`)
	h := newHandler(t, Config{AOP: enabled(srv.URL)})

	p := newProcess("c1")
	require.NoError(t, h.Run(context.Background(), p))
	assert.Equal(t, process.StatusError, p.Status)
	assert.Equal(t, []string{MsgCreateFailed}, p.Messages)
}

func TestRunMalformedJSONIsReturned(t *testing.T) {
	srv := newPortalServer(t, http.StatusOK, `not json`)
	h := newHandler(t, Config{AOP: enabled(srv.URL)})

	p := newProcess("c1")
	err := h.Run(context.Background(), p)
	assert.Error(t, err)
	assert.Empty(t, p.Status)
}

func TestRunTransportFailure(t *testing.T) {
	srv := newPortalServer(t, http.StatusOK, `{"success": true}`)
	url := srv.URL
	srv.Close()
	h := newHandler(t, Config{AOP: enabled(url), Timeout: time.Second})

	p := newProcess("c1")
	require.NoError(t, h.Run(context.Background(), p))
	assert.Equal(t, []string{MsgCreateFailed}, p.Messages)
}

func TestRunOpenBreakerFailsFast(t *testing.T) {
	srv := newPortalServer(t, http.StatusOK, `{"success": true}`)
	cb := concurrency.NewCircuitBreaker(1, time.Hour)
	cb.RecordFailure()
	h := newHandler(t, Config{AOP: enabled(srv.URL)}, WithCircuitBreaker(cb))

	p := newProcess("c1")
	require.NoError(t, h.Run(context.Background(), p))
	assert.Equal(t, []string{MsgCreateFailed}, p.Messages)
	assert.Equal(t, 0, srv.Calls())
}

func TestRunConfigurationChecks(t *testing.T) {
	tests := []struct {
		name string
		aop  *AOPConfig
		want string
	}{
		{name: "not configured", aop: nil, want: MsgAOPNotConfigured},
		{name: "portal disabled", aop: &AOPConfig{EnableAOP: true, JoomlaURL: "http://portal"}, want: MsgPortalNotEnabled},
		{name: "aop disabled", aop: &AOPConfig{EnablePortal: true, JoomlaURL: "http://portal"}, want: MsgAOPNotEnabled},
		{name: "url missing", aop: &AOPConfig{EnableAOP: true, EnablePortal: true, JoomlaURL: " "}, want: MsgPortalURLMissing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHandler(t, Config{AOP: tt.aop})
			p := newProcess("c1")
			require.NoError(t, h.Run(context.Background(), p))
			assert.Equal(t, process.StatusError, p.Status)
			assert.Equal(t, []string{tt.want}, p.Messages)
		})
	}
}

type translator map[string]string

func (tr translator) Translate(_ context.Context, _ string, key string) string {
	if v, ok := tr[key]; ok {
		return v
	}
	return key
}

func TestRunLogsLocalizedMessage(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	h := newHandler(t, Config{},
		WithLogger(zap.New(core)),
		WithTranslator(translator{MsgAOPNotConfigured: "Advanced OpenPortal is not configured"}))

	require.NoError(t, h.Run(context.Background(), newProcess("c1")))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "Advanced OpenPortal is not configured", logs.All()[0].Message)
}

func TestValidate(t *testing.T) {
	h := newHandler(t, Config{})

	err := h.Validate(&process.Process{})
	require.Error(t, err)
	assert.ErrorIs(t, err, sdkerrors.ErrInvalidOptions)
	assert.Contains(t, err.Error(), MsgOptionsNotFound)

	err = h.Validate(&process.Process{Options: map[string]interface{}{"module": "Contacts"}})
	assert.ErrorIs(t, err, sdkerrors.ErrInvalidOptions)

	assert.NoError(t, h.Validate(newProcess("c1")))
}

func TestHandlerMetadata(t *testing.T) {
	h := newHandler(t, Config{})
	p := newProcess("c1")
	p.Async = true
	h.Configure(p)

	assert.Equal(t, ProcessType, p.ID)
	assert.False(t, p.Async)
	assert.Equal(t, ProcessType, h.HandlerKey())
	assert.Equal(t, "ROLE_USER", h.RequiredAuthRole())
	assert.Equal(t, map[string][]process.ACL{"Contacts": {{Action: "edit", Record: "c1"}}}, h.RequiredACLs(p))
}

func TestNewHandlerRequiresRepository(t *testing.T) {
	_, err := NewHandler(Config{}, nil)
	assert.Error(t, err)
}

func TestServiceRunsPortalHandler(t *testing.T) {
	srv := newPortalServer(t, http.StatusOK, `{"success": false, "error": "Duplicate"}`)
	svc := process.NewService(nil)
	require.NoError(t, svc.Register(newHandler(t, Config{AOP: enabled(srv.URL)})))

	out, err := svc.Run(context.Background(), newProcess("c1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Duplicate"}, out.Messages)

	_, err = svc.Run(context.Background(), &process.Process{Type: ProcessType})
	assert.True(t, errors.Is(err, sdkerrors.ErrInvalidOptions))
}
