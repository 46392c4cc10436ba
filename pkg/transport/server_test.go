package transport

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"github.com/wehubfusion/Ariadne/pkg/concurrency"
	sdkerrors "github.com/wehubfusion/Ariadne/pkg/errors"
	"github.com/wehubfusion/Ariadne/pkg/mappers"
	"github.com/wehubfusion/Ariadne/pkg/metadata"
	"github.com/wehubfusion/Ariadne/pkg/process"
	"github.com/wehubfusion/Ariadne/pkg/record"
	"github.com/wehubfusion/Ariadne/pkg/viewdefs"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeProcesses struct{}

func (fakeProcesses) Run(_ context.Context, p *process.Process) (*process.Process, error) {
	switch p.Type {
	case "boom":
		return nil, errors.New("database unavailable")
	case "panic":
		panic("handler exploded")
	case "missing":
		return nil, sdkerrors.ErrHandlerNotFound
	}
	p.Succeed("LBL_OK", nil)
	return p, nil
}

type fakeMapper struct {
	direction mappers.Direction
}

func (m *fakeMapper) Run(_ context.Context, rec *record.Record, direction mappers.Direction) error {
	m.direction = direction
	rec.Set("mapped", string(direction))
	return nil
}

type fakeViewDefs struct{}

func (fakeViewDefs) GetViewDefs(_ context.Context, module string, views []string) (*viewdefs.ViewDefinition, error) {
	if module == "" {
		return nil, sdkerrors.NewError("INVALID_REQUEST", "module is required", sdkerrors.ErrInvalidRequest)
	}
	return &viewdefs.ViewDefinition{ID: module, ListView: &viewdefs.ListView{}}, nil
}

type fakeResolver struct {
	got metadata.Request
}

func (r *fakeResolver) Resolve(_ context.Context, req metadata.Request) (*metadata.Result, error) {
	r.got = req
	return &metadata.Result{Language: "en_us", Theme: "suite8"}, nil
}

func newServer(t *testing.T, logger *zap.Logger) (*Server, *fakeMapper, *fakeResolver) {
	t.Helper()
	mapper := &fakeMapper{}
	resolver := &fakeResolver{}
	s, err := NewServer(Config{SubjectPrefix: "crm."}, Services{
		Processes: fakeProcesses{},
		Mapper:    mapper,
		ViewDefs:  fakeViewDefs{},
		Metadata:  resolver,
	}, concurrency.NewLimiter(4), logger)
	require.NoError(t, err)
	return s, mapper, resolver
}

func TestSubjects(t *testing.T) {
	s, _, _ := newServer(t, nil)
	assert.Equal(t, []string{
		"crm.metadata.resolve",
		"crm.process.run",
		"crm.record.to-external",
		"crm.record.to-internal",
		"crm.search.route",
		"crm.viewdefs.get",
	}, s.Subjects())
}

func TestOnlyConfiguredServicesAreRouted(t *testing.T) {
	s, err := NewServer(Config{SubjectPrefix: "crm"}, Services{}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"crm.search.route"}, s.Subjects())
}

func TestNewServerRequiresPrefix(t *testing.T) {
	_, err := NewServer(Config{SubjectPrefix: " . "}, Services{}, nil, nil)
	assert.Error(t, err)
}

func TestDispatchProcessRun(t *testing.T) {
	s, _, _ := newServer(t, nil)
	body := s.Dispatch(context.Background(), "crm.process.run", []byte(`{"type":"record-create-portal-user","options":{"id":"c1"}}`))

	var p process.Process
	require.NoError(t, json.Unmarshal(body, &p))
	assert.Equal(t, process.StatusSuccess, p.Status)
	assert.Equal(t, []string{"LBL_OK"}, p.Messages)
}

func TestDispatchRecordMapping(t *testing.T) {
	s, mapper, _ := newServer(t, nil)

	body := s.Dispatch(context.Background(), "crm.record.to-external", []byte(`{"module":"Accounts","attributes":{"name":"Acme"}}`))
	assert.Equal(t, mappers.ToExternal, mapper.direction)
	assert.Equal(t, "toExternal", gjson.GetBytes(body, "attributes.mapped").String())
	assert.Equal(t, "Acme", gjson.GetBytes(body, "attributes.name").String())

	s.Dispatch(context.Background(), "crm.record.to-internal", []byte(`{"module":"Accounts"}`))
	assert.Equal(t, mappers.ToInternal, mapper.direction)
}

func TestDispatchViewDefs(t *testing.T) {
	s, _, _ := newServer(t, nil)

	body := s.Dispatch(context.Background(), "crm.viewdefs.get", []byte(`{"module":"Accounts","views":["listView"]}`))
	assert.Equal(t, "Accounts", gjson.GetBytes(body, "id").String())

	body = s.Dispatch(context.Background(), "crm.viewdefs.get", []byte(`{"views":["listView"]}`))
	assert.Equal(t, "INVALID_REQUEST", gjson.GetBytes(body, "error.code").String())
	assert.Equal(t, "module is required", gjson.GetBytes(body, "error.message").String())
}

func TestDispatchMetadataResolve(t *testing.T) {
	s, _, resolver := newServer(t, nil)

	body := s.Dispatch(context.Background(), "crm.metadata.resolve", []byte(`{"route":{"load":{"navigation":false,"languageStrings":["appStrings"]}},"userLanguage":"de"}`))
	assert.Equal(t, "suite8", gjson.GetBytes(body, "theme").String())
	assert.Equal(t, "de", resolver.got.UserLanguage)
	require.NotNil(t, resolver.got.Route.Load)
	assert.False(t, resolver.got.Route.LoadNavigation())

	body = s.Dispatch(context.Background(), "crm.metadata.resolve", nil)
	assert.Equal(t, "en_us", gjson.GetBytes(body, "language").String())
}

func TestDispatchSearchRoute(t *testing.T) {
	s, _, _ := newServer(t, nil)

	body := s.Dispatch(context.Background(), "crm.search.route", []byte(`{"searchTerm":"acme","controller":"UnifiedSearch"}`))
	assert.Equal(t, "/home/unified-search", gjson.GetBytes(body, "route").String())
	assert.Equal(t, "acme", gjson.GetBytes(body, "queryParams.query_string").String())
	assert.Equal(t, "/home/unified-search?query_string=acme", gjson.GetBytes(body, "url").String())

	body = s.Dispatch(context.Background(), "crm.search.route", nil)
	assert.Equal(t, "/home/search", gjson.GetBytes(body, "route").String())
	assert.True(t, gjson.GetBytes(body, "queryParams.query_string").Exists())
}

func TestDispatchErrors(t *testing.T) {
	tests := []struct {
		name    string
		subject string
		data    string
		code    string
	}{
		{name: "unknown subject", subject: "crm.nothing", data: `{}`, code: "HANDLER_NOT_FOUND"},
		{name: "malformed json", subject: "crm.process.run", data: `{`, code: "INVALID_REQUEST"},
		{name: "empty body", subject: "crm.process.run", data: ``, code: "INVALID_REQUEST"},
		{name: "missing type", subject: "crm.process.run", data: `{"options":{}}`, code: "INVALID_REQUEST"},
		{name: "unknown process", subject: "crm.process.run", data: `{"type":"missing"}`, code: "HANDLER_NOT_FOUND"},
		{name: "internal", subject: "crm.process.run", data: `{"type":"boom"}`, code: "INTERNAL"},
		{name: "panic", subject: "crm.process.run", data: `{"type":"panic"}`, code: "INTERNAL"},
	}

	s, _, _ := newServer(t, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := s.Dispatch(context.Background(), tt.subject, []byte(tt.data))
			assert.Equal(t, tt.code, gjson.GetBytes(body, "error.code").String(), string(body))
			assert.NotEmpty(t, gjson.GetBytes(body, "error.message").String())
		})
	}
}

func TestInternalErrorsAreLogged(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s, _, _ := newServer(t, zap.New(core))

	s.Dispatch(context.Background(), "crm.process.run", []byte(`{"type":"boom"}`))
	s.Dispatch(context.Background(), "crm.process.run", []byte(`{"type":"missing"}`))

	assert.Equal(t, 1, logs.FilterMessage("Request failed").Len())
	assert.Equal(t, 1, logs.FilterMessage("Request rejected").Len())
}

func TestRecoveryMiddlewareReturnsError(t *testing.T) {
	h := RecoveryMiddleware(nil)(func(context.Context, *Request) (interface{}, error) {
		panic("bad")
	})
	reply, err := h(context.Background(), &Request{Subject: "x"})
	assert.Nil(t, reply)
	assert.EqualError(t, err, "panic recovered: bad")
}

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, req *Request) (interface{}, error) {
				order = append(order, name)
				return next(ctx, req)
			}
		}
	}
	h := Chain(mw("a"), mw("b"))(func(context.Context, *Request) (interface{}, error) {
		order = append(order, "handler")
		return nil, nil
	})
	_, _ = h(context.Background(), &Request{})
	assert.Equal(t, []string{"a", "b", "handler"}, order)
}

func TestTimeoutMiddlewareSetsDeadline(t *testing.T) {
	h := TimeoutMiddleware(DefaultRequestTimeout)(func(ctx context.Context, _ *Request) (interface{}, error) {
		_, ok := ctx.Deadline()
		return ok, nil
	})
	reply, err := h(context.Background(), &Request{})
	require.NoError(t, err)
	assert.Equal(t, true, reply)
}
