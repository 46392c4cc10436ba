package script

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wehubfusion/Ariadne/pkg/fielddefs"
	"github.com/wehubfusion/Ariadne/pkg/mappers"
	"github.com/wehubfusion/Ariadne/pkg/record"
)

func TestScriptMapperDirections(t *testing.T) {
	m, err := New(Spec{
		Module:     "Accounts",
		Field:      "phone_office",
		ToInternal: `value.replace(/[^0-9+]/g, "")`,
		ToExternal: `record.country === "US" ? "+1 " + value : value`,
	}, nil)
	require.NoError(t, err)

	rec := record.New("Accounts", map[string]interface{}{"phone_office": "(555) 010-9999", "country": "US"})
	require.NoError(t, m.ToInternal(rec, nil))
	assert.Equal(t, "5550109999", rec.Attributes["phone_office"])

	require.NoError(t, m.ToExternal(rec, nil))
	assert.Equal(t, "+1 5550109999", rec.Attributes["phone_office"])
}

func TestScriptMapperUndefinedLeavesValue(t *testing.T) {
	m, err := New(Spec{Module: "Accounts", Field: "name", ToExternal: `undefined`}, nil)
	require.NoError(t, err)

	rec := record.New("Accounts", map[string]interface{}{"name": "Acme"})
	require.NoError(t, m.ToExternal(rec, nil))
	assert.Equal(t, "Acme", rec.Attributes["name"])
}

func TestScriptMapperNullClearsValue(t *testing.T) {
	m, err := New(Spec{Module: "Accounts", Field: "name", ToInternal: `null`}, nil)
	require.NoError(t, err)

	rec := record.New("Accounts", map[string]interface{}{"name": "Acme"})
	require.NoError(t, m.ToInternal(rec, nil))
	v, ok := rec.Get("name")
	assert.True(t, ok)
	assert.Nil(t, v)
}

func TestScriptMapperEmptyDirectionIsNoop(t *testing.T) {
	m, err := New(Spec{Module: "Accounts", Field: "name", ToExternal: `value + "!"`}, nil)
	require.NoError(t, err)

	rec := record.New("Accounts", map[string]interface{}{"name": "Acme"})
	require.NoError(t, m.ToInternal(rec, nil))
	assert.Equal(t, "Acme", rec.Attributes["name"])
}

func TestScriptMapperCannotMutateRecord(t *testing.T) {
	m, err := New(Spec{Module: "Accounts", Field: "name", ToExternal: `record.other = "x"; value`}, nil)
	require.NoError(t, err)

	rec := record.New("Accounts", map[string]interface{}{"name": "Acme"})
	require.NoError(t, m.ToExternal(rec, nil))
	_, ok := rec.Get("other")
	assert.False(t, ok)
}

func TestScriptMapperTimeout(t *testing.T) {
	m, err := New(Spec{Module: "Accounts", Field: "name", ToExternal: `while (true) {}`, TimeoutMs: 20}, nil)
	require.NoError(t, err)

	rec := record.New("Accounts", map[string]interface{}{"name": "Acme"})
	err = m.ToExternal(rec, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestScriptMapperSandbox(t *testing.T) {
	m, err := New(Spec{Module: "Accounts", Field: "name", ToExternal: `eval("1 + 1")`}, nil)
	require.NoError(t, err)

	rec := record.New("Accounts", map[string]interface{}{"name": "Acme"})
	assert.Error(t, m.ToExternal(rec, nil))

	m, err = New(Spec{Module: "Accounts", Field: "name", ToExternal: `typeof require`}, nil)
	require.NoError(t, err)
	require.NoError(t, m.ToExternal(rec, nil))
	assert.Equal(t, "undefined", rec.Attributes["name"])
}

func TestNewRejectsInvalidSpecs(t *testing.T) {
	_, err := New(Spec{Module: "Accounts", Field: "name", ToExternal: `value +`}, nil)
	assert.Error(t, err)

	_, err = New(Spec{Field: "name"}, nil)
	assert.Error(t, err)
}

func TestRegisterRunsThroughRunner(t *testing.T) {
	regs := mappers.NewRegistries()
	require.NoError(t, Register(regs, []Spec{{Module: "Leads", Field: "status", ToExternal: `value.toLowerCase()`}}, nil))

	runner := mappers.NewRunnerFromRegistries(fielddefs.Static{}, regs, nil)
	rec := record.New("Leads", map[string]interface{}{"status": "NEW"})
	require.NoError(t, runner.ToExternal(context.Background(), rec))
	assert.Equal(t, "new", rec.Attributes["status"])
}
