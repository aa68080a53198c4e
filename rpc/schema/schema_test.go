package schema

import (
	"testing"

	"github.com/ValentinKolb/dCtl/lib/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const createCloudPool = `{
	"type": "object",
	"required": ["name", "connection", "target_bucket"],
	"additionalProperties": false,
	"properties": {
		"name": {"type": "string", "minLength": 1},
		"connection": {"type": "string"},
		"target_bucket": {"type": "string"}
	}
}`

func TestValidate(t *testing.T) {
	s := MustCompile("pool.create_cloud_pool.params", createCloudPool)

	require.NoError(t, s.Validate([]byte(`{"name":"p","connection":"aws","target_bucket":"b"}`)))

	err := s.Validate([]byte(`{"name":"","connection":1}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrValidation)
	assert.Contains(t, err.Error(), "target_bucket")
	assert.Contains(t, err.Error(), "/connection")

	assert.ErrorIs(t, s.Validate([]byte(`{"name":`)), errs.ErrValidation)
	assert.ErrorIs(t, s.Validate(nil), errs.ErrValidation, "empty params are {} and miss required fields")
}

func TestLargeIntegers(t *testing.T) {
	s := MustCompile("counts", `{"type":"object","properties":{"n":{"type":"integer","minimum":0}}}`)
	assert.NoError(t, s.Validate([]byte(`{"n": 123456789012345678901234567890}`)))
	assert.Error(t, s.Validate([]byte(`{"n": 1.5}`)))
}

func TestCatalog(t *testing.T) {
	c := NewCatalog()
	require.NoError(t, c.Add("pool", "create_cloud_pool", createCloudPool, `{"type":"object"}`))
	require.NoError(t, c.Add("system", "read_system", "", ""))
	assert.Error(t, c.Add("bad", "schema", `{"type": 5}`, ""))

	assert.NoError(t, c.ValidateParams("unknown", "method", []byte(`garbage`)))
	assert.NoError(t, c.ValidateParams("system", "read_system", []byte(`{"anything":1}`)))
	assert.ErrorIs(t, c.ValidateParams("pool", "create_cloud_pool", []byte(`{}`)), errs.ErrValidation)

	m, ok := c.Lookup("pool", "create_cloud_pool")
	require.True(t, ok)
	assert.NoError(t, m.Reply.Validate([]byte(`{}`)))
}
