package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDumpParamsEmptyMapStoresNull(t *testing.T) {
	dump, err := DumpParams(nil)
	require.NoError(t, err)
	assert.Nil(t, dump)
	assert.True(t, dump.IsEmpty())

	dump, err = DumpParams(map[string]any{})
	require.NoError(t, err)
	assert.Nil(t, dump)

	val, err := dump.Value()
	require.NoError(t, err)
	assert.Nil(t, val)
}

func TestDumpParamsRoundTrip(t *testing.T) {
	dump, err := DumpParams(map[string]any{"name": "ada", "attempts": 3})
	require.NoError(t, err)
	require.False(t, dump.IsEmpty())

	params, err := dump.Object()
	require.NoError(t, err)
	assert.Equal(t, "ada", params["name"])
	// json numbers come back as float64
	assert.Equal(t, float64(3), params["attempts"])
}

func TestDumpParamsRejectsUnmarshalableValue(t *testing.T) {
	_, err := DumpParams(map[string]any{"fn": func() {}})
	require.Error(t, err)
}

func TestObjectRejectsNonObjectPayloads(t *testing.T) {
	for _, payload := range []string{`[1]`, `"text"`, `42`, `true`, `{"k":`} {
		_, err := ParamsDump(payload).Object()
		assert.Error(t, err, "payload %s", payload)
	}
}

func TestObjectEmptyAndNullPayloads(t *testing.T) {
	params, err := ParamsDump(nil).Object()
	require.NoError(t, err)
	assert.Empty(t, params)

	// JSON null decodes into a nil map; callers still get a usable map.
	params, err = ParamsDump(`null`).Object()
	require.NoError(t, err)
	require.NotNil(t, params)
	assert.Empty(t, params)
}

func TestParamsDumpScan(t *testing.T) {
	var dump ParamsDump
	require.NoError(t, dump.Scan(nil))
	assert.Nil(t, dump)

	src := []byte(`{"name": "ada"}`)
	require.NoError(t, dump.Scan(src))
	assert.Equal(t, ParamsDump(src), dump)

	// the scanned copy must not alias the driver's buffer
	src[2] = 'x'
	assert.Equal(t, ParamsDump(`{"name": "ada"}`), dump)

	require.NoError(t, dump.Scan(`{"a": 1}`))
	assert.Equal(t, ParamsDump(`{"a": 1}`), dump)

	assert.Error(t, dump.Scan(42))
}
