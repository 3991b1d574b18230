package instruction

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParamsKeepInsertionOrder(t *testing.T) {
	p := NewParams("path", "a.txt", "content", "x")
	p.Set(ParamPath, "b.txt")
	p.Set(ParamDiff, "d")

	assert.Equal(t, []ParamName{ParamPath, ParamContent, ParamDiff}, p.Keys())
	v, ok := p.Get(ParamPath)
	assert.True(t, ok)
	assert.Equal(t, "b.txt", v)
	assert.Equal(t, 3, p.Len())
}

func TestParamsJSONOrder(t *testing.T) {
	var p Params
	require.NoError(t, json.Unmarshal([]byte(`{"z":"1","a":"2","recursive":true}`), &p))
	assert.Equal(t, []ParamName{"z", "a", "recursive"}, p.Keys())
	assert.Equal(t, "true", p.Map()["recursive"])

	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Equal(t, `{"z":"1","a":"2","recursive":"true"}`, string(data))
}

func TestInstructionDecode(t *testing.T) {
	var in Instruction
	require.NoError(t, json.Unmarshal([]byte(`{"name":"read_file","params":{"path":"a"},"partial":true}`), &in))
	assert.Equal(t, ReadFile, in.Name)
	assert.True(t, in.Partial)
	assert.Equal(t, "a", in.Value(ParamPath))
	_, ok := in.Param(ParamContent)
	assert.False(t, ok)
}

func TestParamsCloneIsIndependent(t *testing.T) {
	p := NewParams("path", "a")
	c := p.Clone()
	c.Set(ParamPath, "b")
	assert.Equal(t, "a", p.Map()["path"])
}
