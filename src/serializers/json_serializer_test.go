package serializers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type patch struct {
	Name    *string `json:"name"`
	Enabled *bool   `json:"enabled"`
}

func TestJSONSerializer_LenientIgnoresUnknownFields(t *testing.T) {
	var p patch
	require.NoError(t, NewJSONSerializer().Unmarshal([]byte(`{"name":"x","extra":1}`), &p))
	require.NotNil(t, p.Name)
	assert.Equal(t, "x", *p.Name)
}

func TestJSONSerializer_Strict(t *testing.T) {
	s := NewStrictJSONSerializer()

	var p patch
	require.NoError(t, s.Unmarshal([]byte(` {"enabled":false} `), &p))
	require.NotNil(t, p.Enabled)
	assert.False(t, *p.Enabled)

	assert.Error(t, s.Unmarshal([]byte(`{"name":"x","extra":1}`), &patch{}))
	assert.Error(t, s.Unmarshal([]byte(`{"name":"x"} {"name":"y"}`), &patch{}))
	assert.Error(t, s.Unmarshal([]byte(`{broken`), &patch{}))
	assert.Error(t, s.Unmarshal(nil, &patch{}))
}

func TestJSONSerializer_MarshalError(t *testing.T) {
	_, err := NewJSONSerializer().Marshal(make(chan int))
	assert.Error(t, err)
}
