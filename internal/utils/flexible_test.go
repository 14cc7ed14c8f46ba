package utils

import (
    "encoding/json"
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestFlexibleStringAcceptsStringOrNumber(t *testing.T) {
    var payload struct {
        ID FlexibleString `json:"id"`
    }

    require.NoError(t, json.Unmarshal([]byte(`{"id":"42"}`), &payload))
    n, ok := payload.ID.Uint()
    assert.True(t, ok)
    assert.EqualValues(t, 42, n)

    require.NoError(t, json.Unmarshal([]byte(`{"id":42}`), &payload))
    n, ok = payload.ID.Uint()
    assert.True(t, ok)
    assert.EqualValues(t, 42, n)

    payload.ID = ""
    require.NoError(t, json.Unmarshal([]byte(`{"id":null}`), &payload))
    _, ok = payload.ID.Uint()
    assert.False(t, ok)

    assert.Error(t, json.Unmarshal([]byte(`{"id":[1]}`), &payload))
}

func TestParseCoord(t *testing.T) {
    val, malformed := ParseCoord(json.RawMessage(`12.97`))
    require.NotNil(t, val)
    assert.Equal(t, 12.97, *val)
    assert.False(t, malformed)

    val, malformed = ParseCoord(json.RawMessage(`"77.59"`))
    require.NotNil(t, val)
    assert.Equal(t, 77.59, *val)
    assert.False(t, malformed)

    val, malformed = ParseCoord(nil)
    assert.Nil(t, val)
    assert.False(t, malformed, "absent coordinate is not malformed")

    val, malformed = ParseCoord(json.RawMessage(`null`))
    assert.Nil(t, val)
    assert.False(t, malformed)

    val, malformed = ParseCoord(json.RawMessage(`"here"`))
    assert.Nil(t, val)
    assert.True(t, malformed)

    val, malformed = ParseCoord(json.RawMessage(`{"lat":1}`))
    assert.Nil(t, val)
    assert.True(t, malformed)
}
