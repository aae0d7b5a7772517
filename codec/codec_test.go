package codec

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type result struct {
	Rank   int     `json:"rank"`
	Values []int64 `json:"values"`
}

func TestCodecs_Agree(t *testing.T) {
	in := result{Rank: 0, Values: []int64{math.MaxInt64, 42, -7}}

	for _, name := range []string{"json", "go-json"} {
		t.Run(name, func(t *testing.T) {
			c, ok := ByName(name)
			require.True(t, ok)
			assert.Equal(t, name, c.Name())

			b, err := c.Marshal(in)
			require.NoError(t, err)
			assert.JSONEq(t, `{"rank":0,"values":[9223372036854775807,42,-7]}`, string(b))

			var out result
			require.NoError(t, c.Unmarshal(b, &out))
			assert.Equal(t, in, out)
		})
	}
}

func TestByName_Unknown(t *testing.T) {
	for _, name := range []string{"msgpack", "text", ""} {
		_, ok := ByName(name)
		assert.False(t, ok, name)
	}
}
