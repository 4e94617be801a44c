package embedding

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func l2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i] - b[i])
		sum += d * d
	}
	return sum
}

func TestHashEmbedder(t *testing.T) {
	ctx := context.Background()
	e := NewHashEmbedder(0)
	assert.Equal(t, DefaultHashDimension, e.Dimension())

	t.Run("deterministic", func(t *testing.T) {
		a, err := e.Embed(ctx, "Linux ls command")
		require.NoError(t, err)
		b, err := e.Embed(ctx, "Linux ls command")
		require.NoError(t, err)
		assert.Equal(t, a, b)
		assert.Len(t, a, DefaultHashDimension)
	})

	t.Run("unit length", func(t *testing.T) {
		v, err := e.Embed(ctx, "some text to embed")
		require.NoError(t, err)
		var sum float64
		for _, x := range v {
			sum += float64(x) * float64(x)
		}
		assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-4)
	})

	t.Run("shared words are closer", func(t *testing.T) {
		vs, err := e.EmbedBatch(ctx, []string{
			"linux commands",
			"linux cat command and linux commands",
			"unrelated cooking recipe",
		})
		require.NoError(t, err)
		assert.Less(t, l2(vs[0], vs[1]), l2(vs[0], vs[2]))
	})

	t.Run("custom dimension", func(t *testing.T) {
		v, err := NewHashEmbedder(16).Embed(ctx, "")
		require.NoError(t, err)
		assert.Len(t, v, 16)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := e.EmbedBatch(cctx, []string{"x"})
		assert.ErrorIs(t, err, context.Canceled)
	})
}
