package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError(t *testing.T) {
	t.Run("Should format code, message and sorted details", func(t *testing.T) {
		err := NewError(fmt.Errorf("boom"), "THING_FAILED", map[string]any{"b": 2, "a": 1})

		assert.Equal(t, "THING_FAILED: boom (a=1, b=2)", err.Error())
	})

	t.Run("Should format code alone when wrapped error is nil", func(t *testing.T) {
		err := NewError(nil, "RATE_LIMIT_EXCEEDED", nil)

		assert.Equal(t, "RATE_LIMIT_EXCEEDED", err.Error())
	})

	t.Run("Should unwrap to the underlying error", func(t *testing.T) {
		inner := errors.New("inner")
		err := NewError(fmt.Errorf("outer: %w", inner), "WRAPPED", nil)

		assert.True(t, errors.Is(err, inner))
	})

	t.Run("Should extract code through wrapping", func(t *testing.T) {
		err := fmt.Errorf("caller: %w", NewError(errors.New("x"), "SOME_CODE", nil))

		assert.Equal(t, "SOME_CODE", ErrorCode(err))
		assert.Empty(t, ErrorCode(errors.New("plain")))
	})
}

func TestID(t *testing.T) {
	t.Run("Should generate parseable ids", func(t *testing.T) {
		id := NewID()

		require.False(t, id.IsZero())
		parsed, err := ParseID(id.String())
		require.NoError(t, err)
		assert.Equal(t, id, parsed)
	})

	t.Run("Should reject malformed ids", func(t *testing.T) {
		_, err := ParseID("not-a-valid-ksuid")

		assert.Error(t, err)
	})
}

func TestParseTier(t *testing.T) {
	t.Run("Should accept all known tiers", func(t *testing.T) {
		for _, tier := range []Tier{
			TierLevel1, TierLevel2, TierLevel3, TierLocalOnly,
			TierCodingLevel1, TierCodingLevel2, TierCodingLevel3,
		} {
			assert.Equal(t, tier, ParseTier(tier.String()))
		}
	})

	t.Run("Should default unknown tiers to level2", func(t *testing.T) {
		assert.Equal(t, TierLevel2, ParseTier("level99"))
		assert.Equal(t, TierLevel2, ParseTier(""))
	})

	t.Run("Should rank general tiers and reject coding tiers", func(t *testing.T) {
		assert.Equal(t, 0, TierLevel1.Rank())
		assert.Equal(t, 3, TierLocalOnly.Rank())
		assert.Equal(t, -1, TierCodingLevel1.Rank())
	})
}

func TestTruncate(t *testing.T) {
	t.Run("Should leave short strings untouched", func(t *testing.T) {
		assert.Equal(t, "abc", Truncate("abc", 10))
	})

	t.Run("Should cut at rune boundaries", func(t *testing.T) {
		assert.Equal(t, "héll", Truncate("héllo", 4))
		assert.Equal(t, "📋📋", Truncate("📋📋📋", 2))
	})

	t.Run("Should return empty string for non-positive max", func(t *testing.T) {
		assert.Empty(t, Truncate("abc", 0))
	})
}

func TestClamps(t *testing.T) {
	t.Run("Should clamp ints and floats into range", func(t *testing.T) {
		assert.Equal(t, 10, ClampInt(5, 10, 20))
		assert.Equal(t, 20, ClampInt(25, 10, 20))
		assert.Equal(t, 15, ClampInt(15, 10, 20))
		assert.InDelta(t, 0.5, ClampFloat(0.2, 0.5, 1.0), 1e-9)
		assert.InDelta(t, 1.0, ClampFloat(1.7, 0.5, 1.0), 1e-9)
	})
}
