package core

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequence_FormatParse(t *testing.T) {
	seq := Sequence{Prefix: "GHS26", Width: 4}

	assert.Equal(t, "GHS260001", seq.Format(1))
	assert.Equal(t, "GHS261234", seq.Format(1234))
	assert.Equal(t, "GHS2612345", seq.Format(12345))

	assert.Equal(t, 7, seq.Parse("GHS260007"))
	assert.Equal(t, 0, seq.Parse(""))
	assert.Equal(t, 0, seq.Parse("GHS250007"))
	assert.Equal(t, 0, seq.Parse("GHS26abcd"))
}

func TestAllocateUnique(t *testing.T) {
	seq := Sequence{Prefix: "APP-", Width: 3}
	ctx := context.Background()

	t.Run("first value", func(t *testing.T) {
		val, err := AllocateUnique(ctx, seq, SequenceMaxAttempts,
			func(context.Context) (string, error) { return "", nil },
			func(context.Context, string) error { return nil },
		)
		require.NoError(t, err)
		assert.Equal(t, "APP-001", val)
	})

	t.Run("retries on collision", func(t *testing.T) {
		taken := map[string]bool{"APP-005": true, "APP-006": true}
		var tried []string
		val, err := AllocateUnique(ctx, seq, SequenceMaxAttempts,
			// stale reader: never sees the concurrent inserts
			func(context.Context) (string, error) { return "APP-004", nil },
			func(_ context.Context, v string) error {
				tried = append(tried, v)
				if taken[v] {
					return errors.Wrap(ErrUniqueViolation, "inserting")
				}
				return nil
			},
		)
		require.NoError(t, err)
		assert.Equal(t, "APP-007", val)
		assert.Equal(t, []string{"APP-005", "APP-006", "APP-007"}, tried)
	})

	t.Run("exhausted", func(t *testing.T) {
		var calls int
		_, err := AllocateUnique(ctx, seq, 3,
			func(context.Context) (string, error) { return "APP-001", nil },
			func(context.Context, string) error {
				calls++
				return ErrUniqueViolation
			},
		)
		assert.Equal(t, ErrSequenceExhausted, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("other errors are returned as is", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := AllocateUnique(ctx, seq, SequenceMaxAttempts,
			func(context.Context) (string, error) { return "", nil },
			func(context.Context, string) error { return boom },
		)
		assert.Equal(t, boom, err)
	})
}
