package core

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// SequenceMaxAttempts is the number of inserts tried before giving up on a sequence value.
const SequenceMaxAttempts = 5

var (
	// ErrUniqueViolation is the cause of any error raised by a unique index on insert/update.
	ErrUniqueViolation = errors.New("unique constraint violated")

	ErrSequenceExhausted = errors.New("could not allocate a unique number, please retry")
)

// Sequence formats human readable numbers such as "GHS260007" (Prefix "GHS26", Width 4).
type Sequence struct {
	Prefix string
	Width  int
}

func (s Sequence) Format(n int) string {
	return fmt.Sprintf("%s%0*d", s.Prefix, s.Width, n)
}

// Parse returns the numeric part of value, or 0 when value does not belong to the sequence.
func (s Sequence) Parse(value string) int {
	if !strings.HasPrefix(value, s.Prefix) {
		return 0
	}
	n, err := strconv.Atoi(value[len(s.Prefix):])
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// AllocateUnique picks the next value of seq and hands it to insert.
// latest returns the highest value currently stored ("" when none).
// When insert fails with ErrUniqueViolation (another writer took the value) the latest value is
// read again and the insert retried, up to maxAttempts times.
func AllocateUnique(
	ctx context.Context,
	seq Sequence,
	maxAttempts int,
	latest func(ctx context.Context) (string, error),
	insert func(ctx context.Context, value string) error,
) (string, error) {
	var lastTried int
	for attempt := 0; attempt < maxAttempts; attempt++ {
		curr, err := latest(ctx)
		if err != nil {
			return "", errors.Wrap(err, "reading latest sequence value")
		}
		n := seq.Parse(curr) + 1
		if n <= lastTried {
			n = lastTried + 1
		}
		lastTried = n

		value := seq.Format(n)
		err = insert(ctx, value)
		if err == nil {
			return value, nil
		}
		if errors.Cause(err) != ErrUniqueViolation {
			return "", err
		}
	}
	return "", ErrSequenceExhausted
}
