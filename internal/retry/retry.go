// Package retry drives an unreliable text generator until its output
// validates, varying the seed on every attempt.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"genforge-gateway/internal/metrics"
	"genforge-gateway/pkg/logging/logging"
)

// DefaultMaxAttempts bounds a generation when the caller does not.
const DefaultMaxAttempts = 3

// ErrRetriesExhausted is matched by every exhaustion error.
var ErrRetriesExhausted = errors.New("retry: retries exhausted")

// State of a generation loop.
type State int

const (
	StateAttempting State = iota
	StateSucceeded
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateAttempting:
		return "attempting"
	case StateSucceeded:
		return "succeeded"
	case StateExhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Call performs one model invocation with the given seed.
type Call func(ctx context.Context, seed int64) (string, error)

// Validator turns raw model output into T or rejects it.
type Validator[T any] func(raw string) (T, error)

// Config bounds and labels one generation loop.
type Config struct {
	// MaxAttempts defaults to DefaultMaxAttempts when <= 0.
	MaxAttempts int

	BaseSeed int64
	// Offset separates logical items generated from the same base seed
	// (e.g. a chapter index) so their attempt seeds do not collide.
	Offset int64

	// Label names the generator in logs and metrics.
	Label  string
	Logger *zap.Logger
}

// Attempt records one model call. It lives only as long as the Result.
type Attempt struct {
	Number   int
	Seed     int64
	Raw      string
	Err      error
	Duration time.Duration
}

// Result of a successful loop.
type Result[T any] struct {
	Value    T
	Attempts []Attempt
}

// ExhaustedError is returned when no attempt validated. It matches
// ErrRetriesExhausted and unwraps to the last failure reason.
type ExhaustedError struct {
	Label    string
	Attempts []Attempt
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: no valid output after %d attempts: %v", e.Label, len(e.Attempts), e.Last)
}

func (e *ExhaustedError) Unwrap() []error {
	return []error{ErrRetriesExhausted, e.Last}
}

// Seed derives the model seed for attempt n of an item.
func Seed(base, offset int64, attempt int) int64 {
	return base + offset + int64(attempt)
}

// Run calls the model until validate accepts its output or MaxAttempts calls
// have been made. The first valid output wins and no further calls are made.
//
// Model errors and validation errors are both rejected attempts. A context
// that is done before an attempt starts ends the loop as exhausted.
func Run[T any](ctx context.Context, cfg Config, call Call, validate Validator[T]) (Result[T], error) {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	label := cfg.Label
	if label == "" {
		label = "generation"
	}
	logger := logging.Or(ctx, cfg.Logger).With(zap.String("generator", label))

	var (
		result Result[T]
		last   error
	)
	state := StateAttempting

	for n := 0; state == StateAttempting; n++ {
		if err := ctx.Err(); err != nil {
			last = err
			state = StateExhausted
			break
		}

		seed := Seed(cfg.BaseSeed, cfg.Offset, n)
		start := time.Now()

		raw, err := call(ctx, seed)
		var value T
		if err == nil {
			value, err = validate(raw)
		}

		result.Attempts = append(result.Attempts, Attempt{
			Number:   n,
			Seed:     seed,
			Raw:      raw,
			Err:      err,
			Duration: time.Since(start),
		})

		if err == nil {
			metrics.GenerationAttemptsTotal.WithLabelValues(label, "success").Inc()
			logger.Debug("generation attempt succeeded",
				zap.Int("attempt", n+1),
				zap.Int("max_attempts", maxAttempts),
				zap.Int64("seed", seed),
			)
			result.Value = value
			state = StateSucceeded
			break
		}

		last = err
		metrics.GenerationAttemptsTotal.WithLabelValues(label, "failure").Inc()
		logger.Warn("generation attempt rejected",
			zap.Int("attempt", n+1),
			zap.Int("max_attempts", maxAttempts),
			zap.Int64("seed", seed),
			zap.String("reason", err.Error()),
		)

		if n+1 >= maxAttempts {
			state = StateExhausted
		}
	}

	if state == StateSucceeded {
		return result, nil
	}

	metrics.RetriesExhaustedTotal.WithLabelValues(label).Inc()
	logger.Warn("generation exhausted all attempts",
		zap.Int("attempts", len(result.Attempts)),
		zap.Error(last),
	)

	return result, &ExhaustedError{Label: label, Attempts: result.Attempts, Last: last}
}
