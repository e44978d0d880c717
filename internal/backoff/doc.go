// Package backoff computes retry delays under a truncated exponential policy.
//
// A Policy describes the curve: the nominal interval for attempt n is
// InitialInterval * Multiplier^(n-1), capped at MaxInterval, and the delay
// actually returned is drawn uniformly from interval * (1 ± RandomizationFactor).
//
// A Controller applies a Policy to one logical operation. It owns the only
// state in the package, an elapsed-time accumulator started when the
// Controller is created. Once the elapsed time plus the next delay would pass
// MaxElapsedTime the Controller reports exhaustion instead of a delay.
// Controllers are never shared between operations; create one per retried call.
//
// Clock and random source are injectable so tests can drive elapsed time and
// jitter deterministically.
package backoff
