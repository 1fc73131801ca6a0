// Package random provides per-goroutine pseudo-random streams that are
// reproducible when a global seed is fixed.
//
// Every goroutine that draws a value gets its own generator, created on first
// use and seeded from a shared counter: after SetGlobalSeed(42) the next
// goroutine to materialize a generator is seeded with 43, the one after that
// with 44, and so on. Generators are never shared, so drawing values needs no
// locking.
//
// Interval conventions:
//   - NextUniform: [0, 1)
//   - NextInt(min, max): [min, max), NextInt(n, n) returns n
//   - NextFloat(min, max): [min, max), NextFloat(x, x) returns x
//   - NextFloatExclusive(min, max): (min, max), fails when the interval is empty
//
// Every range call fails with ErrInvalidRange when min > max.
package random

import (
	"errors"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Swind/go-frame-runner/internal/goid"
)

// ErrInvalidRange is returned by the range functions when min > max.
var ErrInvalidRange = errors.New("framerunner: invalid random range")

// pcgStream is xored into the second PCG word so seed n and seed n+1 don't
// share a stream selector.
const pcgStream = 0x9e3779b97f4a7c15

type generator struct {
	rng  *rand.Rand
	seed int64
}

func newGenerator(seed int64) *generator {
	return &generator{
		rng:  rand.New(rand.NewPCG(uint64(seed), uint64(seed)^pcgStream)),
		seed: seed,
	}
}

// factory hands out seeds to goroutines materializing their generator.
// SetGlobalSeed replaces the whole factory.
type factory struct {
	origin  int64
	counter atomic.Int64
}

func newFactory(seed int64) *factory {
	f := &factory{origin: seed}
	f.counter.Store(seed)
	return f
}

// Source is a set of per-goroutine generators sharing one seed counter.
// The zero value is not usable, see New.
type Source struct {
	factory atomic.Pointer[factory]
	streams sync.Map // goroutine id -> *generator
}

// New creates a Source whose first generator will be seeded with seed+1.
func New(seed int64) *Source {
	s := &Source{}
	s.factory.Store(newFactory(seed))
	return s
}

// NewTimeSeeded creates a Source seeded from the wall clock.
func NewTimeSeeded() *Source {
	return New(int64(uint32(time.Now().UnixNano())))
}

// SetGlobalSeed stores value as the running counter. Goroutines creating
// their generator after this call are seeded value+1, value+2, ...
// Generators that already exist keep their stream.
func (s *Source) SetGlobalSeed(value int64) {
	s.factory.Store(newFactory(value))
}

// Seed returns the value last passed to SetGlobalSeed (or New).
func (s *Source) Seed() int64 {
	return s.factory.Load().origin
}

// SetThisThreadSeed replaces the calling goroutine's generator with one seeded
// with value. The shared counter is not touched.
func (s *Source) SetThisThreadSeed(value int64) {
	s.streams.Store(goid.Current(), newGenerator(value))
}

// ThisThreadSeed returns the seed of the calling goroutine's generator,
// materializing it if needed.
func (s *Source) ThisThreadSeed() int64 {
	return s.current().seed
}

// Release drops the calling goroutine's generator. Long-running programs that
// spawn many short-lived goroutines should call it when a goroutine is done
// drawing values.
func (s *Source) Release() {
	s.streams.Delete(goid.Current())
}

// HasStream reports whether the calling goroutine already has a generator.
func (s *Source) HasStream() bool {
	_, ok := s.streams.Load(goid.Current())
	return ok
}

// Stream returns the calling goroutine's generator. It must not be handed to
// other goroutines.
func (s *Source) Stream() *rand.Rand {
	return s.current().rng
}

func (s *Source) current() *generator {
	id := goid.Current()
	if v, ok := s.streams.Load(id); ok {
		return v.(*generator)
	}
	g := newGenerator(s.factory.Load().counter.Add(1))
	s.streams.Store(id, g)
	return g
}

// NextUniform returns a value in [0, 1).
func (s *Source) NextUniform() float64 {
	return s.current().rng.Float64()
}

// NextInt returns a value in [min, max). NextInt(n, n) returns n.
func (s *Source) NextInt(min, max int) (int, error) {
	if min > max {
		return 0, ErrInvalidRange
	}
	if min == max {
		return min, nil
	}
	span := uint64(max) - uint64(min)
	return min + int(s.current().rng.Uint64N(span)), nil
}

// NextFloat returns a value in [min, max). NextFloat(x, x) returns x.
func (s *Source) NextFloat(min, max float64) (float64, error) {
	if min > max {
		return 0, ErrInvalidRange
	}
	if min == max {
		return min, nil
	}
	return s.floatIn(min, max), nil
}

// NextFloat32 is NextFloat for float32 bounds.
func (s *Source) NextFloat32(min, max float32) (float32, error) {
	if min > max {
		return 0, ErrInvalidRange
	}
	if min == max {
		return min, nil
	}
	v := float32(float64(min) + s.current().rng.Float64()*(float64(max)-float64(min)))
	if v >= max {
		v = math.Nextafter32(max, min)
	}
	return v, nil
}

// NextFloatExclusive returns a value in the open interval (min, max). It
// fails with ErrInvalidRange when no float64 lies strictly between the bounds.
func (s *Source) NextFloatExclusive(min, max float64) (float64, error) {
	if min > max {
		return 0, ErrInvalidRange
	}
	lo := math.Nextafter(min, math.Inf(1))
	if lo >= max {
		return 0, ErrInvalidRange
	}
	return s.floatIn(lo, max), nil
}

// floatIn draws from [min, max), min < max. Scaling can round up to max for
// wide spans, so the result is clamped to the largest float below max.
func (s *Source) floatIn(min, max float64) float64 {
	v := min + s.current().rng.Float64()*(max-min)
	if v >= max {
		v = math.Nextafter(max, min)
	}
	return v
}
