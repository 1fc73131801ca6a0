package random

import "math/rand/v2"

// Default is the process-wide Source used by the package-level functions.
var Default = NewTimeSeeded()

// SetGlobalSeed calls Default.SetGlobalSeed.
func SetGlobalSeed(value int64) { Default.SetGlobalSeed(value) }

// Seed calls Default.Seed.
func Seed() int64 { return Default.Seed() }

// SetThisThreadSeed calls Default.SetThisThreadSeed.
func SetThisThreadSeed(value int64) { Default.SetThisThreadSeed(value) }

// ThisThreadSeed calls Default.ThisThreadSeed.
func ThisThreadSeed() int64 { return Default.ThisThreadSeed() }

// Release calls Default.Release.
func Release() { Default.Release() }

// Stream calls Default.Stream.
func Stream() *rand.Rand { return Default.Stream() }

// NextUniform calls Default.NextUniform.
func NextUniform() float64 { return Default.NextUniform() }

// NextInt calls Default.NextInt.
func NextInt(min, max int) (int, error) { return Default.NextInt(min, max) }

// NextFloat calls Default.NextFloat.
func NextFloat(min, max float64) (float64, error) { return Default.NextFloat(min, max) }

// NextFloat32 calls Default.NextFloat32.
func NextFloat32(min, max float32) (float32, error) { return Default.NextFloat32(min, max) }

// NextFloatExclusive calls Default.NextFloatExclusive.
func NextFloatExclusive(min, max float64) (float64, error) {
	return Default.NextFloatExclusive(min, max)
}
