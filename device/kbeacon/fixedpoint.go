package kbeacon

import "math"

// DecodeFixedPoint converts a signed 8.8 fixed-point value to a decimal number rounded
// to two places. Ties round to even: 32/256 = 0.125 decodes to 0.12.
func DecodeFixedPoint(v int16) float64 {
  // v * 100 / 256 is exact in a float64, so the only rounding happens here.
  return math.RoundToEven(float64(v) * 100 / 256) / 100
}
