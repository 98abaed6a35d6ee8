package utils

import (
  "fmt"

  "github.com/rs/zerolog"
)

// LogArray renders `items` as a zerolog array of their String() values.
func LogArray[T fmt.Stringer](items []T) *zerolog.Array {
  arr := zerolog.Arr()

  for _, item := range items {
    arr.Str(item.String())
  }

  return arr
}
