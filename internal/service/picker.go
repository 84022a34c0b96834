package service

import "math/rand/v2"

// Picker chooses an index in [0, n). Claims use it to spread candidates
// uniformly across interviewers sharing a time bucket.
type Picker interface {
	Intn(n int) int
}

type randomPicker struct{}

func (randomPicker) Intn(n int) int {
	return rand.IntN(n)
}

// PickerFunc adapts a function to Picker.
type PickerFunc func(n int) int

// Intn implements Picker.
func (f PickerFunc) Intn(n int) int {
	return f(n)
}
