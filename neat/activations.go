package neat

import (
	"fmt"
	"math"
)

// ActivationType squashes the weighted input sum of a hidden node.
type ActivationType func(x float64) float64

// DefaultActivation is the squashing function used for hidden nodes unless
// the configuration names another one.
const DefaultActivation = "approx_tanh"

// ActivationFunctions maps function names to the actual activation functions.
// Output nodes are never squashed, whatever is chosen here.
var ActivationFunctions = map[string]ActivationType{
	"approx_tanh": ApproximateTanh,
	"tanh":        math.Tanh,
	"sigmoid":     Sigmoid,
	"clamped":     Clamped,
	"identity":    Identity,
}

// GetActivation retrieves an activation function by name.
func GetActivation(name string) (ActivationType, error) {
	if fn, ok := ActivationFunctions[name]; ok {
		return fn, nil
	}
	return nil, fmt.Errorf("unknown activation function: %s", name)
}

// ApproximateTanh is a rational approximation of tanh, bounded to [-1, 1].
// It is monotonic, odd, and exact at zero.
func ApproximateTanh(x float64) float64 {
	if x <= -3 {
		return -1
	}
	if x >= 3 {
		return 1
	}
	x2 := x * x
	return x * (27 + x2) / (27 + 9*x2)
}

// Sigmoid is the logistic function rescaled to [-1, 1] so that zero input
// stays zero.
func Sigmoid(x float64) float64 {
	return 2.0/(1.0+math.Exp(-4.9*x)) - 1.0
}

// Clamped clamps output between -1 and 1.
func Clamped(x float64) float64 {
	return clamp(x, -1.0, 1.0)
}

// Identity activation function (linear).
func Identity(x float64) float64 {
	return x
}
