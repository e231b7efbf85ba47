package robustpgo

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// MahalanobisThreshold returns the Mahalanobis distance below which a zero
// mean Gaussian error of dimension dim falls with the given probability.
// The squared distance follows a chi-square distribution with dim degrees of
// freedom.
func MahalanobisThreshold(dim int, confidence float64) float64 {
	chi2 := distuv.ChiSquared{K: float64(dim)}
	return math.Sqrt(chi2.Quantile(confidence))
}

// ChiSquareConfidence returns the probability that a zero mean Gaussian error
// of dimension dim has a Mahalanobis norm of at most norm.
func ChiSquareConfidence(dim int, norm float64) float64 {
	if math.IsInf(norm, 1) {
		return 1
	}
	chi2 := distuv.ChiSquared{K: float64(dim)}
	return chi2.CDF(norm * norm)
}
