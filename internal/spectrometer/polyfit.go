package spectrometer

import (
	"gonum.org/v1/gonum/mat"
)

// polyfit fits a degree-th order polynomial to (xs, ys) by least squares
// and returns the coefficients lowest-order-first, the way
// numpy.polyfit(...)[::-1] is reversed in PiccoloSpectrometer.meta. Used
// only for the wavelength calibration fit; gonum has no numpy.polyfit
// equivalent so the Vandermonde-system solve is done directly against
// gonum/mat, from the same gonum module whose gonum/stat does
// autointegration's line fit.
func polyfit(xs, ys []float64, degree int) []float64 {
	n := len(xs)
	if n == 0 {
		return make([]float64, degree+1)
	}
	a := mat.NewDense(n, degree+1, nil)
	for i, x := range xs {
		v := 1.0
		for j := 0; j <= degree; j++ {
			a.Set(i, j, v)
			v *= x
		}
	}
	b := mat.NewVecDense(n, ys)

	var qr mat.QR
	qr.Factorize(a)

	var coeffs mat.VecDense
	if err := qr.SolveVecTo(&coeffs, false, b); err != nil {
		return make([]float64, degree+1)
	}
	out := make([]float64, degree+1)
	for i := range out {
		out[i] = coeffs.AtVec(i)
	}
	return out
}
