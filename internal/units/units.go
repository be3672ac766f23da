// Package units converts between the angular units used by telescope
// configuration and the spatial-frequency units used by the optics core.
package units

import "math"

// ArcsecPerRadian is the number of arcseconds in one radian (≈ 206264.806).
const ArcsecPerRadian = 180 * 3600 / math.Pi

// ArcsecPerArcmin is the number of arcseconds in one arcminute.
const ArcsecPerArcmin = 60.0

// RadiansToArcsec converts an angle in radians to arcseconds.
func RadiansToArcsec(rad float64) float64 {
	return rad * ArcsecPerRadian
}

// ArcsecToRadians converts an angle in arcseconds to radians.
func ArcsecToRadians(arcsec float64) float64 {
	return arcsec / ArcsecPerRadian
}

// ArcminToArcsec converts an angle in arcminutes to arcseconds.
func ArcminToArcsec(arcmin float64) float64 {
	return arcmin * ArcsecPerArcmin
}

// AngularFWHMArcsec converts a PSF width expressed in spatial-frequency units
// (inverse length) to an angle in arcseconds at the given wavelength
// (same length unit as the aperture).
func AngularFWHMArcsec(width, wavelength float64) float64 {
	return RadiansToArcsec(width * wavelength)
}
