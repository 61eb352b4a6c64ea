package transform

// DisplayScaleKm is the number of kilometres per rendering-frame unit. The
// Earth model is scaled by the same factor so that it and satellite positions
// render at consistent relative size.
const DisplayScaleKm = 25000.0

// DisplayCoordinate is a position in the rendering frame. It is only ever
// produced by ECIToDisplay.
type DisplayCoordinate [3]float64

// AxisMapping maps ECI axes onto display axes: display[i] = Sign[i] * eci[Axis[i]],
// with axes numbered X=0, Y=1, Z=2.
type AxisMapping struct {
	Axis [3]int
	Sign [3]float64
}

// DisplayAxes is the one mapping used for every ECI to display conversion:
//
//	[x, y, z]_ECI -> [x, z, -y]_display
//
// ECI Z (north) becomes display up, and the result stays right-handed.
var DisplayAxes = AxisMapping{
	Axis: [3]int{0, 2, 1},
	Sign: [3]float64{1, 1, -1},
}

// Apply maps an ECI vector into display axes without scaling.
func (m AxisMapping) Apply(v Vector) [3]float64 {
	in := [3]float64{v.X, v.Y, v.Z}
	var out [3]float64
	for i := range out {
		out[i] = m.Sign[i] * in[m.Axis[i]]
	}
	return out
}

// invert maps display axes back onto ECI axes without scaling.
func (m AxisMapping) invert(d [3]float64) Vector {
	var out [3]float64
	for i := range d {
		out[m.Axis[i]] = d[i] / m.Sign[i]
	}
	return Vector{out[0], out[1], out[2]}
}

// determinant returns the determinant of the mapping matrix; +1 for a
// proper rotation, -1 for a mirror.
func (m AxisMapping) determinant() float64 {
	var mat [3][3]float64
	for i := 0; i < 3; i++ {
		mat[i][m.Axis[i]] = m.Sign[i]
	}
	return mat[0][0]*(mat[1][1]*mat[2][2]-mat[1][2]*mat[2][1]) -
		mat[0][1]*(mat[1][0]*mat[2][2]-mat[1][2]*mat[2][0]) +
		mat[0][2]*(mat[1][0]*mat[2][1]-mat[1][1]*mat[2][0])
}

// ECIToDisplay converts an ECI position (km) to rendering-frame coordinates.
func ECIToDisplay(r Vector) DisplayCoordinate {
	d := DisplayAxes.Apply(r)
	return DisplayCoordinate{d[0] / DisplayScaleKm, d[1] / DisplayScaleKm, d[2] / DisplayScaleKm}
}

// displayToECI is the inverse of ECIToDisplay.
func displayToECI(d DisplayCoordinate) Vector {
	return DisplayAxes.invert([3]float64{d[0], d[1], d[2]}).Scale(DisplayScaleKm)
}
