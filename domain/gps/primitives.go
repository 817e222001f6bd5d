package gps

import (
	"math"
	"strconv"
)

// Rect is a bounding box in degrees, stored as minX,minY,maxX,maxY with X the
// longitude and Y the latitude
type Rect [4]float64

// RectFrom builds the rectangle spanned by two corners given in any order
func RectFrom(x0, y0, x1, y1 float64) Rect {
	return Rect{math.Min(x0, x1), math.Min(y0, y1), math.Max(x0, x1), math.Max(y0, y1)}
}

// BBox formats the rectangle as minX,minY,maxX,maxY
func (r Rect) BBox() string {
	return strconv.FormatFloat(r[0], 'f', -1, 64) + "," +
		strconv.FormatFloat(r[1], 'f', -1, 64) + "," +
		strconv.FormatFloat(r[2], 'f', -1, 64) + "," +
		strconv.FormatFloat(r[3], 'f', -1, 64)
}
