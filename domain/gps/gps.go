package gps

import (
	"encoding/json"
	"fmt"
	"math"
)

const (
	MinLatitude  = -90.0
	MaxLatitude  = 90.0
	MinLongitude = -180.0
	MaxLongitude = 180.0
)

type Coordinates struct {
	lat  float64
	long float64
}

func (gps *Coordinates) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Lat  float64 `json:"lat"`
		Long float64 `json:"long"`
	}{
		Lat:  gps.lat,
		Long: gps.long,
	})
}

func (gps *Coordinates) UnmarshalJSON(buf []byte) error {
	var c struct {
		Lat  float64 `json:"lat"`
		Long float64 `json:"long"`
	}
	if err := json.Unmarshal(buf, &c); err != nil {
		return err
	}
	gps.lat = c.Lat
	gps.long = c.Long
	return nil
}

func NewCoordinates(lat, long float64) Coordinates {
	return Coordinates{lat: lat, long: long}
}

// ParseCoordinates validates lat/long against the world ranges
func ParseCoordinates(lat, long float64) (Coordinates, error) {
	if math.IsNaN(lat) || lat < MinLatitude || lat > MaxLatitude {
		return Coordinates{}, fmt.Errorf("latitude out of range: %f", lat)
	}
	if math.IsNaN(long) || long < MinLongitude || long > MaxLongitude {
		return Coordinates{}, fmt.Errorf("longitude out of range: %f", long)
	}
	return NewCoordinates(lat, long), nil
}

func (c Coordinates) Lat() float64 {
	return c.lat
}

func (c Coordinates) Long() float64 {
	return c.long
}

func (c Coordinates) String() string {
	return fmt.Sprintf("[%f;%f]", c.lat, c.long)
}

func (c *Coordinates) ISO6709() string {
	return fmt.Sprintf("%+010.6f%+011.6f/", c.lat, c.long)
}

// SearchBox returns the rectangle of the given half extents around c, clamped to
// the world. X is the longitude, Y the latitude.
func (c Coordinates) SearchBox(halfWidth, halfHeight float64) Rect {
	return Rect{
		math.Max(c.long-halfWidth, MinLongitude),
		math.Max(c.lat-halfHeight, MinLatitude),
		math.Min(c.long+halfWidth, MaxLongitude),
		math.Min(c.lat+halfHeight, MaxLatitude),
	}
}
