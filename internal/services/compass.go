package services

import "math"

var compassPoints = [16]string{
	"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE",
	"S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW",
}

// WindDirection converts a bearing in degrees to one of 16 compass labels.
// Sector midpoints round half to even, so 11.25° is "N" and 33.75° is "NE".
func WindDirection(degrees float64) string {
	if math.IsNaN(degrees) || math.IsInf(degrees, 0) {
		return compassPoints[0]
	}

	index := int(math.Mod(math.RoundToEven(degrees/22.5), 16))
	if index < 0 {
		index += 16
	}
	return compassPoints[index]
}
