// Package geo содержит проверку размещения относительно якоря местоположения.
package geo

import (
	"errors"
	"math"

	"github.com/mmeshcher/geodrop-system/internal/model"
)

// ErrNoAnchor возвращается, если у пользователя нет актуального якоря местоположения.
var ErrNoAnchor = errors.New("no location anchor")

const earthRadiusMeters = 6371000.0

// Distance возвращает расстояние по дуге большого круга между двумя точками в метрах.
func Distance(a, b model.Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)

	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}

// Check сверяет кандидата с якорем и радиусом. Возвращает расстояние до якоря
// и признак попадания в радиус. Отсутствие якоря — явная ошибка ErrNoAnchor;
// выход за радиус ошибкой не считается: это штатное состояние, о котором
// пользователю отдельно не сообщают.
func Check(anchor *model.Point, radius float64, candidate model.Point) (float64, bool, error) {
	if anchor == nil {
		return 0, false, ErrNoAnchor
	}

	dist := Distance(*anchor, candidate)
	return dist, dist <= radius, nil
}
