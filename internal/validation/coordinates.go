package validation

import (
	"fmt"
	"math"

	"github.com/yourorg/together/internal/models"
)

// MaxDurationMinutes es el máximo que el servidor acepta para una sesión (24 h)
const MaxDurationMinutes = 24 * 60

// CoordinateError representa un error de validación de un campo numérico
type CoordinateError struct {
	Field   string
	Value   float64
	Message string
}

func (e *CoordinateError) Error() string {
	return fmt.Sprintf("%s: %s (valor: %.6f)", e.Field, e.Message, e.Value)
}

func checkRange(v, min, max float64, field string) error {
	if math.IsNaN(v) {
		return &CoordinateError{Field: field, Value: v, Message: "valor NaN no permitido"}
	}
	if math.IsInf(v, 0) {
		return &CoordinateError{Field: field, Value: v, Message: "valor infinito no permitido"}
	}
	if v < min || v > max {
		return &CoordinateError{Field: field, Value: v, Message: fmt.Sprintf("debe estar entre %g y %g", min, max)}
	}
	return nil
}

// ValidateLatitude valida una coordenada de latitud
func ValidateLatitude(lat float64, fieldName string) error {
	return checkRange(lat, -90, 90, fieldName)
}

// ValidateLongitude valida una coordenada de longitud
func ValidateLongitude(lon float64, fieldName string) error {
	return checkRange(lon, -180, 180, fieldName)
}

// ValidatePosition valida una muestra recibida del cliente.
// La precisión es opcional pero si viene debe ser positiva y finita.
func ValidatePosition(p models.Position) error {
	if err := ValidateLatitude(p.Latitude, "latitude"); err != nil {
		return err
	}
	if err := ValidateLongitude(p.Longitude, "longitude"); err != nil {
		return err
	}
	if IsZeroCoordinate(p.Latitude, p.Longitude) {
		// (0,0) es lo que manda un GPS sin fix
		return &CoordinateError{Field: "latitude", Value: 0, Message: "coordenada (0,0) no permitida"}
	}
	if p.Accuracy != nil {
		if err := checkRange(*p.Accuracy, 0, math.MaxFloat64, "accuracy"); err != nil {
			return err
		}
	}
	return nil
}

// ValidateDuration valida la duración pedida en minutos
func ValidateDuration(minutes int) error {
	if minutes <= 0 || minutes > MaxDurationMinutes {
		return &CoordinateError{
			Field:   "duration",
			Value:   float64(minutes),
			Message: fmt.Sprintf("debe estar entre 1 y %d minutos", MaxDurationMinutes),
		}
	}
	return nil
}

// IsZeroCoordinate verifica si una coordenada es (0, 0)
func IsZeroCoordinate(lat, lon float64) bool {
	return lat == 0 && lon == 0
}
