package handlers

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/limoline/dispatch/internal/domain/entities"
)

var registerOnce sync.Once

// RegisterValidators adds the domain tags to gin's validator:
//
//	ride_status  one of the known ride statuses
//	latitude     -90..90
//	longitude    -180..180
//
// Safe to call more than once.
func RegisterValidators() error {
	var err error
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			err = errors.New("gin validator engine is not go-playground/validator")
			return
		}
		for tag, fn := range map[string]validator.Func{
			"ride_status": validateRideStatus,
			"latitude":    validateLatitude,
			"longitude":   validateLongitude,
		} {
			if err = v.RegisterValidation(tag, fn); err != nil {
				return
			}
		}
	})
	return err
}

func validateRideStatus(fl validator.FieldLevel) bool {
	_, ok := entities.ParseRideStatus(fl.Field().String())
	return ok
}

func validateLatitude(fl validator.FieldLevel) bool {
	lat, ok := floatField(fl)
	return ok && lat >= -90 && lat <= 90
}

func validateLongitude(fl validator.FieldLevel) bool {
	lon, ok := floatField(fl)
	return ok && lon >= -180 && lon <= 180
}

// floatField reads float fields directly and through a pointer.
func floatField(fl validator.FieldLevel) (float64, bool) {
	field := fl.Field()
	if !field.CanFloat() {
		return 0, false
	}
	return field.Float(), true
}

// describeValidation turns validator errors into one readable line.
func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "ride_status":
			msgs = append(msgs, fmt.Sprintf("%s %q is not a ride status", field, fe.Value()))
		case "latitude":
			msgs = append(msgs, field+" must be between -90 and 90")
		case "longitude":
			msgs = append(msgs, field+" must be between -180 and 180")
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}
