package model

import "errors"

var (
	ErrParameterNotFound  = errors.New("parameter not found")
	ErrAlertNotFound      = errors.New("alert not found")
	ErrInvalidTransition  = errors.New("invalid alert status transition")
	ErrInvalidAlert       = errors.New("invalid alert")
	ErrDuplicateAlert     = errors.New("alert already raised for this measurement")
	ErrInvalidMeasurement = errors.New("invalid measurement")
)
