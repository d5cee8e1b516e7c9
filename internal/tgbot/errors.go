package tgbot

import (
	"fmt"

	"github.com/go-faster/errors"
)

// ErrPolicyBlocked посилання на платформу, з якої завантаження вимкнено.
var ErrPolicyBlocked = errors.New("платформа заблокована")

// DeliveryError невдале надсилання одного файлу.
type DeliveryError struct {
	Path  string
	Route string
	Err   error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("надсилання %s (%s): %v", e.Path, e.Route, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

func deliveryErr(path, route string, err error) error {
	if err == nil {
		return nil
	}
	return &DeliveryError{Path: path, Route: route, Err: err}
}
