package catalog

import "context"

const PseudoHandlerName = "pseudo"

// Pseudo dispenses nothing physical and always succeeds. It backs items
// that only move money, such as snacks sold from an honour box.
type Pseudo struct{}

func (Pseudo) Name() string { return PseudoHandlerName }

func (Pseudo) CanDispense(context.Context, int, int) error { return nil }

func (Pseudo) DoDispense(context.Context, int, int) error { return nil }

// Unavailable stands in for handlers that are not running.
type Unavailable struct {
	name string
}

func (u Unavailable) Name() string { return u.name }

func (Unavailable) CanDispense(context.Context, int, int) error { return ErrUnavailable }

func (Unavailable) DoDispense(context.Context, int, int) error { return ErrUnavailable }
