package gateway

import "errors"

func errNew(msg string) error { return errors.New(msg) }
