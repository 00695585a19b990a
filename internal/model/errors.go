package model

import (
	"errors"
)

var (
	ErrEmpty  = errors.New("file is empty")
	ErrTooBig  = errors.New("file too big")
)
