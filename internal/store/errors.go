package store

import "errors"

var (
	ErrNotFound      = errors.New("record not found")
	ErrNotOwner      = errors.New("actor does not own the record")
	ErrAlreadyExists = errors.New("record already exists")
)
