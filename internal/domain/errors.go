package domain

import "errors"

var (
    ErrValidation    = errors.New("validation failed")
    ErrNotFound      = errors.New("not found")
    ErrUnauthorized  = errors.New("unauthorized")
    ErrBadRequest    = errors.New("bad request")
    ErrRemoteServer  = errors.New("remote server error")
    ErrRemoteTimeout = errors.New("remote timeout")
)
