package repository

import "errors"

var (
	ErrNoData             = errors.New("no data")
	ErrAllProvidersFailed = errors.New("all providers failed")
	ErrUnknownProvider    = errors.New("unknown provider")
)
