package service

import "errors"

var (
	ErrCoinExists      = errors.New("coin already exists")
	ErrCoinNotQuotable = errors.New("coin is not quoted by the exchange")
	ErrCoinNotFound    = errors.New("coin not found")
	ErrNoCurrentPrice  = errors.New("coin has no current price yet")
	ErrAlertExists     = errors.New("alert already exists")
	ErrAlertNotFound   = errors.New("alert not found")
)
