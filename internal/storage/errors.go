package storage

import "errors"

// ErrCorruptData is returned when the storage file cannot be decoded.
var ErrCorruptData = errors.New("storage: corrupt data file")

// ErrTradeNotFound is returned when a trade ID has no recorded trade.
var ErrTradeNotFound = errors.New("storage: trade not found")
