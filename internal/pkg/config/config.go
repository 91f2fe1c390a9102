package config

import (
	"io"
	"time"
)

// TimeConfig defines helpers for retrieving duration values stored as integers.
type TimeConfig interface {
	// GetMillisecond retrieves the value associated with key as milliseconds.
	GetMillisecond(key string) time.Duration
	// GetSecond retrieves the value associated with key as seconds.
	GetSecond(key string) time.Duration
	// GetMinute retrieves the value associated with key as minutes.
	GetMinute(key string) time.Duration
}

// Config defines the configuration lookups used by the application.
//
// Missing keys and values that cannot be converted yield the zero value of
// the requested type.
type Config interface {
	io.Closer
	TimeConfig

	// GetBool retrieves the value associated with key as a bool.
	GetBool(key string) bool
	// GetString retrieves the value associated with key as a string.
	GetString(key string) string
	// GetInt retrieves the value associated with key as an int.
	GetInt(key string) int
	// GetInt64 retrieves the value associated with key as an int64.
	GetInt64(key string) int64
	// GetFloat64 retrieves the value associated with key as a float64.
	GetFloat64(key string) float64
	// GetArray retrieves the value associated with key as a slice of strings.
	// The value is stored either as a list or with format <element1>,<element2>,...
	GetArray(key string) []string
}
