package models

import (
	"strconv"
	"strings"
)

// Metadata is the opaque key/value bag a gateway session carries.
type Metadata map[string]string

func (m Metadata) GetInt64(key string) int64 {
	if m == nil {
		return 0
	}
	val, ok := m[key]
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func (m Metadata) GetString(key string) string {
	if m == nil {
		return ""
	}
	return m[key]
}

func (m Metadata) SetInt64(key string, val int64) {
	m[key] = strconv.FormatInt(val, 10)
}
