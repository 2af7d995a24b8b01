package storage

import (
	"time"
)

// DescriptorRecord is one row of switch_descriptors.
type DescriptorRecord struct {
	Key         string    `json:"key"`
	Descriptors []byte    `json:"descriptors"` // JSONB
	UpdatedAt   time.Time `json:"updated_at"`
}
