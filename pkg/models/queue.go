package models

import "time"

// QueuedAttempt is an attempt together with its local queue bookkeeping
type QueuedAttempt struct {
	Attempt      `yaml:",inline"`
	Seq          int64      `json:"seq" yaml:"seq"`
	RetryCount   int        `json:"retry_count" yaml:"retry_count"`
	LastError    string     `json:"last_error,omitempty" yaml:"last_error,omitempty"`
	DeadLettered bool       `json:"dead_lettered" yaml:"dead_lettered"`
	SyncedAt     *time.Time `json:"synced_at,omitempty" yaml:"synced_at,omitempty"`
}

// QueueStats summarizes the local queue
type QueueStats struct {
	Pending      int `json:"pending" yaml:"pending" db:"pending"`
	Synced       int `json:"synced" yaml:"synced" db:"synced"`
	DeadLettered int `json:"dead_lettered" yaml:"dead_lettered" db:"dead_lettered"`
}
