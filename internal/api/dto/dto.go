package dto

import "encoding/json"

// TimeRange is an inclusive-exclusive unix-second window.
type TimeRange struct {
	StartTimestamp int64 `json:"start_timestamp"`
	EndTimestamp   int64 `json:"end_timestamp"`
}

// PricingParams carries the per-metric windows as (start, end) pairs. The
// volatility window drives the max_return computation.
type PricingParams struct {
	Twap         [2]int64 `json:"twap"`
	Volatility   [2]int64 `json:"volatility"`
	ReservePrice [2]int64 `json:"reserve_price"`
}

type ClientInfo struct {
	ClientAddress string `json:"client_address"`
	VaultAddress  string `json:"vault_address"`
	Timestamp     int64  `json:"timestamp"`
}

type PricingDataRequest struct {
	Identifiers []string      `json:"identifiers" binding:"required"`
	Params      PricingParams `json:"params" binding:"required"`
	ClientInfo  ClientInfo    `json:"client_info"`
}

// JobResponse is the uniform submission response.
type JobResponse struct {
	Status     string `json:"status,omitempty"`
	Message    string `json:"message,omitempty"`
	JobGroupID string `json:"job_group_id"`
}

type DispatchJobRequest struct {
	JobGroupID   string    `json:"job_group_id"`
	Twap         TimeRange `json:"twap" binding:"required"`
	ReservePrice TimeRange `json:"reserve_price" binding:"required"`
	MaxReturn    TimeRange `json:"max_return" binding:"required"`
}

type JobDTO struct {
	JobID        string          `json:"job_id"`
	JobGroupID   string          `json:"job_group_id"`
	Kind         string          `json:"kind"`
	WindowStart  int64           `json:"window_start"`
	WindowEnd    int64           `json:"window_end"`
	Status       string          `json:"status"`
	Result       json.RawMessage `json:"result,omitempty"`
	AttemptCount int             `json:"attempt_count"`
	CreatedAt    string          `json:"created_at"`
	UpdatedAt    string          `json:"updated_at"`
}

type GroupStatusResponse struct {
	JobGroupID string   `json:"job_group_id"`
	Status     string   `json:"status"`
	Jobs       []JobDTO `json:"jobs"`
}

type ListJobsRequest struct {
	JobGroupID string `form:"job_group_id"`
	Status     string `form:"status"`
	Kind       string `form:"kind"`
	PageSize   int    `form:"page_size"`
	Cursor     string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name" binding:"required"`
}

type CreateAPIKeyResponse struct {
	Name   string `json:"name"`
	APIKey string `json:"api_key"`
}
