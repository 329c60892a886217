package apiclient

import (
	"fmt"
)

type IngestResult struct {
	Status         string `json:"status"`
	ProcessedCount int    `json:"processed_count"`
}

type HydrationResult struct {
	IsTruncated    bool `json:"is_truncated"`
	IsQuoteMissing bool `json:"is_quote_missing"`
}

type IncompleteTweet struct {
	RestID         string  `json:"rest_id"`
	AuthorHandle   string  `json:"author_handle"`
	IsTruncated    bool    `json:"is_truncated"`
	IsQuoteMissing bool    `json:"is_quote_missing"`
	QuotedStatusID *string `json:"quoted_status_id"`
}

type IncompleteList struct {
	Count  int               `json:"count"`
	Tweets []IncompleteTweet `json:"tweets"`
}

// StatusError means the API answered with a non-2xx status.
type StatusError struct {
	Endpoint string
	Code     int
	Status   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: server responded %s", e.Endpoint, e.Status)
}

// UnreachableError means the request never produced a response.
type UnreachableError struct {
	Endpoint string
	Err      error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("%s: api unreachable: %v", e.Endpoint, e.Err)
}

func (e *UnreachableError) Unwrap() error {
	return e.Err
}
