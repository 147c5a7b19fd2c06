package api

import "time"

// errorResponse is the JSON body for every non-2xx response.
type errorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

func newErrorResponse(code, message string) errorResponse {
	return errorResponse{
		Error:     code,
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// runResponse wraps a successful run's results.
type runResponse struct {
	Success bool `json:"success"`
	Results any  `json:"results"`
}

// runRequest is the body for tier-run endpoints. Both fields are optional.
type runRequest struct {
	MaxJobs       int    `json:"max_jobs"`
	ModelOverride string `json:"model_override"`
}

// sequentialRequest is the body for the sequential-batch endpoint. Every
// tier's overrides are optional.
type sequentialRequest struct {
	Tier1 runRequest `json:"tier1"`
	Tier2 runRequest `json:"tier2"`
	Tier3 runRequest `json:"tier3"`
}
