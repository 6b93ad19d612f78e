package response

const (
	StatusStarted        = "started"
	StatusAlreadyRunning = "already_running"
)

// TriggerRunResponse is returned by the run trigger. The run itself happens
// in the background; its outcome is read through the run status endpoints.
type TriggerRunResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	RunID   string `json:"run_id"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
