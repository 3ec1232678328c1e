package shared

const (
	StatusOK     = "OK"
	StatusFailed = "FAILED"
)

// GenericResult is the outcome of one unit of work of a command.
type GenericResult struct {
	Args    interface{} `json:"args"`
	Result  interface{} `json:"result"`
	Status  string      `json:"status"`
	Message string      `json:"message"`
}

// GenericLaunchesResult aggregates the results of a command.
type GenericLaunchesResult struct {
	Launches []GenericResult `json:"launches"`
}
