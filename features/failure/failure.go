package failure

import "time"

// Failure is one retryable embedding or store write failure kept for later replay.
type Failure struct {
	ID        string    `json:"id"`
	Entity    string    `json:"entity"`
	EntityID  int64     `json:"entity_id"`
	Stage     string    `json:"stage"`
	Reason    string    `json:"reason"`
	RunID     string    `json:"run_id"`
	Retries   int       `json:"retries"`
	CreatedAt time.Time `json:"created_at"`
}
