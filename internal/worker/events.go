package worker

import (
	"encoding/json"
	"errors"
	"fmt"
)

type Op string

const (
	OpIndex  Op = "index"
	OpDelete Op = "delete"
)

var ErrInvalidTask = errors.New("invalid index task")

// IndexTask asks a worker to re-index or delete one entity. Published on config.TopicIndexEntity.
type IndexTask struct {
	Entity        string `json:"entity"`
	ID            int64  `json:"id"`
	Op            Op     `json:"op"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

func (t IndexTask) Validate() error {
	switch {
	case t.Entity == "":
		return fmt.Errorf("%w: entity missing", ErrInvalidTask)
	case t.ID <= 0:
		return fmt.Errorf("%w: id %d", ErrInvalidTask, t.ID)
	case t.Op != OpIndex && t.Op != OpDelete:
		return fmt.Errorf("%w: op %q", ErrInvalidTask, t.Op)
	}
	return nil
}

func (t IndexTask) Encode() ([]byte, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(t)
}
