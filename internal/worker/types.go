package worker

import "voyagemate/apps/backend/internal/pipeline"

// Runners resolves the single-entity runner for an entity name.
type Runners interface {
	Runner(entity string) (pipeline.Runner, error)
}

// Publisher matches *nsq.Producer.
type Publisher interface {
	Publish(topic string, body []byte) error
}
