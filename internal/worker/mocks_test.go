package worker_test

import (
	"context"
	"errors"

	"github.com/stretchr/testify/mock"

	"voyagemate/apps/backend/internal/pipeline"
)

type MockRunner struct{ mock.Mock }

func (m *MockRunner) Entity() string { return "destinations" }

func (m *MockRunner) Run(ctx context.Context) (*pipeline.Report, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pipeline.Report), args.Error(1)
}

func (m *MockRunner) IndexOne(ctx context.Context, id int64) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockRunner) DeleteOne(ctx context.Context, id int64) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

type runnerMap map[string]pipeline.Runner

func (r runnerMap) Runner(entity string) (pipeline.Runner, error) {
	if run, ok := r[entity]; ok {
		return run, nil
	}
	return nil, errors.New("unknown entity")
}

type MockPublisher struct{ mock.Mock }

func (m *MockPublisher) Publish(topic string, body []byte) error {
	return m.Called(topic, body).Error(0)
}
