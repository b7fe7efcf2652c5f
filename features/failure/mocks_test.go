package failure_test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"voyagemate/apps/backend/features/failure"
)

type MockRepo struct {
	mock.Mock
}

func (m *MockRepo) Save(ctx context.Context, f *failure.Failure) error {
	return m.Called(ctx, f).Error(0)
}

func (m *MockRepo) List(ctx context.Context, entity string) ([]failure.Failure, error) {
	args := m.Called(ctx, entity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]failure.Failure), args.Error(1)
}

func (m *MockRepo) Get(ctx context.Context, id string) (*failure.Failure, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*failure.Failure), args.Error(1)
}

func (m *MockRepo) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockRepo) DeleteEntities(ctx context.Context, entity string, entityIDs []int64) error {
	return m.Called(ctx, entity, entityIDs).Error(0)
}

func (m *MockRepo) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(topic string, body []byte) error {
	return m.Called(topic, body).Error(0)
}
