package mocks

import (
	"context"

	"tolerance-journey/internal/models"

	"github.com/stretchr/testify/mock"
)

// MockResultRecorder is a mock type for the ResultRecorder type
type MockResultRecorder struct {
	mock.Mock
}

// Save provides a mock function with given fields: ctx, result
func (_m *MockResultRecorder) Save(ctx context.Context, result *models.GenerationResult) error {
	ret := _m.Called(ctx, result)

	if rf, ok := ret.Get(0).(func(context.Context, *models.GenerationResult) error); ok {
		return rf(ctx, result)
	}
	return ret.Error(0)
}

// NewMockResultRecorder creates a new instance of MockResultRecorder.
func NewMockResultRecorder(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockResultRecorder {
	m := &MockResultRecorder{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}
