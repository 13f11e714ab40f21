package mocks

import (
	"context"

	"tolerance-journey/internal/models"

	"github.com/stretchr/testify/mock"
)

// MockGenerationLister is a mock type for the GenerationLister type
type MockGenerationLister struct {
	mock.Mock
}

// ListRecent provides a mock function with given fields: ctx, limit
func (_m *MockGenerationLister) ListRecent(ctx context.Context, limit int) ([]models.GenerationResult, error) {
	ret := _m.Called(ctx, limit)

	var r0 []models.GenerationResult
	if rf, ok := ret.Get(0).(func(context.Context, int) []models.GenerationResult); ok {
		r0 = rf(ctx, limit)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).([]models.GenerationResult)
	}
	return r0, ret.Error(1)
}

// NewMockGenerationLister creates a new instance of MockGenerationLister.
func NewMockGenerationLister(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockGenerationLister {
	m := &MockGenerationLister{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}
