package services

import (
	"context"

	"github.com/dernekpro/backend/internal/sms"
	"github.com/stretchr/testify/mock"
)

type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) Name() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockProvider) SendSingle(ctx context.Context, to, message string) sms.SendResult {
	args := m.Called(ctx, to, message)
	return args.Get(0).(sms.SendResult)
}

func (m *MockProvider) SendBulk(ctx context.Context, to []string, message string) []sms.SendResult {
	args := m.Called(ctx, to, message)
	return args.Get(0).([]sms.SendResult)
}

type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Name() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockMailer) Send(ctx context.Context, to, subject, body string) error {
	args := m.Called(ctx, to, subject, body)
	return args.Error(0)
}
