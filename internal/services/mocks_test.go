package services

import (
	"github.com/stretchr/testify/mock"
)

type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) SendOTPEmail(to, otpCode string, data PaymentEmailData) error {
	args := m.Called(to, otpCode, data)
	return args.Error(0)
}

func (m *MockMailer) SendPaymentConfirmation(to string, data ConfirmationEmailData) error {
	args := m.Called(to, data)
	return args.Error(0)
}
