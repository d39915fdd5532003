package export

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"
)

// MockObjectWriter is a mock implementation of ObjectWriter for testing.
type MockObjectWriter struct {
	mock.Mock
}

// PutObject is the mock implementation of the PutObject method.
func (m *MockObjectWriter) PutObject(ctx context.Context, path, contentType string, r io.Reader) (string, error) {
	args := m.Called(ctx, path, contentType, r)
	return args.String(0), args.Error(1) //nolint:wrapcheck
}
