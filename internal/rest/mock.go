package rest

import (
	"context"

	"github.com/pawhaven/chatkit/internal/types"
	"github.com/stretchr/testify/mock"
)

type MockChatAPI struct {
	mock.Mock
}

func (m *MockChatAPI) ListRooms(ctx context.Context) ([]types.Room, error) {
	args := m.Called(ctx)
	if rooms, ok := args.Get(0).([]types.Room); ok {
		return rooms, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockChatAPI) OpenForSubject(ctx context.Context, subjectRef string) (types.Room, error) {
	args := m.Called(ctx, subjectRef)
	return args.Get(0).(types.Room), args.Error(1)
}

func (m *MockChatAPI) OpenRoom(ctx context.Context, roomID string) (types.Room, error) {
	args := m.Called(ctx, roomID)
	return args.Get(0).(types.Room), args.Error(1)
}

func (m *MockChatAPI) History(ctx context.Context, roomID string, page, size int) (HistoryPage, error) {
	args := m.Called(ctx, roomID, page, size)
	return args.Get(0).(HistoryPage), args.Error(1)
}

func (m *MockChatAPI) HideRoom(ctx context.Context, roomID string) error {
	args := m.Called(ctx, roomID)
	return args.Error(0)
}

func (m *MockChatAPI) UnreadCount(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}
