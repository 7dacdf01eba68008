package usecase

import (
	"context"

	"github.com/stretchr/testify/mock"

	"quoterag/internal/domain"
)

type mockEmbedder struct {
	mock.Mock
}

func (m *mockEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	args := m.Called(ctx, texts)
	vecs, _ := args.Get(0).([][]float64)
	return vecs, args.Error(1)
}

func (m *mockEmbedder) Dimension() int    { return 2 }
func (m *mockEmbedder) ModelName() string { return "mock-embedding" }

type mockGenerator struct {
	mock.Mock
}

func (m *mockGenerator) Generate(ctx context.Context, topic string, matches []domain.RankedMatch) (string, error) {
	args := m.Called(ctx, topic, matches)
	return args.String(0), args.Error(1)
}

func (m *mockGenerator) ModelName() string { return "mock-chat" }
