package testutil

import (
	"context"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// SetupGenkit initializes a plugin-free Genkit instance for tests.
//
// No API keys are required; pair it with MockModel for deterministic
// model behavior:
//
//	g := testutil.SetupGenkit(t)
//	mock := testutil.NewMockModel("fallback")
//	model := mock.Register(g)
func SetupGenkit(t *testing.T) *genkit.Genkit {
	t.Helper()

	g := genkit.Init(context.Background())
	if g == nil {
		t.Fatal("genkit.Init returned nil")
	}
	return g
}

// SetupMockModel initializes Genkit with a registered MockModel.
// Returns the Genkit instance, the mock for scripting responses, and the
// model reference to pass via ai.WithModel.
func SetupMockModel(t *testing.T, fallback string) (*genkit.Genkit, *MockModel, ai.Model) {
	t.Helper()

	g := SetupGenkit(t)
	mock := NewMockModel(fallback)
	model := mock.Register(g)
	return g, mock, model
}
