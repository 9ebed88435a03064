package render

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewRejectsUnknownBackend(t *testing.T) {
	_, err := New(Config{Backend: "phantomjs"}, zap.NewNop())
	require.Error(t, err)
	require.Contains(t, err.Error(), "phantomjs")
}
