package mock_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ig "github.com/ineyio/imagegate"
	"github.com/ineyio/imagegate/provider/mock"
)

func TestGenerate_Defaults(t *testing.T) {
	g := mock.New()
	resp, err := g.Generate(context.Background(), ig.GenerateRequest{Prompt: "sunset"})
	require.NoError(t, err)

	assert.Equal(t, "mock", g.Name())
	assert.Equal(t, "sunset (high detail, professional photo, striking visuals)", resp.RevisedPrompt)
	require.Len(t, resp.Images, 2)
	assert.Equal(t, mock.DefaultImages[0], resp.Images[0].URL)
	assert.Equal(t, int64(1), g.CallCount())
}

func TestGenerate_InlineImage(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G'}
	g := mock.New(mock.WithInlineImage(png))
	resp, err := g.Generate(context.Background(), ig.GenerateRequest{Prompt: "p"})
	require.NoError(t, err)
	require.Len(t, resp.Images, 1)
	assert.Equal(t, png, resp.Images[0].Data)
	assert.Equal(t, "image/png", resp.Images[0].ContentType)
}

func TestGenerate_FailAfter(t *testing.T) {
	g := mock.New(mock.WithFailAfter(1))
	_, err := g.Generate(context.Background(), ig.GenerateRequest{Prompt: "p"})
	require.NoError(t, err)
	_, err = g.Generate(context.Background(), ig.GenerateRequest{Prompt: "p"})
	assert.ErrorIs(t, err, ig.ErrProviderUnavailable)
}

func TestGenerate_LatencyHonoursContext(t *testing.T) {
	g := mock.New(mock.WithLatency(time.Minute))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := g.Generate(ctx, ig.GenerateRequest{Prompt: "p"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int64(0), g.CallCount())
}
