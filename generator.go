package imagegate

import "context"

// Generator is the interface that image generation adapters must implement.
type Generator interface {
	// Name returns the generator identifier (e.g. "openai", "gemini").
	Name() string

	// Generate produces images for a prompt.
	Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, error)
}

// Auth holds authentication credentials for a generator.
type Auth struct {
	APIKey string `yaml:"api_key" json:"api_key"`
}

// Size is an output image size.
type Size string

const (
	SizeSquare    Size = "1024x1024"
	SizePortrait  Size = "1024x1792"
	SizeLandscape Size = "1792x1024"
)

// NormalizeSize maps unsupported sizes to SizeSquare.
func NormalizeSize(s Size) Size {
	switch s {
	case SizeSquare, SizePortrait, SizeLandscape:
		return s
	default:
		return SizeSquare
	}
}

// AspectRatio returns the size as a W:H ratio.
func (s Size) AspectRatio() string {
	switch NormalizeSize(s) {
	case SizePortrait:
		return "9:16"
	case SizeLandscape:
		return "16:9"
	default:
		return "1:1"
	}
}

// GenerateRequest is a request to generate an image.
type GenerateRequest struct {
	Prompt string `json:"prompt"`
	Size   Size   `json:"size"`
}

// GenerateResponse is the result of a generation.
type GenerateResponse struct {
	Images        []Image
	RevisedPrompt string
	Model         string
	Generator     string
	Attempts      int
}

// Image is a generated image, referenced by URL or carried inline.
type Image struct {
	URL         string
	Data        []byte
	ContentType string
}
