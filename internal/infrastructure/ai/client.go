package ai

import (
	"context"
	"fmt"
)

// Request is a single inference call: a rendered prompt sent to the named
// model with an output-token cap.
type Request struct {
	ModelID   string
	Prompt    string
	MaxTokens int
}

// Client is the inference collaborator contract. Responses are free text;
// the caller is responsible for extracting structure from them.
// Implementations must be safe for concurrent use.
type Client interface {
	Generate(ctx context.Context, req Request) (string, error)
	Close() error
}

// Disabled returns a client that fails every call. It stands in when no API
// key is configured so ai-inference rules surface as error results instead of
// panics.
func Disabled() Client {
	return disabledClient{}
}

type disabledClient struct{}

func (disabledClient) Generate(context.Context, Request) (string, error) {
	return "", fmt.Errorf("ai client is not configured")
}

func (disabledClient) Close() error { return nil }
