package gcppubsub

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
)

// NewClient connects to Pub/Sub, or to the emulator when PUBSUB_EMULATOR_HOST is set.
func NewClient(ctx context.Context, projectID string) (*pubsub.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("GCP project id must be set (GCP_PROJECT_ID)")
	}
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCP Pub/Sub client for project %s: %w", projectID, err)
	}
	return client, nil
}
