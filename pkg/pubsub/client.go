// pkg/pubsub/client.go
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/symmetri/pkg/config"
	"github.com/angelmondragon/symmetri/pkg/logger"
)

type Client struct {
	client    *pubsub.Client
	projectID string
	cfg       config.PubSubConfig

	datasetOnce sync.Once
	dataset     *pubsub.Publisher
}

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNoTopic           = errors.New("pubsub dataset topic is required")
	errNotInitialized    = errors.New("pubsub client not initialized")
)

// NewClient creates a Pub/Sub v2 client and ensures the dataset topic exists.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(gcp.ProjectID) == "" {
		return nil, errProjectIDRequired
	}

	psClient, err := pubsub.NewClient(ctx, gcp.ProjectID, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	c := &Client{
		client:    psClient,
		projectID: gcp.ProjectID,
		cfg:       cfg,
	}

	if err := c.ensureTopicExists(ctx, cfg.DatasetTopic); err != nil {
		_ = psClient.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithField(ctx, "topic", cfg.DatasetTopic), "pubsub client initialized")
	}

	return c, nil
}

func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	var opts []option.ClientOption
	switch {
	case strings.TrimSpace(gcp.CredentialsJSON) != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(gcp.CredentialsJSON)))
	case strings.TrimSpace(gcp.ApplicationCredentials) != "":
		opts = append(opts, option.WithCredentialsFile(gcp.ApplicationCredentials))
	}
	return opts
}

func (c *Client) ensureTopicExists(ctx context.Context, name string) error {
	if strings.TrimSpace(name) == "" {
		return errNoTopic
	}
	fullName := c.topicResourceName(name)
	if fullName == "" {
		return fmt.Errorf("topic %q not configured", name)
	}

	_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: fullName})
	if err != nil {
		// v2 uses gRPC errors; NotFound means the topic doesn't exist.
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("topic %q does not exist", name)
		}
		return fmt.Errorf("checking topic %q: %w", name, err)
	}
	return nil
}

// Publisher returns a publisher handle for the given topic ID/resource name.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	fullName := c.topicResourceName(name)
	if fullName == "" {
		return nil
	}
	return c.client.Publisher(fullName)
}

// DatasetPublisher returns the shared publisher for the dataset topic.
func (c *Client) DatasetPublisher() *pubsub.Publisher {
	if c == nil {
		return nil
	}
	c.datasetOnce.Do(func() {
		c.dataset = c.Publisher(c.cfg.DatasetTopic)
	})
	return c.dataset
}

// PublishJSON publishes payload as JSON with an event_type attribute on the
// dataset topic and waits for the server acknowledgement.
func (c *Client) PublishJSON(ctx context.Context, eventType string, payload any) (string, error) {
	pub := c.DatasetPublisher()
	if pub == nil {
		return "", errNotInitialized
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encoding %s payload: %w", eventType, err)
	}
	msg := &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"event_type": eventType},
	}
	return pub.Publish(ctx, msg).Get(ctx)
}

// Ping verifies Pub/Sub connectivity by checking the dataset topic exists.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errNotInitialized
	}
	return c.ensureTopicExists(ctx, c.cfg.DatasetTopic)
}

// Close flushes the dataset publisher and releases the client resources.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	if c.dataset != nil {
		c.dataset.Stop()
	}
	return c.client.Close()
}

func (c *Client) topicResourceName(name string) string {
	if c == nil {
		return ""
	}
	n := strings.TrimSpace(name)
	if n == "" {
		return ""
	}
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/topics/") {
		return n
	}
	p := strings.TrimSpace(c.projectID)
	if p == "" {
		return ""
	}
	return fmt.Sprintf("projects/%s/topics/%s", p, n)
}
