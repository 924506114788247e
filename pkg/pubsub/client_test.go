package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/symmetri/pkg/config"
)

func TestTopicResourceName(t *testing.T) {
	c := &Client{projectID: "proj"}

	assert.Equal(t, "projects/proj/topics/datasets", c.topicResourceName(" datasets "))
	assert.Equal(t, "projects/other/topics/x", c.topicResourceName("projects/other/topics/x"))
	assert.Empty(t, c.topicResourceName(""))
	assert.Empty(t, (&Client{}).topicResourceName("datasets"))
}

func TestNilClient(t *testing.T) {
	var c *Client
	assert.Nil(t, c.Publisher("datasets"))
	assert.NoError(t, c.Close())
	require.Error(t, c.Ping(context.Background()))

	_, err := c.PublishJSON(context.Background(), "dataset.table_loaded", map[string]any{})
	require.ErrorIs(t, err, errNotInitialized)
}

func TestNewClientRequiresProject(t *testing.T) {
	_, err := NewClient(context.Background(), config.GCPConfig{}, config.PubSubConfig{DatasetTopic: "t"}, nil)
	require.ErrorIs(t, err, errProjectIDRequired)
}

func TestClientOptions(t *testing.T) {
	assert.Len(t, clientOptions(config.GCPConfig{CredentialsJSON: "{}", ApplicationCredentials: "/tmp/x"}), 1)
	assert.Empty(t, clientOptions(config.GCPConfig{}))
}
