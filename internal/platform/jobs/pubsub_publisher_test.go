package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/hcp-portal/api/internal/services"
)

func newTestTopic(ctx context.Context, t *testing.T, srv *pstest.Server) *pubsub.Topic {
	t.Helper()
	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	topic, err := client.CreateTopic(ctx, "hcp-submissions")
	require.NoError(t, err)
	t.Cleanup(topic.Stop)
	return topic
}

func TestPubSubSubmissionPublisherPublishesMessage(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	publisher, err := NewPubSubSubmissionPublisher(newTestTopic(ctx, t, srv))
	require.NoError(t, err)

	occurredAt := time.Date(2026, 5, 6, 9, 0, 0, 0, time.UTC)
	err = publisher.PublishSubmission(ctx, services.SubmissionEvent{
		ID:          "01JABCDEF",
		Type:        services.SubmissionSampleCreated,
		Shop:        "clinic.myshopify.com",
		ResourceID:  "gid://shopify/DraftOrder/1",
		OrderNumber: "#D1",
		Variant:     "patient",
		OccurredAt:  occurredAt,
	})
	require.NoError(t, err)

	messages := srv.Messages()
	require.Len(t, messages, 1)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(messages[0].Data, &payload))
	require.Equal(t, "hcp.sample.created", payload["type"])
	require.Equal(t, "gid://shopify/DraftOrder/1", payload["resourceId"])
	require.Equal(t, "#D1", payload["orderNumber"])
	require.Equal(t, "2026-05-06T09:00:00Z", payload["occurredAt"])

	require.Equal(t, "clinic.myshopify.com", messages[0].Attributes["shop"])
	require.Equal(t, "01JABCDEF", messages[0].Attributes["eventId"])
	require.Equal(t, "patient", messages[0].Attributes["variant"])
}

func TestPubSubSubmissionPublisherOmitsBlankAttributes(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	publisher, err := NewPubSubSubmissionPublisher(newTestTopic(ctx, t, srv))
	require.NoError(t, err)

	require.NoError(t, publisher.PublishSubmission(ctx, services.SubmissionEvent{
		ID:         "01JXYZ",
		Type:       services.SubmissionCustomerCreated,
		ResourceID: "gid://shopify/Customer/1",
	}))

	messages := srv.Messages()
	require.Len(t, messages, 1)
	_, hasVariant := messages[0].Attributes["variant"]
	require.False(t, hasVariant)
	_, hasShop := messages[0].Attributes["shop"]
	require.False(t, hasShop)
}

func TestNewPubSubSubmissionPublisherRequiresTopic(t *testing.T) {
	_, err := NewPubSubSubmissionPublisher(nil)
	require.Error(t, err)
}
