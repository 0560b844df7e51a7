package campaigns

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-sender/internal/domain"
)

type mockDynamo struct {
	items map[string]map[string]types.AttributeValue
}

func newMockDynamo() *mockDynamo {
	return &mockDynamo{items: make(map[string]map[string]types.AttributeValue)}
}

func (m *mockDynamo) PutItem(ctx context.Context, params *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	sk := params.Item["SK"].(*types.AttributeValueMemberS).Value
	m.items[sk] = params.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (m *mockDynamo) GetItem(ctx context.Context, params *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	sk := params.Key["SK"].(*types.AttributeValueMemberS).Value
	item, ok := m.items[sk]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: item}, nil
}

func (m *mockDynamo) Query(ctx context.Context, params *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	out := &dynamodb.QueryOutput{}
	for _, item := range m.items {
		out.Items = append(out.Items, item)
	}
	return out, nil
}

func TestPutAndGetRoundTrip(t *testing.T) {
	store := NewWithClient(newMockDynamo(), "campaigns")
	ctx := context.Background()

	campaign := &domain.Campaign{
		ID:        "camp-1",
		Name:      "Launch",
		Subject:   "We launched",
		Template:  "<p>News</p>",
		CC:        []string{"cc@x.com"},
		RateLimit: 10,
		Status:    domain.CampaignDraft,
	}
	require.NoError(t, store.Put(ctx, campaign))
	assert.False(t, campaign.CreatedAt.IsZero())

	got, err := store.Get(ctx, "camp-1")
	require.NoError(t, err)
	assert.Equal(t, "Launch", got.Name)
	assert.Equal(t, []string{"cc@x.com"}, got.CC)
	assert.Equal(t, domain.CampaignDraft, got.Status)
}

func TestPutPreservesCreatedAtOnUpdate(t *testing.T) {
	store := NewWithClient(newMockDynamo(), "campaigns")
	ctx := context.Background()

	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	campaign := &domain.Campaign{ID: "camp-1", CreatedAt: created, Status: domain.CampaignSending}
	require.NoError(t, store.Put(ctx, campaign))

	got, err := store.Get(ctx, "camp-1")
	require.NoError(t, err)
	assert.True(t, got.CreatedAt.Equal(created))
	assert.True(t, got.UpdatedAt.After(created))
}

func TestGetNotFound(t *testing.T) {
	store := NewWithClient(newMockDynamo(), "campaigns")

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListNewestFirst(t *testing.T) {
	mock := newMockDynamo()
	store := NewWithClient(mock, "campaigns")

	for i, id := range []string{"old", "mid", "new"} {
		av, err := attributevalue.MarshalMap(campaignItem{
			PK: campaignPK,
			SK: id,
			Campaign: domain.Campaign{
				ID:        id,
				CreatedAt: time.Date(2026, 1, 1+i, 0, 0, 0, 0, time.UTC),
			},
		})
		require.NoError(t, err)
		mock.items[id] = av
	}

	list, err := store.List(context.Background())

	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "new", list[0].ID)
	assert.Equal(t, "old", list[2].ID)
}
