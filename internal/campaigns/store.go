// Package campaigns persists campaign records in DynamoDB using the same
// single-table PK/SK layout as the contact store.
package campaigns

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dynamodbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	appconfig "github.com/ignite/campaign-sender/internal/config"
	"github.com/ignite/campaign-sender/internal/domain"
)

// ErrNotFound is returned when no campaign exists for the given ID.
var ErrNotFound = errors.New("campaign not found")

const campaignPK = "CAMPAIGN"

// DynamoAPI is the subset of the DynamoDB client the store uses.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Store reads and writes campaign records.
type Store struct {
	db        DynamoAPI
	tableName string
}

type campaignItem struct {
	PK string `dynamodbav:"PK"`
	SK string `dynamodbav:"SK"`
	domain.Campaign
}

// New creates a store backed by the configured campaign table.
func New(ctx context.Context, cfg appconfig.StorageConfig) (*Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.AWSRegion),
	}
	if profile := cfg.GetAWSProfile(); profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return NewWithClient(dynamodb.NewFromConfig(awsCfg), cfg.CampaignTable), nil
}

// NewWithClient creates a store around an existing client. Tests use this
// with a mock DynamoAPI.
func NewWithClient(db DynamoAPI, tableName string) *Store {
	return &Store{db: db, tableName: tableName}
}

// Put writes the full campaign record, stamping UpdatedAt.
func (s *Store) Put(ctx context.Context, c *domain.Campaign) error {
	c.UpdatedAt = time.Now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = c.UpdatedAt
	}

	item, err := attributevalue.MarshalMap(campaignItem{
		PK:       campaignPK,
		SK:       c.ID,
		Campaign: *c,
	})
	if err != nil {
		return fmt.Errorf("marshaling campaign %s: %w", c.ID, err)
	}

	_, err = s.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("putting campaign %s: %w", c.ID, err)
	}
	return nil
}

// Get fetches one campaign by ID.
func (s *Store) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	out, err := s.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]dynamodbtypes.AttributeValue{
			"PK": &dynamodbtypes.AttributeValueMemberS{Value: campaignPK},
			"SK": &dynamodbtypes.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("getting campaign %s: %w", id, err)
	}
	if out.Item == nil {
		return nil, ErrNotFound
	}

	var item campaignItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshaling campaign %s: %w", id, err)
	}
	return &item.Campaign, nil
}

// List returns all campaigns, newest first.
func (s *Store) List(ctx context.Context) ([]domain.Campaign, error) {
	var campaigns []domain.Campaign
	var startKey map[string]dynamodbtypes.AttributeValue

	for {
		out, err := s.db.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.tableName),
			KeyConditionExpression: aws.String("PK = :pk"),
			ExpressionAttributeValues: map[string]dynamodbtypes.AttributeValue{
				":pk": &dynamodbtypes.AttributeValueMemberS{Value: campaignPK},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("querying campaigns: %w", err)
		}

		var page []campaignItem
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, fmt.Errorf("unmarshaling campaigns: %w", err)
		}
		for _, item := range page {
			campaigns = append(campaigns, item.Campaign)
		}

		if out.LastEvaluatedKey == nil {
			break
		}
		startKey = out.LastEvaluatedKey
	}

	sort.Slice(campaigns, func(i, j int) bool {
		return campaigns[i].CreatedAt.After(campaigns[j].CreatedAt)
	})
	return campaigns, nil
}
