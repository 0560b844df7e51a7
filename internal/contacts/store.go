// Package contacts provides the DynamoDB-backed contact store: single-item
// upserts, bulk writes bounded by the 25-item BatchWriteItem limit, and CSV
// import/export of contact lists.
package contacts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	appconfig "github.com/ignite/campaign-sender/internal/config"
	"github.com/ignite/campaign-sender/internal/domain"
)

var (
	ErrNotFound      = errors.New("contact not found")
	ErrInvalidEmail  = errors.New("invalid email address")
	ErrBatchTooLarge = fmt.Errorf("batch exceeds %d contacts", domain.BatchSize)
)

const contactPK = "CONTACT"

// DynamoAPI is the subset of the DynamoDB client the store uses.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// Store is the contact repository. Items live in a single table under
// PK "CONTACT" with the normalized email as SK, so identity and upsert
// semantics fall straight out of PutItem.
type Store struct {
	db        DynamoAPI
	tableName string
}

// contactItem is the stored shape: key attributes plus the contact fields.
type contactItem struct {
	PK string `dynamodbav:"PK"`
	SK string `dynamodbav:"SK"`
	domain.Contact
}

// New creates a contact store, loading the AWS config the same way the rest
// of the application does (shared profile locally, IAM role on ECS/Lambda).
func New(ctx context.Context, cfg appconfig.StorageConfig) (*Store, error) {
	var awsCfg aws.Config
	var err error

	if profile := cfg.GetAWSProfile(); profile != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.AWSRegion),
			awsconfig.WithSharedConfigProfile(profile),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.AWSRegion),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return NewWithClient(dynamodb.NewFromConfig(awsCfg), cfg.ContactTable), nil
}

// NewWithClient creates a store around an existing client. Tests use this
// with a mock DynamoAPI.
func NewWithClient(db DynamoAPI, tableName string) *Store {
	return &Store{db: db, tableName: tableName}
}

// Upsert inserts or updates a single contact keyed by normalized email.
// Fields left blank in the incoming record keep their stored values.
func (s *Store) Upsert(ctx context.Context, contact domain.Contact) error {
	email := contact.Key()
	if !domain.ValidEmail(email) {
		return fmt.Errorf("%w: %q", ErrInvalidEmail, contact.Email)
	}

	now := time.Now().UTC()
	contact.Email = email
	contact.UpdatedAt = now

	existing, err := s.Get(ctx, email)
	switch {
	case err == nil:
		contact = existing.Merge(contact)
	case errors.Is(err, ErrNotFound):
		contact.CreatedAt = now
	default:
		return err
	}

	av, err := attributevalue.MarshalMap(contactItem{PK: contactPK, SK: email, Contact: contact})
	if err != nil {
		return fmt.Errorf("marshaling contact: %w", err)
	}

	if _, err := s.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      av,
	}); err != nil {
		return fmt.Errorf("putting contact to DynamoDB: %w", err)
	}
	return nil
}

// BatchUpsert writes up to domain.BatchSize contacts in one BatchWriteItem
// call. Invalid rows and server-side UnprocessedItems are reported as the
// unprocessed count; the call still succeeds (HTTP 200 with unprocessed > 0
// at the API layer). Duplicate keys within the batch keep the last occurrence,
// since DynamoDB rejects batches containing the same key twice.
func (s *Store) BatchUpsert(ctx context.Context, batch []domain.Contact) (domain.BatchResult, error) {
	if len(batch) == 0 {
		return domain.BatchResult{Success: true}, nil
	}
	if len(batch) > domain.BatchSize {
		return domain.BatchResult{}, ErrBatchTooLarge
	}

	now := time.Now().UTC()
	unprocessed := 0
	byKey := make(map[string]domain.Contact, len(batch))
	order := make([]string, 0, len(batch))

	for _, c := range batch {
		email := c.Key()
		if !domain.ValidEmail(email) {
			unprocessed++
			continue
		}
		c.Email = email
		c.UpdatedAt = now
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		if _, seen := byKey[email]; !seen {
			order = append(order, email)
		}
		byKey[email] = c
	}

	if len(order) == 0 {
		return domain.BatchResult{Success: true, Unprocessed: unprocessed}, nil
	}

	writes := make([]types.WriteRequest, 0, len(order))
	for _, email := range order {
		av, err := attributevalue.MarshalMap(contactItem{PK: contactPK, SK: email, Contact: byKey[email]})
		if err != nil {
			unprocessed++
			continue
		}
		writes = append(writes, types.WriteRequest{PutRequest: &types.PutRequest{Item: av}})
	}

	out, err := s.db.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
		RequestItems: map[string][]types.WriteRequest{s.tableName: writes},
	})
	if err != nil {
		return domain.BatchResult{}, fmt.Errorf("batch writing contacts: %w", err)
	}

	// Items the server could not process (throttling, size) come back here;
	// callers count them as errors and may retry the whole batch.
	serverUnprocessed := len(out.UnprocessedItems[s.tableName])
	imported := len(writes) - serverUnprocessed

	return domain.BatchResult{
		Success:     true,
		Imported:    imported,
		Unprocessed: unprocessed + serverUnprocessed,
	}, nil
}

// Get retrieves one contact by email. Returns ErrNotFound if absent.
func (s *Store) Get(ctx context.Context, email string) (domain.Contact, error) {
	email = domain.NormalizeEmail(email)

	out, err := s.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: contactPK},
			"SK": &types.AttributeValueMemberS{Value: email},
		},
	})
	if err != nil {
		return domain.Contact{}, fmt.Errorf("getting contact from DynamoDB: %w", err)
	}
	if out.Item == nil {
		return domain.Contact{}, ErrNotFound
	}

	var item contactItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return domain.Contact{}, fmt.Errorf("unmarshaling contact: %w", err)
	}
	return item.Contact, nil
}

// Delete removes a contact. Deleting an absent contact is not an error.
func (s *Store) Delete(ctx context.Context, email string) error {
	email = domain.NormalizeEmail(email)

	if _, err := s.db.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: contactPK},
			"SK": &types.AttributeValueMemberS{Value: email},
		},
	}); err != nil {
		return fmt.Errorf("deleting contact from DynamoDB: %w", err)
	}
	return nil
}

// ListAll returns every stored contact, following pagination.
func (s *Store) ListAll(ctx context.Context) ([]domain.Contact, error) {
	return s.list(ctx, "")
}

// ListByGroup returns the contacts in one group. An empty group name lists
// everything.
func (s *Store) ListByGroup(ctx context.Context, group string) ([]domain.Contact, error) {
	return s.list(ctx, group)
}

func (s *Store) list(ctx context.Context, group string) ([]domain.Contact, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: contactPK},
		},
	}
	if group != "" {
		input.FilterExpression = aws.String("#grp = :grp")
		input.ExpressionAttributeNames = map[string]string{"#grp": "Group"}
		input.ExpressionAttributeValues[":grp"] = &types.AttributeValueMemberS{Value: group}
	}

	var contacts []domain.Contact
	for {
		out, err := s.db.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("querying contacts from DynamoDB: %w", err)
		}
		for _, raw := range out.Items {
			var item contactItem
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				continue
			}
			contacts = append(contacts, item.Contact)
		}
		if out.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
	return contacts, nil
}
