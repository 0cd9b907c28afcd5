package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/client"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"

	"github.com/panoptic/traceview/internal/conversation"
)

// dynamoRecord is the shape of one transcript item in DynamoDB. The whole
// transcript is stored as a single JSON blob per session.
type dynamoRecord struct {
	ID           string `dynamodbav:"id"`
	UpdatedAt    int64  `dynamodbav:"updatedAt"`
	MessageCount int    `dynamodbav:"messageCount"`
	Data         string `dynamodbav:"data"`
}

// DynamoStore persists transcripts in a DynamoDB table keyed by session ID.
type DynamoStore struct {
	api   dynamodbiface.DynamoDBAPI
	table string
	clock func() time.Time
}

// NewDynamoStore creates a DynamoStore from an AWS session and table name.
func NewDynamoStore(p client.ConfigProvider, table string) *DynamoStore {
	return &DynamoStore{api: dynamodb.New(p), table: table, clock: time.Now}
}

// Get returns the transcript for a session, or ErrSessionNotFound.
func (ds *DynamoStore) Get(ctx context.Context, id string) ([]conversation.Message, error) {
	out, err := ds.api.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(ds.table),
		Key: map[string]*dynamodb.AttributeValue{
			"id": {S: aws.String(id)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("fetching transcript %q: %w", id, err)
	}
	if out.Item == nil {
		return nil, ErrSessionNotFound
	}

	var rec dynamoRecord
	if err := dynamodbattribute.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("decoding transcript %q: %w", id, err)
	}
	var msgs []conversation.Message
	if err := json.Unmarshal([]byte(rec.Data), &msgs); err != nil {
		return nil, fmt.Errorf("decoding transcript %q: %w", id, err)
	}
	return msgs, nil
}

// Put replaces the transcript for a session.
func (ds *DynamoStore) Put(ctx context.Context, id string, msgs []conversation.Message) error {
	if msgs == nil {
		msgs = []conversation.Message{}
	}
	data, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("encoding transcript %q: %w", id, err)
	}

	item, err := dynamodbattribute.MarshalMap(dynamoRecord{
		ID:           id,
		UpdatedAt:    ds.clock().UnixMilli(),
		MessageCount: len(msgs),
		Data:         string(data),
	})
	if err != nil {
		return fmt.Errorf("encoding transcript %q: %w", id, err)
	}

	_, err = ds.api.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(ds.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("storing transcript %q: %w", id, err)
	}
	return nil
}

// Append adds messages to the end of a session's transcript.
func (ds *DynamoStore) Append(ctx context.Context, id string, msgs ...conversation.Message) error {
	existing, err := ds.Get(ctx, id)
	if err != nil && !errors.Is(err, ErrSessionNotFound) {
		return err
	}
	return ds.Put(ctx, id, append(existing, msgs...))
}

// List returns summaries for all stored sessions, newest first.
func (ds *DynamoStore) List(ctx context.Context) ([]SessionInfo, error) {
	var infos []SessionInfo

	input := &dynamodb.ScanInput{
		TableName:            aws.String(ds.table),
		ProjectionExpression: aws.String("id, updatedAt, messageCount"),
	}
	err := ds.api.ScanPagesWithContext(ctx, input, func(page *dynamodb.ScanOutput, _ bool) bool {
		for _, item := range page.Items {
			var rec dynamoRecord
			if err := dynamodbattribute.UnmarshalMap(item, &rec); err != nil {
				continue
			}
			infos = append(infos, SessionInfo{
				ID:           rec.ID,
				MessageCount: rec.MessageCount,
				UpdatedAt:    time.UnixMilli(rec.UpdatedAt),
			})
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("listing transcripts: %w", err)
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].UpdatedAt.After(infos[j].UpdatedAt)
	})
	return infos, nil
}

// Ensure DynamoStore satisfies Store.
var _ Store = (*DynamoStore)(nil)
