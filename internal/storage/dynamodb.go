package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/xaenox/notekeeper/internal/models"
	"go.uber.org/zap"
)

// DynamoAPI is the subset of *dynamodb.Client the note store calls.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

var _ DynamoAPI = (*dynamodb.Client)(nil)

// dynamoNote is the item layout. The table's partition key is "id" (S).
// Seq comes from the counter item and breaks created_at ties.
type dynamoNote struct {
	ID        string   `dynamodbav:"id"`
	Title     string   `dynamodbav:"title"`
	Content   string   `dynamodbav:"content"`
	Tags      []string `dynamodbav:"tags"`
	CreatedAt string   `dynamodbav:"created_at"`
	Seq       int64    `dynamodbav:"seq"`
}

// seqCounterID keys the item holding the last issued note seq. It shares the
// notes table and is skipped by List.
const seqCounterID = "#note-seq"

func (d dynamoNote) toNote() (*models.Note, error) {
	createdAt, err := time.Parse(time.RFC3339Nano, d.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at for note %s: %w", d.ID, err)
	}
	tags := d.Tags
	if tags == nil {
		tags = []string{}
	}
	return &models.Note{
		ID:        d.ID,
		Title:     d.Title,
		Content:   d.Content,
		Tags:      tags,
		CreatedAt: createdAt.UTC(),
	}, nil
}

type DynamoStorage struct {
	client    DynamoAPI
	tableName string
	logger    *zap.Logger
	now       func() time.Time
}

// NewDynamoStorage loads AWS credentials from the default chain. A non-empty
// DynamoEndpoint points the client at DynamoDB Local or LocalStack.
func NewDynamoStorage(ctx context.Context, config DatabaseConfig, logger *zap.Logger) (*DynamoStorage, error) {
	if config.DynamoTable == "" {
		return nil, fmt.Errorf("dynamodb table name is required")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if config.DynamoRegion != "" {
		opts = append(opts, awsconfig.WithRegion(config.DynamoRegion))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if config.DynamoEndpoint != "" {
			o.BaseEndpoint = aws.String(config.DynamoEndpoint)
		}
	})

	return NewDynamoStorageWithClient(client, config.DynamoTable, logger), nil
}

func NewDynamoStorageWithClient(client DynamoAPI, tableName string, logger *zap.Logger) *DynamoStorage {
	return &DynamoStorage{
		client:    client,
		tableName: tableName,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *DynamoStorage) key(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"id": &types.AttributeValueMemberS{Value: id},
	}
}

// List scans the table. The tag filter runs server side; DynamoDB's
// contains() is case-sensitive, so the text search and the ordering are
// finished here.
func (s *DynamoStorage) List(ctx context.Context, filter models.NoteFilter) ([]*models.Note, error) {
	input := &dynamodb.ScanInput{TableName: aws.String(s.tableName)}
	if filter.Tag != "" {
		expr, err := expression.NewBuilder().
			WithFilter(expression.Contains(expression.Name("tags"), filter.Tag)).
			Build()
		if err != nil {
			return nil, storeFault("list notes", err)
		}
		input.FilterExpression = expr.Filter()
		input.ExpressionAttributeNames = expr.Names()
		input.ExpressionAttributeValues = expr.Values()
	}

	var matched []sequencedNote
	paginator := dynamodb.NewScanPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, storeFault("list notes", err)
		}

		var items []dynamoNote
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, storeFault("list notes", err)
		}
		for _, item := range items {
			if item.ID == seqCounterID {
				continue
			}
			note, err := item.toNote()
			if err != nil {
				s.logger.Warn("Skipping malformed note item", zap.String("note_id", item.ID), zap.Error(err))
				continue
			}
			if filter.Matches(note) {
				matched = append(matched, sequencedNote{note: note, seq: item.Seq})
			}
		}
	}

	sortNewestFirst(matched)
	notes := make([]*models.Note, len(matched))
	for i, n := range matched {
		notes[i] = n.note
	}
	return notes, nil
}

func (s *DynamoStorage) Get(ctx context.Context, id string) (*models.Note, error) {
	if id == seqCounterID {
		return nil, notFound()
	}
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            s.key(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, storeFault("get note", err)
	}
	if len(out.Item) == 0 {
		return nil, notFound()
	}

	var item dynamoNote
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, storeFault("get note", err)
	}
	note, err := item.toNote()
	if err != nil {
		return nil, storeFault("get note", err)
	}
	return note, nil
}

func (s *DynamoStorage) Create(ctx context.Context, input models.NoteInput) (*models.Note, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	input = input.Normalized()

	seq, err := s.nextSeq(ctx)
	if err != nil {
		return nil, storeFault("create note", err)
	}

	note := &models.Note{
		ID:        uuid.New().String(),
		Title:     input.Title,
		Content:   input.Content,
		Tags:      input.Tags,
		CreatedAt: s.now().UTC(),
	}

	item, err := attributevalue.MarshalMap(dynamoNote{
		ID:        note.ID,
		Title:     note.Title,
		Content:   note.Content,
		Tags:      note.Tags,
		CreatedAt: note.CreatedAt.Format(time.RFC3339Nano),
		Seq:       seq,
	})
	if err != nil {
		return nil, storeFault("create note", err)
	}

	expr, err := expression.NewBuilder().
		WithCondition(expression.AttributeNotExists(expression.Name("id"))).
		Build()
	if err != nil {
		return nil, storeFault("create note", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(s.tableName),
		Item:                     item,
		ConditionExpression:      expr.Condition(),
		ExpressionAttributeNames: expr.Names(),
	})
	if err != nil {
		return nil, storeFault("create note", err)
	}

	return note, nil
}

// nextSeq bumps the counter item atomically and returns the new value.
func (s *DynamoStorage) nextSeq(ctx context.Context) (int64, error) {
	expr, err := expression.NewBuilder().
		WithUpdate(expression.Add(expression.Name("seq"), expression.Value(1))).
		Build()
	if err != nil {
		return 0, err
	}

	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.tableName),
		Key:                       s.key(seqCounterID),
		UpdateExpression:          expr.Update(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ReturnValues:              types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, fmt.Errorf("bump note seq: %w", err)
	}

	var counter struct {
		Seq int64 `dynamodbav:"seq"`
	}
	if err := attributevalue.UnmarshalMap(out.Attributes, &counter); err != nil {
		return 0, fmt.Errorf("decode note seq: %w", err)
	}
	return counter.Seq, nil
}

func (s *DynamoStorage) Update(ctx context.Context, id string, input models.NoteInput) (*models.Note, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	input = input.Normalized()
	if id == seqCounterID {
		return nil, notFound()
	}

	update := expression.
		Set(expression.Name("title"), expression.Value(input.Title)).
		Set(expression.Name("content"), expression.Value(input.Content)).
		Set(expression.Name("tags"), expression.Value(input.Tags))
	expr, err := expression.NewBuilder().
		WithUpdate(update).
		WithCondition(expression.AttributeExists(expression.Name("id"))).
		Build()
	if err != nil {
		return nil, storeFault("update note", err)
	}

	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.tableName),
		Key:                       s.key(id),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ReturnValues:              types.ReturnValueAllNew,
	})
	if isConditionFailed(err) {
		return nil, notFound()
	}
	if err != nil {
		return nil, storeFault("update note", err)
	}

	var item dynamoNote
	if err := attributevalue.UnmarshalMap(out.Attributes, &item); err != nil {
		return nil, storeFault("update note", err)
	}
	note, err := item.toNote()
	if err != nil {
		return nil, storeFault("update note", err)
	}
	return note, nil
}

func (s *DynamoStorage) Delete(ctx context.Context, id string) error {
	if id == seqCounterID {
		return notFound()
	}
	expr, err := expression.NewBuilder().
		WithCondition(expression.AttributeExists(expression.Name("id"))).
		Build()
	if err != nil {
		return storeFault("delete note", err)
	}

	_, err = s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                aws.String(s.tableName),
		Key:                      s.key(id),
		ConditionExpression:      expr.Condition(),
		ExpressionAttributeNames: expr.Names(),
	})
	if isConditionFailed(err) {
		return notFound()
	}
	if err != nil {
		return storeFault("delete note", err)
	}
	return nil
}

func (s *DynamoStorage) Close() error {
	return nil
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}
