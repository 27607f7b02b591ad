package kvstore

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rzpsarthak13/cardtable/internal/config"
	"github.com/rzpsarthak13/cardtable/internal/core"
	"go.uber.org/zap"
)

// maxBatchWrite is the BatchWriteItem request limit.
const maxBatchWrite = 25

// DynamoDBAPI is the subset of the DynamoDB client the store uses.
type DynamoDBAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// DynamoDBKVStore implements core.KVStore on a DynamoDB table keyed by the
// string attribute "key". Expiry uses the numeric "ttl" attribute.
type DynamoDBKVStore struct {
	client    DynamoDBAPI
	tableName string
	logger    *zap.Logger
	now       func() time.Time
	closed    atomic.Bool
}

// NewDynamoDBKVStore loads the AWS config, builds a client and checks that
// the table exists.
func NewDynamoDBKVStore(cfg config.DynamoDBConfig, logger *zap.Logger) (*DynamoDBKVStore, error) {
	if cfg.Region == "" {
		return nil, fmt.Errorf("region is required")
	}
	if cfg.TableName == "" {
		return nil, fmt.Errorf("table name is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}

	var opts []func(*dynamodb.Options)
	if cfg.Endpoint != "" {
		// LocalStack and dynamodb-local
		opts = append(opts, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	client := dynamodb.NewFromConfig(awsCfg, opts...)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(cfg.TableName)}); err != nil {
		return nil, fmt.Errorf("failed to connect to DynamoDB table %s: %w", cfg.TableName, err)
	}

	return NewDynamoDBKVStoreFromClient(client, cfg.TableName, logger), nil
}

// NewDynamoDBKVStoreFromClient wraps an existing client.
func NewDynamoDBKVStoreFromClient(client DynamoDBAPI, tableName string, logger *zap.Logger) *DynamoDBKVStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DynamoDBKVStore{client: client, tableName: tableName, logger: logger, now: time.Now}
}

func keyAttr(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"key": &types.AttributeValueMemberS{Value: key}}
}

func (d *DynamoDBKVStore) item(key string, value []byte, ttl time.Duration) map[string]types.AttributeValue {
	now := d.now()
	item := map[string]types.AttributeValue{
		"key":        &types.AttributeValueMemberS{Value: key},
		"value":      &types.AttributeValueMemberB{Value: value},
		"created_at": &types.AttributeValueMemberS{Value: now.UTC().Format(time.RFC3339)},
	}
	if ttl > 0 {
		item["ttl"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Add(ttl).Unix(), 10)}
	}
	return item
}

// expired reports whether the item's ttl attribute is in the past. DynamoDB
// deletes expired items lazily, so reads must check.
func (d *DynamoDBKVStore) expired(item map[string]types.AttributeValue) bool {
	attr, ok := item["ttl"].(*types.AttributeValueMemberN)
	if !ok {
		return false
	}
	ttl, err := strconv.ParseInt(attr.Value, 10, 64)
	if err != nil {
		return false
	}
	return d.now().Unix() >= ttl
}

// Get retrieves a value by key from the store.
func (d *DynamoDBKVStore) Get(ctx context.Context, key string) ([]byte, error) {
	if d.closed.Load() {
		return nil, core.ErrClosed
	}

	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.tableName),
		Key:       keyAttr(key),
	})
	if err != nil {
		d.logger.Error("dynamodb get failed", zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	if out.Item == nil || d.expired(out.Item) {
		return nil, fmt.Errorf("%w: %s", core.ErrKeyNotFound, key)
	}

	value, ok := out.Item["value"].(*types.AttributeValueMemberB)
	if !ok {
		return nil, fmt.Errorf("invalid value format for key %s", key)
	}
	return value.Value, nil
}

// Set stores a key-value pair with an optional TTL.
func (d *DynamoDBKVStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if d.closed.Load() {
		return core.ErrClosed
	}
	_, err := d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.tableName),
		Item:      d.item(key, value, ttl),
	})
	if err != nil {
		d.logger.Error("dynamodb put failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

// Delete removes a key from the store.
func (d *DynamoDBKVStore) Delete(ctx context.Context, key string) error {
	if d.closed.Load() {
		return core.ErrClosed
	}
	_, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(d.tableName),
		Key:       keyAttr(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

// Exists checks if a live key exists in the store.
func (d *DynamoDBKVStore) Exists(ctx context.Context, key string) (bool, error) {
	if d.closed.Load() {
		return false, core.ErrClosed
	}
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:            aws.String(d.tableName),
		Key:                  keyAttr(key),
		ProjectionExpression: aws.String("#k, #t"),
		ExpressionAttributeNames: map[string]string{
			"#k": "key",
			"#t": "ttl",
		},
	})
	if err != nil {
		return false, fmt.Errorf("failed to check existence of key %s: %w", key, err)
	}
	return out.Item != nil && !d.expired(out.Item), nil
}

// BatchSet stores items in BatchWriteItem requests of at most 25 puts.
// DynamoDB does not make the batch atomic across items.
func (d *DynamoDBKVStore) BatchSet(ctx context.Context, items map[string][]byte, ttl time.Duration) error {
	if d.closed.Load() {
		return core.ErrClosed
	}

	requests := make([]types.WriteRequest, 0, len(items))
	for key, value := range items {
		requests = append(requests, types.WriteRequest{
			PutRequest: &types.PutRequest{Item: d.item(key, value, ttl)},
		})
	}

	for start := 0; start < len(requests); start += maxBatchWrite {
		end := min(start+maxBatchWrite, len(requests))
		_, err := d.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{d.tableName: requests[start:end]},
		})
		if err != nil {
			return fmt.Errorf("failed to batch set keys: %w", err)
		}
	}
	return nil
}

// Close marks the store closed. The DynamoDB client holds no connection.
func (d *DynamoDBKVStore) Close() error {
	d.closed.Store(true)
	return nil
}

// DynamoDBKVStoreFactory creates DynamoDB KV stores.
type DynamoDBKVStoreFactory struct{}

// Type returns the type identifier for this factory.
func (f *DynamoDBKVStoreFactory) Type() string { return "dynamodb" }

// Validate validates the DynamoDB-specific configuration.
func (f *DynamoDBKVStoreFactory) Validate(cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}
	kv := cfg.KVStore
	if kv.Type != "dynamodb" {
		return fmt.Errorf("invalid type for DynamoDB validator: %s", kv.Type)
	}
	if kv.DynamoDB.Region == "" {
		return fmt.Errorf("region is required for DynamoDB")
	}
	if kv.DynamoDB.TableName == "" {
		return fmt.Errorf("table_name is required for DynamoDB")
	}
	return validateTimeouts(kv)
}

// Create creates a new DynamoDB KV store.
func (f *DynamoDBKVStoreFactory) Create(cfg config.KVStoreConfig, logger *zap.Logger) (core.KVStore, error) {
	store, err := NewDynamoDBKVStore(cfg.DynamoDB, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create DynamoDB KV store: %w", err)
	}
	return store, nil
}

func init() {
	RegisterFactory(&DynamoDBKVStoreFactory{})
}
