package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"talent-source/utils"
)

// TableSpec describes a table keyed by a string hash key, an optional string
// range key, and hash-only global secondary indexes.
type TableSpec struct {
	Name     string
	HashKey  string
	RangeKey string
	Indexes  []IndexSpec
}

type IndexSpec struct {
	Name    string
	HashKey string
}

type DynamoDBClient interface {
	EnsureTable(ctx context.Context, spec TableSpec) error
}

type dynamoDBClientImpl struct {
	client *dynamodb.Client
}

// NewAWSConfig loads the default credential chain. A non-empty endpoint means a
// local emulator, which gets static dummy credentials.
func NewAWSConfig(ctx context.Context, region string, endpoint string) (aws.Config, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if endpoint != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("dummy", "dummy", "dummy")))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return cfg, nil
}

func NewDynamoClient(cfg aws.Config, endpoint string) *dynamodb.Client {
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
}

func NewDynamoService(client *dynamodb.Client) DynamoDBClient {
	return &dynamoDBClientImpl{client: client}
}

func (d *dynamoDBClientImpl) EnsureTable(ctx context.Context, spec TableSpec) error {
	attrs := map[string]bool{spec.HashKey: true}
	keySchema := []types.KeySchemaElement{{
		AttributeName: aws.String(spec.HashKey),
		KeyType:       types.KeyTypeHash,
	}}
	if spec.RangeKey != "" {
		attrs[spec.RangeKey] = true
		keySchema = append(keySchema, types.KeySchemaElement{
			AttributeName: aws.String(spec.RangeKey),
			KeyType:       types.KeyTypeRange,
		})
	}

	var indexes []types.GlobalSecondaryIndex
	for _, idx := range spec.Indexes {
		attrs[idx.HashKey] = true
		indexes = append(indexes, types.GlobalSecondaryIndex{
			IndexName: aws.String(idx.Name),
			KeySchema: []types.KeySchemaElement{{
				AttributeName: aws.String(idx.HashKey),
				KeyType:       types.KeyTypeHash,
			}},
			Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
		})
	}

	var definitions []types.AttributeDefinition
	for _, name := range slices.Sorted(maps.Keys(attrs)) {
		definitions = append(definitions, types.AttributeDefinition{
			AttributeName: aws.String(name),
			AttributeType: types.ScalarAttributeTypeS,
		})
	}

	_, err := d.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:              aws.String(spec.Name),
		AttributeDefinitions:   definitions,
		KeySchema:              keySchema,
		GlobalSecondaryIndexes: indexes,
		BillingMode:            types.BillingModePayPerRequest,
	})
	if err != nil {
		var inUse *types.ResourceInUseException
		if errors.As(err, &inUse) {
			utils.Debug("table already exists", zap.String("table", spec.Name))
			return nil
		}
		return fmt.Errorf("create table %s: %w", spec.Name, err)
	}

	waiter := dynamodb.NewTableExistsWaiter(d.client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(spec.Name)}, 5*time.Minute); err != nil {
		return fmt.Errorf("wait for table %s: %w", spec.Name, err)
	}
	utils.Logger().Info("created table", zap.String("table", spec.Name))
	return nil
}
