// Package store persists every collection in DynamoDB. Operations that spend
// or return employer credits run as transactions so that a charge can never be
// recorded without the action it pays for.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"talent-source/models"
	"talent-source/services"
)

const (
	indexByEmployer  = "EmployerID-Index"
	indexByCandidate = "CandidateID-Index"
	indexByStatus    = "Status-Index"
	indexByRecipient = "RecipientID-Index"
)

type Tables struct {
	Candidates    string
	Employers     string
	Admins        string
	Skills        string
	Interviews    string
	Unlocks       string
	Notifications string
	Plans         string
	Purchases     string
	OTP           string
	Guards        string
}

func TableNames(prefix string) Tables {
	name := func(collection string) string {
		if prefix == "" {
			return collection
		}
		return prefix + "-" + collection
	}
	return Tables{
		Candidates:    name("Candidates"),
		Employers:     name("Employers"),
		Admins:        name("Admins"),
		Skills:        name("Skills"),
		Interviews:    name("Interviews"),
		Unlocks:       name("Unlocks"),
		Notifications: name("Notifications"),
		Plans:         name("Plans"),
		Purchases:     name("Purchases"),
		OTP:           name("OTPCodes"),
		Guards:        name("Guards"),
	}
}

// Specs lists the table layouts created by Migrate.
func (t Tables) Specs() []services.TableSpec {
	return []services.TableSpec{
		{Name: t.Candidates, HashKey: "ID"},
		{Name: t.Employers, HashKey: "ID"},
		{Name: t.Admins, HashKey: "ID"},
		{Name: t.Skills, HashKey: "ID"},
		{Name: t.Interviews, HashKey: "ID", Indexes: []services.IndexSpec{
			{Name: indexByEmployer, HashKey: "EmployerID"},
			{Name: indexByCandidate, HashKey: "CandidateID"},
			{Name: indexByStatus, HashKey: "Status"},
		}},
		{Name: t.Unlocks, HashKey: "EmployerID", RangeKey: "CandidateID"},
		{Name: t.Notifications, HashKey: "ID", Indexes: []services.IndexSpec{
			{Name: indexByRecipient, HashKey: "RecipientID"},
		}},
		{Name: t.Plans, HashKey: "ID"},
		{Name: t.Purchases, HashKey: "ID", Indexes: []services.IndexSpec{
			{Name: indexByEmployer, HashKey: "EmployerID"},
		}},
		{Name: t.OTP, HashKey: "Key"},
		{Name: t.Guards, HashKey: "Key"},
	}
}

type Store struct {
	client *dynamodb.Client
	tables Tables
	now    func() time.Time
}

func New(client *dynamodb.Client, tables Tables) *Store {
	return &Store{
		client: client,
		tables: tables,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Tables() Tables {
	return s.tables
}

// Migrate creates any missing table.
func (s *Store) Migrate(ctx context.Context) error {
	svc := services.NewDynamoService(s.client)
	for _, spec := range s.tables.Specs() {
		if err := svc.EnsureTable(ctx, spec); err != nil {
			return err
		}
	}
	return nil
}

// guard items enforce uniqueness of a value within a collection.
type guard struct {
	Key     string
	OwnerID string
}

func guardKey(parts ...string) string {
	return strings.Join(parts, "#")
}

func stringKey(name, value string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{name: &types.AttributeValueMemberS{Value: value}}
}

func idKey(id string) map[string]types.AttributeValue {
	return stringKey("ID", id)
}

func (s *Store) getItem(ctx context.Context, table string, key map[string]types.AttributeValue, out any) error {
	res, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(table),
		Key:            key,
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("get item from %s: %w", table, err)
	}
	if len(res.Item) == 0 {
		return models.ErrNotFound
	}
	if err := attributevalue.UnmarshalMap(res.Item, out); err != nil {
		return fmt.Errorf("unmarshal item from %s: %w", table, err)
	}
	return nil
}

func (s *Store) putItem(ctx context.Context, table string, v any, cond *expression.ConditionBuilder) error {
	item, err := attributevalue.MarshalMap(v)
	if err != nil {
		return fmt.Errorf("marshal item for %s: %w", table, err)
	}
	input := &dynamodb.PutItemInput{
		TableName: aws.String(table),
		Item:      item,
	}
	if cond != nil {
		expr, err := expression.NewBuilder().WithCondition(*cond).Build()
		if err != nil {
			return err
		}
		input.ConditionExpression = expr.Condition()
		input.ExpressionAttributeNames = expr.Names()
		input.ExpressionAttributeValues = expr.Values()
	}
	if _, err := s.client.PutItem(ctx, input); err != nil {
		if isConditionFailed(err) {
			return models.ErrConflict
		}
		return fmt.Errorf("put item to %s: %w", table, err)
	}
	return nil
}

func (s *Store) updateItem(ctx context.Context, table string, key map[string]types.AttributeValue, update expression.UpdateBuilder, cond *expression.ConditionBuilder) error {
	_, err := s.updateItemReturning(ctx, table, key, update, cond, types.ReturnValueNone)
	return err
}

func (s *Store) updateItemReturning(ctx context.Context, table string, key map[string]types.AttributeValue,
	update expression.UpdateBuilder, cond *expression.ConditionBuilder, returnValues types.ReturnValue) (map[string]types.AttributeValue, error) {
	builder := expression.NewBuilder().WithUpdate(update)
	if cond != nil {
		builder = builder.WithCondition(*cond)
	}
	expr, err := builder.Build()
	if err != nil {
		return nil, err
	}
	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(table),
		Key:                       key,
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ReturnValues:              returnValues,
	})
	if err != nil {
		if isConditionFailed(err) {
			return nil, models.ErrConflict
		}
		return nil, fmt.Errorf("update item in %s: %w", table, err)
	}
	return out.Attributes, nil
}

func (s *Store) scanAll(ctx context.Context, table string, filter *expression.ConditionBuilder, out any) error {
	input := &dynamodb.ScanInput{TableName: aws.String(table)}
	if filter != nil {
		expr, err := expression.NewBuilder().WithFilter(*filter).Build()
		if err != nil {
			return err
		}
		input.FilterExpression = expr.Filter()
		input.ExpressionAttributeNames = expr.Names()
		input.ExpressionAttributeValues = expr.Values()
	}

	var items []map[string]types.AttributeValue
	paginator := dynamodb.NewScanPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("scan %s: %w", table, err)
		}
		items = append(items, page.Items...)
	}
	if err := attributevalue.UnmarshalListOfMaps(items, out); err != nil {
		return fmt.Errorf("unmarshal scan of %s: %w", table, err)
	}
	return nil
}

func (s *Store) queryIndex(ctx context.Context, table, index, attr, value string, out any) error {
	keyCond := expression.Key(attr).Equal(expression.Value(value))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return err
	}
	input := &dynamodb.QueryInput{
		TableName:                 aws.String(table),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}
	if index != "" {
		input.IndexName = aws.String(index)
	}

	var items []map[string]types.AttributeValue
	paginator := dynamodb.NewQueryPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("query %s: %w", table, err)
		}
		items = append(items, page.Items...)
	}
	if err := attributevalue.UnmarshalListOfMaps(items, out); err != nil {
		return fmt.Errorf("unmarshal query of %s: %w", table, err)
	}
	return nil
}

func (s *Store) transact(ctx context.Context, items []types.TransactWriteItem) ([]string, error) {
	_, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if err == nil {
		return nil, nil
	}
	var canceled *types.TransactionCanceledException
	if errors.As(err, &canceled) {
		codes := make([]string, len(items))
		for i, reason := range canceled.CancellationReasons {
			if i < len(codes) {
				codes[i] = aws.ToString(reason.Code)
			}
		}
		return codes, err
	}
	return nil, fmt.Errorf("transact write: %w", err)
}

func conditionFailedAt(codes []string, i int) bool {
	return i < len(codes) && codes[i] == "ConditionalCheckFailed"
}

func isConditionFailed(err error) bool {
	var conditionalCheckErr *types.ConditionalCheckFailedException
	return errors.As(err, &conditionalCheckErr)
}

func putTx(table string, v any, cond *expression.ConditionBuilder) (types.TransactWriteItem, error) {
	item, err := attributevalue.MarshalMap(v)
	if err != nil {
		return types.TransactWriteItem{}, fmt.Errorf("marshal item for %s: %w", table, err)
	}
	put := &types.Put{TableName: aws.String(table), Item: item}
	if cond != nil {
		expr, err := expression.NewBuilder().WithCondition(*cond).Build()
		if err != nil {
			return types.TransactWriteItem{}, err
		}
		put.ConditionExpression = expr.Condition()
		put.ExpressionAttributeNames = expr.Names()
		put.ExpressionAttributeValues = expr.Values()
	}
	return types.TransactWriteItem{Put: put}, nil
}

func updateTx(table string, key map[string]types.AttributeValue, update expression.UpdateBuilder, cond *expression.ConditionBuilder) (types.TransactWriteItem, error) {
	builder := expression.NewBuilder().WithUpdate(update)
	if cond != nil {
		builder = builder.WithCondition(*cond)
	}
	expr, err := builder.Build()
	if err != nil {
		return types.TransactWriteItem{}, err
	}
	return types.TransactWriteItem{Update: &types.Update{
		TableName:                 aws.String(table),
		Key:                       key,
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}}, nil
}

func deleteTx(table string, key map[string]types.AttributeValue) types.TransactWriteItem {
	return types.TransactWriteItem{Delete: &types.Delete{
		TableName: aws.String(table),
		Key:       key,
	}}
}

func guardTx(table, key, owner string) (types.TransactWriteItem, error) {
	cond := expression.AttributeNotExists(expression.Name("Key"))
	return putTx(table, guard{Key: key, OwnerID: owner}, &cond)
}

func notExists(attr string) *expression.ConditionBuilder {
	cond := expression.AttributeNotExists(expression.Name(attr))
	return &cond
}

func exists(attr string) *expression.ConditionBuilder {
	cond := expression.AttributeExists(expression.Name(attr))
	return &cond
}
