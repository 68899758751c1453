package docstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoAPI is the subset of the DynamoDB client the store uses.
// Tests implement it with a stub client.
type DynamoAPI interface {
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(context.Context, *dynamodb.UpdateItemInput, ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Scan(context.Context, *dynamodb.ScanInput, ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoStore implements Store on DynamoDB tables. Each collection maps to a
// table whose partition key is the string attribute "id". Equality queries
// run as filtered scans; ordering and limiting are applied client-side,
// which is fine at single-clinic volumes.
type DynamoStore struct {
	client DynamoAPI
}

var _ Store = (*DynamoStore)(nil)

// NewDynamoStore builds a store backed by the provided DynamoDB client.
func NewDynamoStore(client DynamoAPI) *DynamoStore {
	if client == nil {
		panic("docstore: dynamodb client cannot be nil")
	}
	return &DynamoStore{client: client}
}

// Get implements Store.
func (s *DynamoStore) Get(ctx context.Context, collection, id string, out any) error {
	res, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(collection),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("docstore: get %s/%s: %w", collection, id, err)
	}
	if len(res.Item) == 0 {
		return ErrNotFound
	}
	if err := attributevalue.UnmarshalMap(res.Item, out); err != nil {
		return fmt.Errorf("docstore: unmarshal %s/%s: %w", collection, id, err)
	}
	return nil
}

// Create implements Store.
func (s *DynamoStore) Create(ctx context.Context, collection, id string, doc any) error {
	item, err := attributevalue.MarshalMap(doc)
	if err != nil {
		return fmt.Errorf("docstore: marshal document: %w", err)
	}
	item["id"] = &types.AttributeValueMemberS{Value: id}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(collection),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		var cond *types.ConditionalCheckFailedException
		if errors.As(err, &cond) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("docstore: create %s/%s: %w", collection, id, err)
	}
	return nil
}

// Update implements Store.
func (s *DynamoStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}

	names := make(map[string]string, len(fields))
	values := make(map[string]types.AttributeValue, len(fields))
	expr := "SET "
	for i, field := range sortedKeys(fields) {
		av, err := attributevalue.Marshal(fields[field])
		if err != nil {
			return fmt.Errorf("docstore: marshal field %s: %w", field, err)
		}
		name := fmt.Sprintf("#f%d", i)
		placeholder := fmt.Sprintf(":v%d", i)
		if i > 0 {
			expr += ", "
		}
		expr += name + " = " + placeholder
		names[name] = field
		values[placeholder] = av
	}

	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(collection),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
		UpdateExpression:          aws.String(expr),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ConditionExpression:       aws.String("attribute_exists(id)"),
	})
	if err != nil {
		var cond *types.ConditionalCheckFailedException
		if errors.As(err, &cond) {
			return ErrNotFound
		}
		return fmt.Errorf("docstore: update %s/%s: %w", collection, id, err)
	}
	return nil
}

// List implements Store.
func (s *DynamoStore) List(ctx context.Context, collection string, q Query, out any) error {
	input := &dynamodb.ScanInput{TableName: aws.String(collection)}

	if len(q.Eq) > 0 {
		names := make(map[string]string, len(q.Eq))
		values := make(map[string]types.AttributeValue, len(q.Eq))
		expr := ""
		for i, field := range sortedKeys(q.Eq) {
			av, err := attributevalue.Marshal(q.Eq[field])
			if err != nil {
				return fmt.Errorf("docstore: marshal predicate %s: %w", field, err)
			}
			name := fmt.Sprintf("#f%d", i)
			placeholder := fmt.Sprintf(":v%d", i)
			if i > 0 {
				expr += " AND "
			}
			expr += name + " = " + placeholder
			names[name] = field
			values[placeholder] = av
		}
		input.FilterExpression = aws.String(expr)
		input.ExpressionAttributeNames = names
		input.ExpressionAttributeValues = values
	}

	var items []map[string]types.AttributeValue
	for {
		res, err := s.client.Scan(ctx, input)
		if err != nil {
			return fmt.Errorf("docstore: list %s: %w", collection, err)
		}
		items = append(items, res.Items...)
		if len(res.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = res.LastEvaluatedKey
	}

	if q.OrderBy != "" {
		sort.SliceStable(items, func(i, j int) bool {
			cmp := compareAttr(items[i][q.OrderBy], items[j][q.OrderBy])
			if q.Descending {
				return cmp > 0
			}
			return cmp < 0
		})
	}
	if q.Limit > 0 && len(items) > q.Limit {
		items = items[:q.Limit]
	}

	if err := attributevalue.UnmarshalListOfMaps(items, out); err != nil {
		return fmt.Errorf("docstore: unmarshal list %s: %w", collection, err)
	}
	return nil
}

func compareAttr(a, b types.AttributeValue) int {
	as, aok := attrString(a)
	bs, bok := attrString(b)
	if aok && bok {
		// Timestamps marshal as RFC3339Nano with trailing zeros trimmed,
		// so they must be compared as times, not strings.
		if at, err := time.Parse(time.RFC3339Nano, as); err == nil {
			if bt, err := time.Parse(time.RFC3339Nano, bs); err == nil {
				return at.Compare(bt)
			}
		}
		switch {
		case as < bs:
			return -1
		case as > bs:
			return 1
		}
		return 0
	}
	an, aok := attrNumber(a)
	bn, bok := attrNumber(b)
	if aok && bok {
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		}
	}
	return 0
}

func attrString(v types.AttributeValue) (string, bool) {
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", false
	}
	return s.Value, true
}

func attrNumber(v types.AttributeValue) (float64, bool) {
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(n.Value, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
