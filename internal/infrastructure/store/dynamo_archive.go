package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/example/receiptflow/internal/domain/order"
)

// DynamoArchive stores orders in DynamoDB, for deployments without a
// Postgres instance. Table: partition key order_id; GSI1 on the fixed
// gsi1pk value enables listing.
type DynamoArchive struct {
	client    *dynamodb.Client
	tableName string
}

// dynamoOrder represents the DynamoDB item structure.
type dynamoOrder struct {
	OrderID   string `dynamodbav:"order_id"`
	Enriched  bool   `dynamodbav:"enriched"`
	Payload   string `dynamodbav:"payload"`
	UpdatedAt string `dynamodbav:"updated_at"`
	GSI1PK    string `dynamodbav:"gsi1pk"`
}

func NewDynamoArchive(client *dynamodb.Client, tableName string) *DynamoArchive {
	return &DynamoArchive{client: client, tableName: tableName}
}

// Save upserts the order document.
func (a *DynamoArchive) Save(ctx context.Context, o order.Order) error {
	payload, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshal order %s: %w", o.ID, err)
	}

	item := dynamoOrder{
		OrderID:   o.ID,
		Enriched:  o.Enriched,
		Payload:   string(payload),
		UpdatedAt: time.Now().Format(time.RFC3339Nano),
		GSI1PK:    "ORDERS", // Fixed value for GSI1 to enable List
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshal order item: %w", err)
	}

	_, err = a.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(a.tableName),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("put order %s: %w", o.ID, err)
	}
	return nil
}

// Get returns the archived order, or (nil, nil) when absent.
func (a *DynamoArchive) Get(ctx context.Context, orderID string) (*order.Order, error) {
	out, err := a.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(a.tableName),
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", orderID, err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}

	var item dynamoOrder
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshal order item: %w", err)
	}
	var o order.Order
	if err := json.Unmarshal([]byte(item.Payload), &o); err != nil {
		return nil, fmt.Errorf("unmarshal order %s: %w", orderID, err)
	}
	return &o, nil
}

// List returns all archived orders, oldest first.
func (a *DynamoArchive) List(ctx context.Context) ([]order.Order, error) {
	return a.listFiltered(ctx, false)
}

// ListEnriched returns only fully enriched orders, oldest first.
func (a *DynamoArchive) ListEnriched(ctx context.Context) ([]order.Order, error) {
	return a.listFiltered(ctx, true)
}

func (a *DynamoArchive) listFiltered(ctx context.Context, enrichedOnly bool) ([]order.Order, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(a.tableName),
		IndexName:              aws.String("GSI1"),
		KeyConditionExpression: aws.String("gsi1pk = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: "ORDERS"},
		},
	}
	if enrichedOnly {
		input.FilterExpression = aws.String("enriched = :e")
		input.ExpressionAttributeValues[":e"] = &types.AttributeValueMemberBOOL{Value: true}
	}

	var items []dynamoOrder
	for {
		out, err := a.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("list orders: %w", err)
		}
		for _, raw := range out.Items {
			var item dynamoOrder
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				return nil, fmt.Errorf("unmarshal order item: %w", err)
			}
			items = append(items, item)
		}
		if out.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}

	sort.Slice(items, func(i, j int) bool { return items[i].UpdatedAt < items[j].UpdatedAt })

	orders := make([]order.Order, 0, len(items))
	for _, item := range items {
		var o order.Order
		if err := json.Unmarshal([]byte(item.Payload), &o); err != nil {
			return nil, fmt.Errorf("unmarshal order %s: %w", item.OrderID, err)
		}
		orders = append(orders, o)
	}
	return orders, nil
}
