package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/example/paypal-checkout/internal/checkout"
)

// DynamoOrderStore persists orders in DynamoDB. The table is keyed by
// order_id; a GSI1 index with a fixed partition key enables listing.
type DynamoOrderStore struct {
	client    *dynamodb.Client
	tableName string
}

// dynamoOrder is the DynamoDB item shape.
type dynamoOrder struct {
	OrderID               string `dynamodbav:"order_id"`
	ProductName           string `dynamodbav:"product_name"`
	ProductCurrency       string `dynamodbav:"product_currency"`
	ProductPrice          string `dynamodbav:"product_price"`
	State                 string `dynamodbav:"state"`
	PayerEmail            string `dynamodbav:"payer_email"`
	FulfillmentDispatched bool   `dynamodbav:"fulfillment_dispatched"`
	RefundAmount          string `dynamodbav:"refund_amount"`
	RefundCurrency        string `dynamodbav:"refund_currency"`
	CreatedAt             string `dynamodbav:"created_at"`
	CompletedAt           string `dynamodbav:"completed_at,omitempty"`
	RefundedAt            string `dynamodbav:"refunded_at,omitempty"`
	GSI1PK                string `dynamodbav:"gsi1pk"`
}

func NewDynamoOrderStore(client *dynamodb.Client, tableName string) *DynamoOrderStore {
	return &DynamoOrderStore{client: client, tableName: tableName}
}

// Save upserts the order item.
func (s *DynamoOrderStore) Save(ctx context.Context, o *checkout.Order) error {
	item := dynamoOrder{
		OrderID:               o.ID,
		ProductName:           o.Product.Name,
		ProductCurrency:       o.Product.Currency,
		ProductPrice:          o.Product.Price,
		State:                 string(o.State),
		PayerEmail:            o.PayerEmail,
		FulfillmentDispatched: o.FulfillmentDispatched,
		RefundAmount:          o.RefundAmount,
		RefundCurrency:        o.RefundCurrency,
		CreatedAt:             o.CreatedAt.Format(time.RFC3339Nano),
		GSI1PK:                "ORDERS", // Fixed value for GSI1 to enable List
	}
	if !o.CompletedAt.IsZero() {
		item.CompletedAt = o.CompletedAt.Format(time.RFC3339Nano)
	}
	if !o.RefundedAt.IsZero() {
		item.RefundedAt = o.RefundedAt.Format(time.RFC3339Nano)
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal order: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("failed to put order: %w", err)
	}
	return nil
}

// Get loads a single order by ID.
func (s *DynamoOrderStore) Get(ctx context.Context, orderID string) (*checkout.Order, bool, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to get order: %w", err)
	}
	if result.Item == nil {
		return nil, false, nil
	}

	order, err := unmarshalOrder(result.Item)
	if err != nil {
		return nil, false, err
	}
	return order, true, nil
}

// List returns all orders via GSI1, newest first.
func (s *DynamoOrderStore) List(ctx context.Context) ([]*checkout.Order, error) {
	result, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		IndexName:              aws.String("GSI1"),
		KeyConditionExpression: aws.String("gsi1pk = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: "ORDERS"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}

	orders := make([]*checkout.Order, 0, len(result.Items))
	for _, item := range result.Items {
		order, err := unmarshalOrder(item)
		if err != nil {
			continue
		}
		orders = append(orders, order)
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	return orders, nil
}

func unmarshalOrder(item map[string]types.AttributeValue) (*checkout.Order, error) {
	var do dynamoOrder
	if err := attributevalue.UnmarshalMap(item, &do); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order: %w", err)
	}

	order := &checkout.Order{
		ID: do.OrderID,
		Product: checkout.Product{
			Name:     do.ProductName,
			Currency: do.ProductCurrency,
			Price:    do.ProductPrice,
		},
		State:                 checkout.State(do.State),
		PayerEmail:            do.PayerEmail,
		FulfillmentDispatched: do.FulfillmentDispatched,
		RefundAmount:          do.RefundAmount,
		RefundCurrency:        do.RefundCurrency,
	}
	order.CreatedAt, _ = time.Parse(time.RFC3339Nano, do.CreatedAt)
	if do.CompletedAt != "" {
		order.CompletedAt, _ = time.Parse(time.RFC3339Nano, do.CompletedAt)
	}
	if do.RefundedAt != "" {
		order.RefundedAt, _ = time.Parse(time.RFC3339Nano, do.RefundedAt)
	}
	return order, nil
}
