package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"

	"github.com/mauriciocarvalho01/FIAP-Tech-Challenge-Restaurante-Acme-Checkout/internal/domain"
)

const PaymentIDIndex = "PaymentIdIndex"

// API is the subset of the DynamoDB client used by the repository.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

type paymentItem struct {
	OrderID        string    `dynamodbav:"order_id"`
	PaymentID      string    `dynamodbav:"payment_id"`
	TotalValue     string    `dynamodbav:"total_value"`
	PaymentMethod  string    `dynamodbav:"payment_method"`
	Status         string    `dynamodbav:"status"`
	PixURL         string    `dynamodbav:"pix_url"`
	PixCode        string    `dynamodbav:"pix_code"`
	ExpirationDate time.Time `dynamodbav:"expiration_date"`
	ClientID       string    `dynamodbav:"client_id"`
	CreatedAt      time.Time `dynamodbav:"created_at"`
	UpdatedAt      time.Time `dynamodbav:"updated_at"`
}

func (i paymentItem) toDomain() *domain.Payment {
	total, _ := decimal.NewFromString(i.TotalValue)
	return &domain.Payment{
		PaymentID:      i.PaymentID,
		OrderID:        i.OrderID,
		TotalValue:     total,
		PaymentMethod:  i.PaymentMethod,
		Status:         domain.PaymentStatus(i.Status),
		PixURL:         i.PixURL,
		PixCode:        i.PixCode,
		ExpirationDate: i.ExpirationDate,
		ClientID:       i.ClientID,
		CreatedAt:      i.CreatedAt,
		UpdatedAt:      i.UpdatedAt,
	}
}

func (i paymentItem) matches(lookup domain.PaymentLookup) bool {
	if lookup.OrderID != "" && lookup.OrderID != i.OrderID {
		return false
	}
	if lookup.PaymentID != "" && lookup.PaymentID != i.PaymentID {
		return false
	}
	return true
}

// PaymentRepository stores one item per order, keyed by order_id. It has no
// surrogate numeric id, so saved payments always report ID 0.
type PaymentRepository struct {
	client    API
	tableName string
	now       func() time.Time
}

func NewPaymentRepository(client API, tableName string) *PaymentRepository {
	if tableName == "" {
		tableName = "Pagamentos"
	}
	return &PaymentRepository{
		client:    client,
		tableName: tableName,
		now:       time.Now,
	}
}

func (r *PaymentRepository) PrepareTransaction(ctx context.Context) (domain.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewEntityError("prepare transaction", err)
	}
	return &transaction{repo: r}, nil
}

func (r *PaymentRepository) FindPayment(ctx context.Context, lookup domain.PaymentLookup) (*domain.Payment, error) {
	item, err := r.find(ctx, lookup)
	if err != nil || item == nil {
		return nil, err
	}
	return item.toDomain(), nil
}

// EnsureTable creates the payments table and its payment id index. An
// existing table is left as is.
func (r *PaymentRepository) EnsureTable(ctx context.Context) error {
	_, err := r.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(r.tableName),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("order_id"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("payment_id"), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("order_id"), KeyType: types.KeyTypeHash},
		},
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
			{
				IndexName: aws.String(PaymentIDIndex),
				KeySchema: []types.KeySchemaElement{
					{AttributeName: aws.String("payment_id"), KeyType: types.KeyTypeHash},
				},
				Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
			},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	var inUse *types.ResourceInUseException
	if err != nil && !errors.As(err, &inUse) {
		return fmt.Errorf("create table %s: %w", r.tableName, err)
	}
	return nil
}

func (r *PaymentRepository) getByOrderID(ctx context.Context, orderID string) (*paymentItem, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}

	if result.Item == nil {
		return nil, nil
	}

	var item paymentItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *PaymentRepository) getByPaymentID(ctx context.Context, paymentID string) (*paymentItem, error) {
	result, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String(PaymentIDIndex),
		KeyConditionExpression: aws.String("payment_id = :pid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pid": &types.AttributeValueMemberS{Value: paymentID},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return nil, err
	}

	if len(result.Items) == 0 {
		return nil, nil
	}

	var item paymentItem
	if err := attributevalue.UnmarshalMap(result.Items[0], &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *PaymentRepository) find(ctx context.Context, lookup domain.PaymentLookup) (*paymentItem, error) {
	if lookup.Empty() {
		return nil, domain.NewEntityError("find payment", domain.ErrEmptyLookup)
	}

	var (
		item *paymentItem
		err  error
	)
	if lookup.OrderID != "" {
		item, err = r.getByOrderID(ctx, lookup.OrderID)
	} else {
		item, err = r.getByPaymentID(ctx, lookup.PaymentID)
	}
	if err != nil {
		return nil, domain.NewEntityError("find payment", err)
	}
	if item == nil || !item.matches(lookup) {
		return nil, nil
	}
	return item, nil
}

// transaction buffers writes and sends them as one TransactWriteItems call on
// Commit. Reads made through it see its own pending writes.
type transaction struct {
	repo    *PaymentRepository
	open    bool
	closed  bool
	writes  []types.TransactWriteItem
	pending map[string]*paymentItem
}

func (t *transaction) Open(ctx context.Context) error {
	if t.open || t.closed || t.pending != nil {
		return domain.NewEntityError("open transaction", fmt.Errorf("transaction already used"))
	}
	t.open = true
	t.pending = make(map[string]*paymentItem)
	return nil
}

func (t *transaction) Commit(ctx context.Context) error {
	if !t.open {
		return domain.NewEntityError("commit", domain.ErrTransactionNotOpen)
	}
	t.open = false
	writes := t.writes
	t.writes = nil
	if len(writes) == 0 {
		return nil
	}

	_, err := t.repo.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: writes,
	})
	if err != nil {
		return domain.NewEntityError("commit", err)
	}
	return nil
}

func (t *transaction) Rollback(ctx context.Context) error {
	if !t.open {
		return nil
	}
	t.open = false
	t.writes = nil
	return nil
}

func (t *transaction) Close(ctx context.Context) error {
	t.open = false
	t.closed = true
	t.writes = nil
	return nil
}

func (t *transaction) lookup(ctx context.Context, orderID string) (*paymentItem, error) {
	if item, ok := t.pending[orderID]; ok {
		return item, nil
	}
	return t.repo.getByOrderID(ctx, orderID)
}

// SavePayment keeps payment_id and created_at of an existing item. The write
// is conditioned on the item still carrying that identity, so a concurrent
// first checkout for the same order fails the whole commit.
func (t *transaction) SavePayment(ctx context.Context, payment *domain.Payment) (*domain.SavedPayment, error) {
	if !t.open {
		return nil, domain.NewEntityError("save payment", domain.ErrTransactionNotOpen)
	}

	existing, err := t.lookup(ctx, payment.OrderID)
	if err != nil {
		return nil, domain.NewEntityError("save payment", err)
	}

	now := t.repo.now().UTC()
	item := paymentItem{
		OrderID:        payment.OrderID,
		PaymentID:      payment.PaymentID,
		TotalValue:     payment.TotalValue.String(),
		PaymentMethod:  payment.PaymentMethod,
		Status:         string(payment.Status),
		PixURL:         payment.PixURL,
		PixCode:        payment.PixCode,
		ExpirationDate: payment.ExpirationDate,
		ClientID:       payment.ClientID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	put := &types.Put{
		TableName:           aws.String(t.repo.tableName),
		ConditionExpression: aws.String("attribute_not_exists(order_id)"),
	}
	if existing != nil {
		item.PaymentID = existing.PaymentID
		item.CreatedAt = existing.CreatedAt
		put.ConditionExpression = aws.String("payment_id = :pid")
		put.ExpressionAttributeValues = map[string]types.AttributeValue{
			":pid": &types.AttributeValueMemberS{Value: existing.PaymentID},
		}
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return nil, domain.NewEntityError("save payment", err)
	}
	put.Item = av

	t.writes = append(t.writes, types.TransactWriteItem{Put: put})
	t.pending[item.OrderID] = &item

	return &domain.SavedPayment{
		Status:     domain.PaymentStatus(item.Status),
		PaymentID:  item.PaymentID,
		TotalValue: payment.TotalValue,
	}, nil
}

func (t *transaction) UpdateStatusByOrderID(ctx context.Context, orderID string, status domain.PaymentStatus) (*domain.StatusUpdate, error) {
	if !t.open {
		return nil, domain.NewEntityError("update payment status", domain.ErrTransactionNotOpen)
	}

	existing, err := t.lookup(ctx, orderID)
	if err != nil {
		return nil, domain.NewEntityError("update payment status", err)
	}
	if existing == nil {
		return nil, fmt.Errorf("%w: orderId %s", domain.ErrPaymentNotFound, orderID)
	}

	now := t.repo.now().UTC()
	updatedAt, err := attributevalue.Marshal(now)
	if err != nil {
		return nil, domain.NewEntityError("update payment status", err)
	}

	t.writes = append(t.writes, types.TransactWriteItem{
		Update: &types.Update{
			TableName: aws.String(t.repo.tableName),
			Key: map[string]types.AttributeValue{
				"order_id": &types.AttributeValueMemberS{Value: orderID},
			},
			UpdateExpression:         aws.String("SET #status = :status, updated_at = :updated_at"),
			ConditionExpression:      aws.String("attribute_exists(order_id)"),
			ExpressionAttributeNames: map[string]string{"#status": "status"},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":status":     &types.AttributeValueMemberS{Value: string(status)},
				":updated_at": updatedAt,
			},
		},
	})

	updated := *existing
	updated.Status = string(status)
	updated.UpdatedAt = now
	t.pending[orderID] = &updated

	return &domain.StatusUpdate{PaymentID: updated.PaymentID, Status: status}, nil
}

func (t *transaction) FindPayment(ctx context.Context, lookup domain.PaymentLookup) (*domain.Payment, error) {
	if !t.open {
		return nil, domain.NewEntityError("find payment", domain.ErrTransactionNotOpen)
	}
	if lookup.Empty() {
		return nil, domain.NewEntityError("find payment", domain.ErrEmptyLookup)
	}

	for _, item := range t.pending {
		if item.matches(lookup) {
			return item.toDomain(), nil
		}
	}
	return t.repo.FindPayment(ctx, lookup)
}
