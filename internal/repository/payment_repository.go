package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/sirupsen/logrus"

	"github.com/veloxcart/veloxcart/internal/models"
)

// PaymentRepository stores one PAYMENT#<id> item per payment attempt.
// Records are kept after verification as the audit trail of the simulated
// payment, so no TTL attribute is set on them.
type PaymentRepository struct {
	client    *dynamodb.Client
	tableName string
	logger    *logrus.Logger
}

func NewPaymentRepository(client *dynamodb.Client, tableName string, logger *logrus.Logger) *PaymentRepository {
	return &PaymentRepository{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

func (r *PaymentRepository) Create(ctx context.Context, record *models.PaymentOTPRecord) error {
	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		r.logger.WithError(err).Error("Failed to marshal payment record for DynamoDB")
		return fmt.Errorf("failed to marshal payment record: %w", err)
	}

	item["PK"] = &types.AttributeValueMemberS{Value: record.GetPK()}
	item["SK"] = &types.AttributeValueMemberS{Value: record.GetSK()}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})

	if err != nil {
		var conditionErr *types.ConditionalCheckFailedException
		if errors.As(err, &conditionErr) {
			return ErrAlreadyExists
		}
		r.logger.WithError(err).Error("Failed to create payment record in DynamoDB")
		return fmt.Errorf("failed to create payment record: %w", err)
	}

	return nil
}

func (r *PaymentRepository) GetByID(ctx context.Context, id string) (*models.PaymentOTPRecord, error) {
	record := &models.PaymentOTPRecord{ID: id}

	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: record.GetPK()},
			"SK": &types.AttributeValueMemberS{Value: record.GetSK()},
		},
	})

	if err != nil {
		r.logger.WithError(err).Error("Failed to get payment record from DynamoDB")
		return nil, fmt.Errorf("failed to get payment record: %w", err)
	}

	if result.Item == nil {
		return nil, nil // record not found
	}

	var stored models.PaymentOTPRecord
	if err := attributevalue.UnmarshalMap(result.Item, &stored); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payment record: %w", err)
	}

	return &stored, nil
}

// MarkVerified flips the record to verified and drops the OTP fields in one
// conditional write, so only a record still in otp_sent can move forward.
func (r *PaymentRepository) MarkVerified(ctx context.Context, id string) error {
	record := &models.PaymentOTPRecord{ID: id}

	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: record.GetPK()},
			"SK": &types.AttributeValueMemberS{Value: record.GetSK()},
		},
		UpdateExpression:    aws.String("SET #status = :verified REMOVE otp_hash, otp_expires_at"),
		ConditionExpression: aws.String("#status = :otp_sent"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":verified": &types.AttributeValueMemberS{Value: models.PaymentStatusVerified},
			":otp_sent": &types.AttributeValueMemberS{Value: models.PaymentStatusOTPSent},
		},
	})

	if err != nil {
		var conditionErr *types.ConditionalCheckFailedException
		if errors.As(err, &conditionErr) {
			return ErrConditionFailed
		}
		r.logger.WithError(err).Error("Failed to mark payment record verified")
		return fmt.Errorf("failed to mark payment verified: %w", err)
	}

	return nil
}

func (r *PaymentRepository) Delete(ctx context.Context, id string) error {
	record := &models.PaymentOTPRecord{ID: id}

	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: record.GetPK()},
			"SK": &types.AttributeValueMemberS{Value: record.GetSK()},
		},
	})

	if err != nil {
		return fmt.Errorf("failed to delete payment record: %w", err)
	}

	return nil
}
