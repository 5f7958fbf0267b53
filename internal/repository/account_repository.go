package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/sirupsen/logrus"

	"github.com/veloxcart/veloxcart/internal/models"
)

// AccountRepository persists accounts in the shared single-table layout.
// The account item lives under ACCOUNT#<username>; a small index item under
// EMAIL#<email> maps the email back to the username for by-email lookups.
type AccountRepository struct {
	client    *dynamodb.Client
	tableName string
	logger    *logrus.Logger
}

func NewAccountRepository(client *dynamodb.Client, tableName string, logger *logrus.Logger) *AccountRepository {
	return &AccountRepository{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

func (r *AccountRepository) GetByUsername(ctx context.Context, username string) (*models.Account, error) {
	account := &models.Account{Username: username}

	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: account.GetPK()},
			"SK": &types.AttributeValueMemberS{Value: account.GetSK()},
		},
	})

	if err != nil {
		r.logger.WithError(err).Error("Failed to get account from DynamoDB")
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	if result.Item == nil {
		return nil, nil // account not found
	}

	var stored models.Account
	if err := attributevalue.UnmarshalMap(result.Item, &stored); err != nil {
		r.logger.WithError(err).Error("Failed to unmarshal account from DynamoDB")
		return nil, fmt.Errorf("failed to unmarshal account: %w", err)
	}

	return &stored, nil
}

func (r *AccountRepository) GetByEmail(ctx context.Context, emailAddr string) (*models.Account, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: emailIndexPK(emailAddr)},
			"SK": &types.AttributeValueMemberS{Value: "METADATA"},
		},
	})

	if err != nil {
		r.logger.WithError(err).Error("Failed to get email index item from DynamoDB")
		return nil, fmt.Errorf("failed to get email index: %w", err)
	}

	if result.Item == nil {
		return nil, nil
	}

	usernameAttr, ok := result.Item["username"].(*types.AttributeValueMemberS)
	if !ok || usernameAttr.Value == "" {
		return nil, fmt.Errorf("email index item for %q has no username", emailAddr)
	}

	return r.GetByUsername(ctx, usernameAttr.Value)
}

func (r *AccountRepository) Create(ctx context.Context, account *models.Account) error {
	now := time.Now()
	account.CreatedAt = now
	account.UpdatedAt = now

	item, err := attributevalue.MarshalMap(account)
	if err != nil {
		r.logger.WithError(err).Error("Failed to marshal account for DynamoDB")
		return fmt.Errorf("failed to marshal account: %w", err)
	}

	item["PK"] = &types.AttributeValueMemberS{Value: account.GetPK()}
	item["SK"] = &types.AttributeValueMemberS{Value: account.GetSK()}

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
		r.logger.WithError(err).Error("Failed to create account in DynamoDB")
		return fmt.Errorf("failed to create account: %w", err)
	}

	// Index item so the account can also be found by email.
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item: map[string]types.AttributeValue{
			"PK":       &types.AttributeValueMemberS{Value: emailIndexPK(account.Email)},
			"SK":       &types.AttributeValueMemberS{Value: "METADATA"},
			"username": &types.AttributeValueMemberS{Value: account.Username},
		},
	})
	if err != nil {
		r.logger.WithError(err).WithField("username", account.Username).
			Error("Failed to write email index item")
		return fmt.Errorf("failed to write email index: %w", err)
	}

	return nil
}

func (r *AccountRepository) SetOTP(ctx context.Context, username, otpHash string, expiresAt time.Time) error {
	account := &models.Account{Username: username}

	expiresAttr, err := attributevalue.Marshal(expiresAt)
	if err != nil {
		return fmt.Errorf("failed to marshal otp expiry: %w", err)
	}
	updatedAttr, err := attributevalue.Marshal(time.Now())
	if err != nil {
		return fmt.Errorf("failed to marshal update time: %w", err)
	}

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: account.GetPK()},
			"SK": &types.AttributeValueMemberS{Value: account.GetSK()},
		},
		UpdateExpression:    aws.String("SET otp_hash = :hash, otp_expires_at = :expires, updated_at = :updated"),
		ConditionExpression: aws.String("attribute_exists(PK)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":hash":    &types.AttributeValueMemberS{Value: otpHash},
			":expires": expiresAttr,
			":updated": updatedAttr,
		},
	})

	if err != nil {
		r.logger.WithError(err).Error("Failed to set OTP on account")
		return fmt.Errorf("failed to set otp: %w", err)
	}

	return nil
}

func (r *AccountRepository) ClearOTP(ctx context.Context, username string) error {
	account := &models.Account{Username: username}

	updatedAttr, err := attributevalue.Marshal(time.Now())
	if err != nil {
		return fmt.Errorf("failed to marshal update time: %w", err)
	}

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: account.GetPK()},
			"SK": &types.AttributeValueMemberS{Value: account.GetSK()},
		},
		UpdateExpression:    aws.String("REMOVE otp_hash, otp_expires_at SET updated_at = :updated"),
		ConditionExpression: aws.String("attribute_exists(PK)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":updated": updatedAttr,
		},
	})

	if err != nil {
		r.logger.WithError(err).Error("Failed to clear OTP on account")
		return fmt.Errorf("failed to clear otp: %w", err)
	}

	return nil
}

func (r *AccountRepository) ClearOTPIfMatch(ctx context.Context, username, otpHash string) error {
	account := &models.Account{Username: username}

	updatedAttr, err := attributevalue.Marshal(time.Now())
	if err != nil {
		return fmt.Errorf("failed to marshal update time: %w", err)
	}

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: account.GetPK()},
			"SK": &types.AttributeValueMemberS{Value: account.GetSK()},
		},
		UpdateExpression:    aws.String("REMOVE otp_hash, otp_expires_at SET updated_at = :updated"),
		ConditionExpression: aws.String("otp_hash = :hash"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":hash":    &types.AttributeValueMemberS{Value: otpHash},
			":updated": updatedAttr,
		},
	})

	if err != nil {
		var conditionErr *types.ConditionalCheckFailedException
		if errors.As(err, &conditionErr) {
			return ErrConditionFailed
		}
		r.logger.WithError(err).Error("Failed to compare-and-clear OTP on account")
		return fmt.Errorf("failed to clear otp: %w", err)
	}

	return nil
}

func (r *AccountRepository) Delete(ctx context.Context, username string) error {
	stored, err := r.GetByUsername(ctx, username)
	if err != nil {
		return err
	}
	if stored == nil {
		return nil // already gone
	}

	_, err = r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: stored.GetPK()},
			"SK": &types.AttributeValueMemberS{Value: stored.GetSK()},
		},
	})
	if err != nil {
		r.logger.WithError(err).Error("Failed to delete account from DynamoDB")
		return fmt.Errorf("failed to delete account: %w", err)
	}

	_, err = r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: emailIndexPK(stored.Email)},
			"SK": &types.AttributeValueMemberS{Value: "METADATA"},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete email index: %w", err)
	}

	return nil
}

func emailIndexPK(emailAddr string) string {
	return "EMAIL#" + emailAddr
}
