package dynamodb

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"github.com/heirloom-app/heirloom/domain/accounts"
	apperrors "github.com/heirloom-app/heirloom/pkg/errors"
)

const (
	userPKPrefix      = "USER#"
	invitePKPrefix    = "INVITE#"
	spaceMetaPKPrefix = "SPACEMETA#"
)

// UserRepository implements ports.UserRepository using DynamoDB.
type UserRepository struct {
	client    *dynamodb.Client
	tableName string
	logger    *zap.Logger
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(client *dynamodb.Client, tableName string, logger *zap.Logger) *UserRepository {
	return &UserRepository{client: client, tableName: tableName, logger: logger}
}

type userItem struct {
	PK             string `dynamodbav:"PK"`
	SK             string `dynamodbav:"SK"`
	EntityType     string `dynamodbav:"EntityType"`
	Username       string `dynamodbav:"Username"`
	Email          string `dynamodbav:"Email,omitempty"`
	PasswordHash   string `dynamodbav:"PasswordHash"`
	CurrentSpace   string `dynamodbav:"CurrentSpace,omitempty"`
	InviteCodeUsed string `dynamodbav:"InviteCodeUsed,omitempty"`
	CreatedAt      string `dynamodbav:"CreatedAt"`
}

func userToItem(u *accounts.User) userItem {
	return userItem{
		PK:             userPKPrefix + u.Username,
		SK:             metadataSK,
		EntityType:     "USER",
		Username:       u.Username,
		Email:          u.Email,
		PasswordHash:   u.PasswordHash,
		CurrentSpace:   u.CurrentSpace,
		InviteCodeUsed: u.InviteCodeUsed,
		CreatedAt:      u.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func itemToUser(item userItem) *accounts.User {
	u := &accounts.User{
		Username:       item.Username,
		Email:          item.Email,
		PasswordHash:   item.PasswordHash,
		CurrentSpace:   item.CurrentSpace,
		InviteCodeUsed: item.InviteCodeUsed,
	}
	if t, err := time.Parse(time.RFC3339, item.CreatedAt); err == nil {
		u.CreatedAt = t
	}
	return u
}

// Create stores a user, failing with a conflict when the username is taken.
func (r *UserRepository) Create(ctx context.Context, u *accounts.User) error {
	item, err := attributevalue.MarshalMap(userToItem(u))
	if err != nil {
		return apperrors.NewDatabaseError("marshal user", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		var failed *types.ConditionalCheckFailedException
		if errors.As(err, &failed) {
			return apperrors.NewConflictError("username already taken")
		}
		return apperrors.NewDatabaseError("create user", err)
	}
	return nil
}

// Update overwrites an existing user.
func (r *UserRepository) Update(ctx context.Context, u *accounts.User) error {
	item, err := attributevalue.MarshalMap(userToItem(u))
	if err != nil {
		return apperrors.NewDatabaseError("marshal user", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_exists(PK)"),
	})
	if err != nil {
		var failed *types.ConditionalCheckFailedException
		if errors.As(err, &failed) {
			return apperrors.NewNotFoundError("user")
		}
		return apperrors.NewDatabaseError("update user", err)
	}
	return nil
}

// GetByUsername loads a user by username.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*accounts.User, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: userPKPrefix + username},
			"SK": &types.AttributeValueMemberS{Value: metadataSK},
		},
	})
	if err != nil {
		return nil, apperrors.NewDatabaseError("get user", err)
	}
	if out.Item == nil {
		return nil, apperrors.NewNotFoundError("user")
	}

	var item userItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, apperrors.NewDatabaseError("unmarshal user", err)
	}
	return itemToUser(item), nil
}

// InviteRepository implements ports.InviteRepository using DynamoDB.
type InviteRepository struct {
	client    *dynamodb.Client
	tableName string
	logger    *zap.Logger
}

// NewInviteRepository creates a new InviteRepository
func NewInviteRepository(client *dynamodb.Client, tableName string, logger *zap.Logger) *InviteRepository {
	return &InviteRepository{client: client, tableName: tableName, logger: logger}
}

type inviteItem struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	EntityType string `dynamodbav:"EntityType"`
	Code       string `dynamodbav:"Code"`
	Active     bool   `dynamodbav:"Active"`
	UsedBy     string `dynamodbav:"UsedBy,omitempty"`
	UsedEmail  string `dynamodbav:"UsedEmail,omitempty"`
	UsedAt     string `dynamodbav:"UsedAt,omitempty"`
	CreatedAt  string `dynamodbav:"CreatedAt"`
}

// Get loads an invite by code.
func (r *InviteRepository) Get(ctx context.Context, code string) (*accounts.Invite, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: invitePKPrefix + code},
			"SK": &types.AttributeValueMemberS{Value: metadataSK},
		},
	})
	if err != nil {
		return nil, apperrors.NewDatabaseError("get invite", err)
	}
	if out.Item == nil {
		return nil, apperrors.NewNotFoundError("invite")
	}

	var item inviteItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, apperrors.NewDatabaseError("unmarshal invite", err)
	}

	inv := &accounts.Invite{
		Code:      item.Code,
		Active:    item.Active,
		UsedBy:    item.UsedBy,
		UsedEmail: item.UsedEmail,
	}
	if item.UsedAt != "" {
		if t, perr := time.Parse(time.RFC3339, item.UsedAt); perr == nil {
			inv.UsedAt = t
		}
	}
	if t, perr := time.Parse(time.RFC3339, item.CreatedAt); perr == nil {
		inv.CreatedAt = t
	}
	return inv, nil
}

// Update overwrites an invite, typically to mark it used.
func (r *InviteRepository) Update(ctx context.Context, inv *accounts.Invite) error {
	item := inviteItem{
		PK:         invitePKPrefix + inv.Code,
		SK:         metadataSK,
		EntityType: "INVITE",
		Code:       inv.Code,
		Active:     inv.Active,
		UsedBy:     inv.UsedBy,
		UsedEmail:  inv.UsedEmail,
		CreatedAt:  inv.CreatedAt.UTC().Format(time.RFC3339),
	}
	if !inv.UsedAt.IsZero() {
		item.UsedAt = inv.UsedAt.UTC().Format(time.RFC3339)
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return apperrors.NewDatabaseError("marshal invite", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      av,
	})
	if err != nil {
		return apperrors.NewDatabaseError("update invite", err)
	}
	return nil
}

// SpaceRepository implements ports.SpaceRepository using DynamoDB.
type SpaceRepository struct {
	client    *dynamodb.Client
	tableName string
	logger    *zap.Logger
}

// NewSpaceRepository creates a new SpaceRepository
func NewSpaceRepository(client *dynamodb.Client, tableName string, logger *zap.Logger) *SpaceRepository {
	return &SpaceRepository{client: client, tableName: tableName, logger: logger}
}

type spaceItem struct {
	PK          string `dynamodbav:"PK"`
	SK          string `dynamodbav:"SK"`
	EntityType  string `dynamodbav:"EntityType"`
	SpaceID     string `dynamodbav:"SpaceID"`
	Name        string `dynamodbav:"Name"`
	Description string `dynamodbav:"Description,omitempty"`
	CreatedBy   string `dynamodbav:"CreatedBy,omitempty"`
	CreatedAt   string `dynamodbav:"CreatedAt"`
}

func itemToSpace(item spaceItem) *accounts.Space {
	s := &accounts.Space{
		ID:          item.SpaceID,
		Name:        item.Name,
		Description: item.Description,
		CreatedBy:   item.CreatedBy,
	}
	if t, err := time.Parse(time.RFC3339, item.CreatedAt); err == nil {
		s.CreatedAt = t
	}
	return s
}

// Create stores a space, failing with a conflict when the id is taken.
func (r *SpaceRepository) Create(ctx context.Context, s *accounts.Space) error {
	item, err := attributevalue.MarshalMap(spaceItem{
		PK:          spaceMetaPKPrefix + s.ID,
		SK:          metadataSK,
		EntityType:  "SPACE",
		SpaceID:     s.ID,
		Name:        s.Name,
		Description: s.Description,
		CreatedBy:   s.CreatedBy,
		CreatedAt:   s.CreatedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return apperrors.NewDatabaseError("marshal space", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		var failed *types.ConditionalCheckFailedException
		if errors.As(err, &failed) {
			return apperrors.NewConflictError("space already exists")
		}
		return apperrors.NewDatabaseError("create space", err)
	}
	return nil
}

// GetByID loads a space by id.
func (r *SpaceRepository) GetByID(ctx context.Context, spaceID string) (*accounts.Space, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: spaceMetaPKPrefix + spaceID},
			"SK": &types.AttributeValueMemberS{Value: metadataSK},
		},
	})
	if err != nil {
		return nil, apperrors.NewDatabaseError("get space", err)
	}
	if out.Item == nil {
		return nil, apperrors.NewNotFoundError("space")
	}

	var item spaceItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, apperrors.NewDatabaseError("unmarshal space", err)
	}
	return itemToSpace(item), nil
}

// List scans for all space metadata items. Space counts are small enough
// that a filtered scan is fine here.
func (r *SpaceRepository) List(ctx context.Context) ([]*accounts.Space, error) {
	filter := expression.Name("EntityType").Equal(expression.Value("SPACE"))
	expr, err := expression.NewBuilder().WithFilter(filter).Build()
	if err != nil {
		return nil, apperrors.NewDatabaseError("build scan", err)
	}

	var spaces []*accounts.Space
	var lastKey map[string]types.AttributeValue
	for {
		out, serr := r.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:                 aws.String(r.tableName),
			FilterExpression:          expr.Filter(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ExclusiveStartKey:         lastKey,
		})
		if serr != nil {
			return nil, apperrors.NewDatabaseError("list spaces", serr)
		}

		var items []spaceItem
		if uerr := attributevalue.UnmarshalListOfMaps(out.Items, &items); uerr != nil {
			return nil, apperrors.NewDatabaseError("unmarshal spaces", uerr)
		}
		for _, item := range items {
			spaces = append(spaces, itemToSpace(item))
		}

		if out.LastEvaluatedKey == nil {
			break
		}
		lastKey = out.LastEvaluatedKey
	}

	sort.Slice(spaces, func(i, j int) bool { return spaces[i].ID < spaces[j].ID })
	return spaces, nil
}
