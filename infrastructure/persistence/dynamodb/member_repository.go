package dynamodb

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"github.com/heirloom-app/heirloom/domain/tree"
	apperrors "github.com/heirloom-app/heirloom/pkg/errors"
)

// Key layout for the single-table design:
//
//	members:   PK=SPACE#{spaceID}  SK=MEMBER#{memberID}
//	name keys: PK=SPACE#{spaceID}  SK=NAMEKEY#{first|last}
//	relations: PK=SPACE#{spaceID}  SK=RELATION#{childID}
//	versions:  PK=SPACE#{spaceID}  SK=VERSION#{number}   GSI1PK=VERSIONID#{id}
//	state:     PK=SPACE#{spaceID}  SK=TREESTATE
const (
	spacePKPrefix     = "SPACE#"
	memberSKPrefix    = "MEMBER#"
	nameKeySKPrefix   = "NAMEKEY#"
	relationSKPrefix  = "RELATION#"
	versionSKPrefix   = "VERSION#"
	treeStateSK       = "TREESTATE"
	versionIDPrefix   = "VERSIONID#"
	metadataSK        = "METADATA"
	entityTypeMember  = "MEMBER"
	entityTypeNameKey = "NAMEKEY"
)

// MemberRepository implements ports.MemberRepository using DynamoDB.
type MemberRepository struct {
	client    *dynamodb.Client
	tableName string
	logger    *zap.Logger
}

// NewMemberRepository creates a new MemberRepository
func NewMemberRepository(client *dynamodb.Client, tableName string, logger *zap.Logger) *MemberRepository {
	return &MemberRepository{client: client, tableName: tableName, logger: logger}
}

// memberItem represents the DynamoDB item structure for a member
type memberItem struct {
	PK                string   `dynamodbav:"PK"`
	SK                string   `dynamodbav:"SK"`
	EntityType        string   `dynamodbav:"EntityType"`
	MemberID          string   `dynamodbav:"MemberID"`
	SpaceID           string   `dynamodbav:"SpaceID"`
	FirstName         string   `dynamodbav:"FirstName"`
	MiddleName        string   `dynamodbav:"MiddleName,omitempty"`
	LastName          string   `dynamodbav:"LastName"`
	NickName          string   `dynamodbav:"NickName,omitempty"`
	DOB               string   `dynamodbav:"DOB,omitempty"`
	DOBTS             int64    `dynamodbav:"DOBTS,omitempty"`
	IsDeceased        bool     `dynamodbav:"IsDeceased"`
	DateOfDeath       string   `dynamodbav:"DateOfDeath,omitempty"`
	BirthLocation     string   `dynamodbav:"BirthLocation,omitempty"`
	ResidenceLocation string   `dynamodbav:"ResidenceLocation,omitempty"`
	Email             string   `dynamodbav:"Email,omitempty"`
	Phone             string   `dynamodbav:"Phone,omitempty"`
	Hobbies           []string `dynamodbav:"Hobbies,omitempty"`
	SpouseID          string   `dynamodbav:"SpouseID,omitempty"`
	ProfilePictureURL string   `dynamodbav:"ProfilePictureURL,omitempty"`
	NameKey           string   `dynamodbav:"NameKey"`
	CreatedAt         string   `dynamodbav:"CreatedAt"`
	UpdatedAt         string   `dynamodbav:"UpdatedAt"`
}

func memberToItem(m *tree.Member) memberItem {
	item := memberItem{
		PK:                spacePKPrefix + m.SpaceID,
		SK:                memberSKPrefix + m.ID,
		EntityType:        entityTypeMember,
		MemberID:          m.ID,
		SpaceID:           m.SpaceID,
		FirstName:         m.FirstName,
		MiddleName:        m.MiddleName,
		LastName:          m.LastName,
		NickName:          m.NickName,
		DOB:               m.DOB,
		IsDeceased:        m.IsDeceased,
		DateOfDeath:       m.DateOfDeath,
		BirthLocation:     m.BirthLocation,
		ResidenceLocation: m.ResidenceLocation,
		Email:             m.Email,
		Phone:             m.Phone,
		Hobbies:           m.Hobbies,
		SpouseID:          m.SpouseID,
		ProfilePictureURL: m.ProfilePictureURL,
		NameKey:           m.NameKey(),
		CreatedAt:         m.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:         m.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if m.DOBTS != nil {
		item.DOBTS = m.DOBTS.Unix()
	}
	return item
}

func itemToMember(item memberItem) *tree.Member {
	m := &tree.Member{
		ID:                item.MemberID,
		SpaceID:           item.SpaceID,
		FirstName:         item.FirstName,
		MiddleName:        item.MiddleName,
		LastName:          item.LastName,
		NickName:          item.NickName,
		DOB:               item.DOB,
		IsDeceased:        item.IsDeceased,
		DateOfDeath:       item.DateOfDeath,
		BirthLocation:     item.BirthLocation,
		ResidenceLocation: item.ResidenceLocation,
		Email:             item.Email,
		Phone:             item.Phone,
		Hobbies:           item.Hobbies,
		SpouseID:          item.SpouseID,
		ProfilePictureURL: item.ProfilePictureURL,
	}
	if item.DOBTS != 0 {
		t := time.Unix(item.DOBTS, 0).UTC()
		m.DOBTS = &t
	}
	if t, err := time.Parse(time.RFC3339, item.CreatedAt); err == nil {
		m.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, item.UpdatedAt); err == nil {
		m.UpdatedAt = t
	}
	return m
}

// Create writes the member and its name-key guard item in one transaction;
// a taken name key fails the whole write with a conflict.
func (r *MemberRepository) Create(ctx context.Context, m *tree.Member) error {
	item, err := attributevalue.MarshalMap(memberToItem(m))
	if err != nil {
		return apperrors.NewDatabaseError("marshal member", err)
	}

	keyItem, err := attributevalue.MarshalMap(map[string]string{
		"PK":         spacePKPrefix + m.SpaceID,
		"SK":         nameKeySKPrefix + m.NameKey(),
		"EntityType": entityTypeNameKey,
		"MemberID":   m.ID,
	})
	if err != nil {
		return apperrors.NewDatabaseError("marshal name key", err)
	}

	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(r.tableName),
					Item:                keyItem,
					ConditionExpression: aws.String("attribute_not_exists(PK)"),
				},
			},
			{
				Put: &types.Put{
					TableName: aws.String(r.tableName),
					Item:      item,
				},
			},
		},
	})
	if err != nil {
		var canceled *types.TransactionCanceledException
		if errors.As(err, &canceled) {
			for _, reason := range canceled.CancellationReasons {
				if reason.Code != nil && *reason.Code == "ConditionalCheckFailed" {
					return apperrors.NewConflictError("member with same first_name and last_name already exists")
				}
			}
		}
		r.logger.Error("Failed to create member",
			zap.String("memberID", m.ID),
			zap.String("spaceID", m.SpaceID),
			zap.Error(err),
		)
		return apperrors.NewDatabaseError("create member", err)
	}

	return nil
}

// Update rewrites the member, swapping name-key guard items when the name
// changed.
func (r *MemberRepository) Update(ctx context.Context, m *tree.Member) error {
	current, err := r.GetByID(ctx, m.SpaceID, m.ID)
	if err != nil {
		return err
	}

	item, err := attributevalue.MarshalMap(memberToItem(m))
	if err != nil {
		return apperrors.NewDatabaseError("marshal member", err)
	}

	oldKey, newKey := current.NameKey(), m.NameKey()
	writes := []types.TransactWriteItem{
		{
			Put: &types.Put{
				TableName: aws.String(r.tableName),
				Item:      item,
			},
		},
	}

	if newKey != oldKey {
		keyItem, kerr := attributevalue.MarshalMap(map[string]string{
			"PK":         spacePKPrefix + m.SpaceID,
			"SK":         nameKeySKPrefix + newKey,
			"EntityType": entityTypeNameKey,
			"MemberID":   m.ID,
		})
		if kerr != nil {
			return apperrors.NewDatabaseError("marshal name key", kerr)
		}
		writes = append(writes,
			types.TransactWriteItem{
				Put: &types.Put{
					TableName:           aws.String(r.tableName),
					Item:                keyItem,
					ConditionExpression: aws.String("attribute_not_exists(PK)"),
				},
			},
			types.TransactWriteItem{
				Delete: &types.Delete{
					TableName: aws.String(r.tableName),
					Key: map[string]types.AttributeValue{
						"PK": &types.AttributeValueMemberS{Value: spacePKPrefix + m.SpaceID},
						"SK": &types.AttributeValueMemberS{Value: nameKeySKPrefix + oldKey},
					},
				},
			},
		)
	}

	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: writes})
	if err != nil {
		var canceled *types.TransactionCanceledException
		if errors.As(err, &canceled) {
			for _, reason := range canceled.CancellationReasons {
				if reason.Code != nil && *reason.Code == "ConditionalCheckFailed" {
					return apperrors.NewConflictError("member with same first_name and last_name already exists")
				}
			}
		}
		return apperrors.NewDatabaseError("update member", err)
	}

	return nil
}

// Delete removes the member and its name-key guard item.
func (r *MemberRepository) Delete(ctx context.Context, spaceID, memberID string) error {
	current, err := r.GetByID(ctx, spaceID, memberID)
	if err != nil {
		return err
	}

	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Delete: &types.Delete{
					TableName: aws.String(r.tableName),
					Key: map[string]types.AttributeValue{
						"PK": &types.AttributeValueMemberS{Value: spacePKPrefix + spaceID},
						"SK": &types.AttributeValueMemberS{Value: memberSKPrefix + memberID},
					},
				},
			},
			{
				Delete: &types.Delete{
					TableName: aws.String(r.tableName),
					Key: map[string]types.AttributeValue{
						"PK": &types.AttributeValueMemberS{Value: spacePKPrefix + spaceID},
						"SK": &types.AttributeValueMemberS{Value: nameKeySKPrefix + current.NameKey()},
					},
				},
			},
		},
	})
	if err != nil {
		return apperrors.NewDatabaseError("delete member", err)
	}

	return nil
}

// GetByID loads a member by id.
func (r *MemberRepository) GetByID(ctx context.Context, spaceID, memberID string) (*tree.Member, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: spacePKPrefix + spaceID},
			"SK": &types.AttributeValueMemberS{Value: memberSKPrefix + memberID},
		},
	})
	if err != nil {
		return nil, apperrors.NewDatabaseError("get member", err)
	}
	if out.Item == nil {
		return nil, apperrors.NewNotFoundError("member")
	}

	var item memberItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, apperrors.NewDatabaseError("unmarshal member", err)
	}
	return itemToMember(item), nil
}

// ListBySpace queries all members of a space.
func (r *MemberRepository) ListBySpace(ctx context.Context, spaceID string) ([]*tree.Member, error) {
	keyCond := expression.Key("PK").Equal(expression.Value(spacePKPrefix + spaceID)).
		And(expression.Key("SK").BeginsWith(memberSKPrefix))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, apperrors.NewDatabaseError("build query", err)
	}

	var members []*tree.Member
	var lastKey map[string]types.AttributeValue
	for {
		out, qerr := r.client.Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String(r.tableName),
			KeyConditionExpression:    expr.KeyCondition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ExclusiveStartKey:         lastKey,
		})
		if qerr != nil {
			return nil, apperrors.NewDatabaseError("list members", qerr)
		}

		var items []memberItem
		if uerr := attributevalue.UnmarshalListOfMaps(out.Items, &items); uerr != nil {
			return nil, apperrors.NewDatabaseError("unmarshal members", uerr)
		}
		for _, item := range items {
			members = append(members, itemToMember(item))
		}

		if out.LastEvaluatedKey == nil {
			break
		}
		lastKey = out.LastEvaluatedKey
	}

	return members, nil
}
