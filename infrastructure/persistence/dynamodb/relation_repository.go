package dynamodb

import (
	"context"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/heirloom-app/heirloom/domain/tree"
	apperrors "github.com/heirloom-app/heirloom/pkg/errors"
)

// transactBatchSize is DynamoDB's TransactWriteItems limit.
const transactBatchSize = 100

// RelationRepository implements ports.RelationRepository using DynamoDB.
// One relation item per child keeps SetParent a plain overwrite.
type RelationRepository struct {
	client    *dynamodb.Client
	tableName string
	logger    *zap.Logger
}

// NewRelationRepository creates a new RelationRepository
func NewRelationRepository(client *dynamodb.Client, tableName string, logger *zap.Logger) *RelationRepository {
	return &RelationRepository{client: client, tableName: tableName, logger: logger}
}

type relationItem struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	EntityType string `dynamodbav:"EntityType"`
	RelationID string `dynamodbav:"RelationID"`
	SpaceID    string `dynamodbav:"SpaceID"`
	ChildID    string `dynamodbav:"ChildID"`
	ParentID   string `dynamodbav:"ParentID"`
	HasParent  bool   `dynamodbav:"HasParent"`
	Seq        int64  `dynamodbav:"Seq"`
}

func relationToItem(rel tree.Relation, seq int64) relationItem {
	item := relationItem{
		PK:         spacePKPrefix + rel.SpaceID,
		SK:         relationSKPrefix + rel.ChildID,
		EntityType: "RELATION",
		RelationID: rel.ID,
		SpaceID:    rel.SpaceID,
		ChildID:    rel.ChildID,
		Seq:        seq,
	}
	if rel.ParentID != nil {
		item.ParentID = *rel.ParentID
		item.HasParent = true
	}
	return item
}

func itemToRelation(item relationItem) tree.Relation {
	rel := tree.Relation{
		ID:      item.RelationID,
		SpaceID: item.SpaceID,
		ChildID: item.ChildID,
	}
	if item.HasParent {
		p := item.ParentID
		rel.ParentID = &p
	}
	return rel
}

// SetParent writes the child's relation, replacing any existing one. The
// insertion sequence of a replaced relation is preserved so root ordering
// stays stable across re-parenting.
func (r *RelationRepository) SetParent(ctx context.Context, spaceID, childID string, parentID *string) error {
	rel := tree.Relation{SpaceID: spaceID, ChildID: childID, ParentID: parentID}

	seq := int64(0)
	existing, err := r.getByChild(ctx, spaceID, childID)
	if err != nil {
		return err
	}
	if existing != nil {
		seq = existing.Seq
		rel.ID = existing.RelationID
	} else {
		seq, err = r.nextSeq(ctx, spaceID)
		if err != nil {
			return err
		}
	}
	if rel.ID == "" {
		rel.ID = uuid.New().String()
	}

	item, err := attributevalue.MarshalMap(relationToItem(rel, seq))
	if err != nil {
		return apperrors.NewDatabaseError("marshal relation", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	if err != nil {
		r.logger.Error("Failed to write relation",
			zap.String("spaceID", rel.SpaceID),
			zap.String("childID", rel.ChildID),
			zap.Error(err),
		)
		return apperrors.NewDatabaseError("set parent", err)
	}
	return nil
}

// DeleteByChild removes the child's relation if one exists.
func (r *RelationRepository) DeleteByChild(ctx context.Context, spaceID, childID string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: spacePKPrefix + spaceID},
			"SK": &types.AttributeValueMemberS{Value: relationSKPrefix + childID},
		},
	})
	if err != nil {
		return apperrors.NewDatabaseError("delete relation", err)
	}
	return nil
}

// ListBySpace returns all relations of a space in insertion order.
func (r *RelationRepository) ListBySpace(ctx context.Context, spaceID string) ([]tree.Relation, error) {
	items, err := r.queryRelations(ctx, spaceID)
	if err != nil {
		return nil, err
	}

	// Query returns SK order; re-sort by insertion sequence.
	sort.SliceStable(items, func(i, j int) bool { return items[i].Seq < items[j].Seq })

	relations := make([]tree.Relation, 0, len(items))
	for _, item := range items {
		relations = append(relations, itemToRelation(item))
	}
	return relations, nil
}

// ReplaceAll swaps the space's relation set for the given one, used by
// version recovery. Deletes and writes run in transaction chunks.
func (r *RelationRepository) ReplaceAll(ctx context.Context, spaceID string, relations []tree.Relation) error {
	existing, err := r.queryRelations(ctx, spaceID)
	if err != nil {
		return err
	}

	var writes []types.TransactWriteItem
	replaced := make(map[string]bool, len(relations))
	for i, rel := range relations {
		rel.SpaceID = spaceID
		if rel.ID == "" {
			rel.ID = uuid.New().String()
		}
		replaced[rel.ChildID] = true
		item, merr := attributevalue.MarshalMap(relationToItem(rel, int64(i)))
		if merr != nil {
			return apperrors.NewDatabaseError("marshal relation", merr)
		}
		writes = append(writes, types.TransactWriteItem{
			Put: &types.Put{TableName: aws.String(r.tableName), Item: item},
		})
	}
	for _, item := range existing {
		if replaced[item.ChildID] {
			continue
		}
		writes = append(writes, types.TransactWriteItem{
			Delete: &types.Delete{
				TableName: aws.String(r.tableName),
				Key: map[string]types.AttributeValue{
					"PK": &types.AttributeValueMemberS{Value: item.PK},
					"SK": &types.AttributeValueMemberS{Value: item.SK},
				},
			},
		})
	}

	for start := 0; start < len(writes); start += transactBatchSize {
		end := start + transactBatchSize
		if end > len(writes) {
			end = len(writes)
		}
		_, err := r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
			TransactItems: writes[start:end],
		})
		if err != nil {
			return apperrors.NewDatabaseError("replace relations", err)
		}
	}
	return nil
}

func (r *RelationRepository) getByChild(ctx context.Context, spaceID, childID string) (*relationItem, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: spacePKPrefix + spaceID},
			"SK": &types.AttributeValueMemberS{Value: relationSKPrefix + childID},
		},
	})
	if err != nil {
		return nil, apperrors.NewDatabaseError("get relation", err)
	}
	if out.Item == nil {
		return nil, nil
	}
	var item relationItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, apperrors.NewDatabaseError("unmarshal relation", err)
	}
	return &item, nil
}

func (r *RelationRepository) nextSeq(ctx context.Context, spaceID string) (int64, error) {
	items, err := r.queryRelations(ctx, spaceID)
	if err != nil {
		return 0, err
	}
	var max int64 = -1
	for _, item := range items {
		if item.Seq > max {
			max = item.Seq
		}
	}
	return max + 1, nil
}

func (r *RelationRepository) queryRelations(ctx context.Context, spaceID string) ([]relationItem, error) {
	keyCond := expression.Key("PK").Equal(expression.Value(spacePKPrefix + spaceID)).
		And(expression.Key("SK").BeginsWith(relationSKPrefix))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, apperrors.NewDatabaseError("build query", err)
	}

	var items []relationItem
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
			return nil, apperrors.NewDatabaseError("list relations", qerr)
		}

		var page []relationItem
		if uerr := attributevalue.UnmarshalListOfMaps(out.Items, &page); uerr != nil {
			return nil, apperrors.NewDatabaseError("unmarshal relations", uerr)
		}
		items = append(items, page...)

		if out.LastEvaluatedKey == nil {
			break
		}
		lastKey = out.LastEvaluatedKey
	}
	return items, nil
}
