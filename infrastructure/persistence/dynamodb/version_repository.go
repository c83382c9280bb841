package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"time"

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

// createRetries bounds optimistic retries when two saves race for the same
// version number.
const createRetries = 3

// VersionRepository implements ports.VersionRepository using DynamoDB.
// The zero-padded version number in the sort key gives lexicographic order
// equal to numeric order, and GSI1 resolves lookups by version id.
type VersionRepository struct {
	client    *dynamodb.Client
	tableName string
	indexName string
	logger    *zap.Logger
}

// NewVersionRepository creates a new VersionRepository
func NewVersionRepository(client *dynamodb.Client, tableName, indexName string, logger *zap.Logger) *VersionRepository {
	return &VersionRepository{client: client, tableName: tableName, indexName: indexName, logger: logger}
}

type versionItem struct {
	PK             string             `dynamodbav:"PK"`
	SK             string             `dynamodbav:"SK"`
	GSI1PK         string             `dynamodbav:"GSI1PK"`
	GSI1SK         string             `dynamodbav:"GSI1SK"`
	EntityType     string             `dynamodbav:"EntityType"`
	VersionID      string             `dynamodbav:"VersionID"`
	SpaceID        string             `dynamodbav:"SpaceID"`
	Version        int                `dynamodbav:"Version"`
	CreatedAt      string             `dynamodbav:"CreatedAt"`
	CreatedBy      string             `dynamodbav:"CreatedBy,omitempty"`
	Relations      []relationSnapshot `dynamodbav:"Relations"`
	RelationsCount int                `dynamodbav:"RelationsCount"`
}

type relationSnapshot struct {
	RelationID string `dynamodbav:"RelationID"`
	ChildID    string `dynamodbav:"ChildID"`
	ParentID   string `dynamodbav:"ParentID,omitempty"`
	HasParent  bool   `dynamodbav:"HasParent"`
}

func versionSK(number int) string {
	return fmt.Sprintf("%s%010d", versionSKPrefix, number)
}

func versionToItem(v *tree.Version) versionItem {
	item := versionItem{
		PK:             spacePKPrefix + v.SpaceID,
		SK:             versionSK(v.Version),
		GSI1PK:         versionIDPrefix + v.ID,
		GSI1SK:         metadataSK,
		EntityType:     "VERSION",
		VersionID:      v.ID,
		SpaceID:        v.SpaceID,
		Version:        v.Version,
		CreatedAt:      v.CreatedAt.UTC().Format(time.RFC3339),
		CreatedBy:      v.CreatedBy,
		Relations:      make([]relationSnapshot, 0, len(v.Relations)),
		RelationsCount: v.RelationsCount,
	}
	for _, rel := range v.Relations {
		snap := relationSnapshot{RelationID: rel.ID, ChildID: rel.ChildID}
		if rel.ParentID != nil {
			snap.ParentID = *rel.ParentID
			snap.HasParent = true
		}
		item.Relations = append(item.Relations, snap)
	}
	return item
}

func itemToVersion(item versionItem) *tree.Version {
	v := &tree.Version{
		ID:             item.VersionID,
		SpaceID:        item.SpaceID,
		Version:        item.Version,
		CreatedBy:      item.CreatedBy,
		Relations:      make([]tree.Relation, 0, len(item.Relations)),
		RelationsCount: item.RelationsCount,
	}
	if t, err := time.Parse(time.RFC3339, item.CreatedAt); err == nil {
		v.CreatedAt = t
	}
	for _, snap := range item.Relations {
		rel := tree.Relation{ID: snap.RelationID, SpaceID: item.SpaceID, ChildID: snap.ChildID}
		if snap.HasParent {
			p := snap.ParentID
			rel.ParentID = &p
		}
		v.Relations = append(v.Relations, rel)
	}
	return v
}

// Create stores the snapshot with the next monotonic version number for the
// space. A conditional put on the sort key detects a concurrent save, in
// which case the number is re-read and the write retried.
func (r *VersionRepository) Create(ctx context.Context, v *tree.Version) (*tree.Version, error) {
	for attempt := 0; attempt < createRetries; attempt++ {
		last, err := r.lastVersionNumber(ctx, v.SpaceID)
		if err != nil {
			return nil, err
		}

		stored := *v
		stored.ID = uuid.New().String()
		stored.Version = last + 1

		item, merr := attributevalue.MarshalMap(versionToItem(&stored))
		if merr != nil {
			return nil, apperrors.NewDatabaseError("marshal version", merr)
		}

		_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:           aws.String(r.tableName),
			Item:                item,
			ConditionExpression: aws.String("attribute_not_exists(SK)"),
		})
		if err != nil {
			var failed *types.ConditionalCheckFailedException
			if errors.As(err, &failed) {
				r.logger.Debug("Version number collision, retrying",
					zap.String("spaceID", v.SpaceID),
					zap.Int("version", stored.Version),
				)
				continue
			}
			return nil, apperrors.NewDatabaseError("create version", err)
		}

		return &stored, nil
	}
	return nil, apperrors.NewDatabaseError("create version", fmt.Errorf("version number contention after %d attempts", createRetries))
}

// GetByID resolves a version through the id index and loads the full item.
func (r *VersionRepository) GetByID(ctx context.Context, versionID string) (*tree.Version, error) {
	keyCond := expression.Key("GSI1PK").Equal(expression.Value(versionIDPrefix + versionID))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, apperrors.NewDatabaseError("build query", err)
	}

	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(r.indexName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		Limit:                     aws.Int32(1),
	})
	if err != nil {
		return nil, apperrors.NewDatabaseError("get version", err)
	}
	if len(out.Items) == 0 {
		return nil, apperrors.NewNotFoundError("version")
	}

	var item versionItem
	if err := attributevalue.UnmarshalMap(out.Items[0], &item); err != nil {
		return nil, apperrors.NewDatabaseError("unmarshal version", err)
	}
	return itemToVersion(item), nil
}

// ListBySpace returns the space's versions newest first.
func (r *VersionRepository) ListBySpace(ctx context.Context, spaceID string) ([]*tree.Version, error) {
	keyCond := expression.Key("PK").Equal(expression.Value(spacePKPrefix + spaceID)).
		And(expression.Key("SK").BeginsWith(versionSKPrefix))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, apperrors.NewDatabaseError("build query", err)
	}

	var versions []*tree.Version
	var lastKey map[string]types.AttributeValue
	for {
		out, qerr := r.client.Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String(r.tableName),
			KeyConditionExpression:    expr.KeyCondition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ScanIndexForward:          aws.Bool(false),
			ExclusiveStartKey:         lastKey,
		})
		if qerr != nil {
			return nil, apperrors.NewDatabaseError("list versions", qerr)
		}

		var items []versionItem
		if uerr := attributevalue.UnmarshalListOfMaps(out.Items, &items); uerr != nil {
			return nil, apperrors.NewDatabaseError("unmarshal versions", uerr)
		}
		for _, item := range items {
			versions = append(versions, itemToVersion(item))
		}

		if out.LastEvaluatedKey == nil {
			break
		}
		lastKey = out.LastEvaluatedKey
	}
	return versions, nil
}

// SetActive points the space at a version.
func (r *VersionRepository) SetActive(ctx context.Context, spaceID, versionID string) error {
	if _, err := r.GetByID(ctx, versionID); err != nil {
		return err
	}

	item, err := attributevalue.MarshalMap(map[string]string{
		"PK":              spacePKPrefix + spaceID,
		"SK":              treeStateSK,
		"EntityType":      "TREESTATE",
		"ActiveVersionID": versionID,
		"UpdatedAt":       time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return apperrors.NewDatabaseError("marshal tree state", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	if err != nil {
		return apperrors.NewDatabaseError("set active version", err)
	}
	return nil
}

// GetActive returns the space's active version id.
func (r *VersionRepository) GetActive(ctx context.Context, spaceID string) (string, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: spacePKPrefix + spaceID},
			"SK": &types.AttributeValueMemberS{Value: treeStateSK},
		},
	})
	if err != nil {
		return "", apperrors.NewDatabaseError("get tree state", err)
	}
	if out.Item == nil {
		return "", apperrors.NewNotFoundError("active version")
	}

	var state struct {
		ActiveVersionID string `dynamodbav:"ActiveVersionID"`
	}
	if err := attributevalue.UnmarshalMap(out.Item, &state); err != nil {
		return "", apperrors.NewDatabaseError("unmarshal tree state", err)
	}
	return state.ActiveVersionID, nil
}

func (r *VersionRepository) lastVersionNumber(ctx context.Context, spaceID string) (int, error) {
	keyCond := expression.Key("PK").Equal(expression.Value(spacePKPrefix + spaceID)).
		And(expression.Key("SK").BeginsWith(versionSKPrefix))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return 0, apperrors.NewDatabaseError("build query", err)
	}

	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(false),
		Limit:                     aws.Int32(1),
	})
	if err != nil {
		return 0, apperrors.NewDatabaseError("query last version", err)
	}
	if len(out.Items) == 0 {
		return 0, nil
	}

	var item versionItem
	if err := attributevalue.UnmarshalMap(out.Items[0], &item); err != nil {
		return 0, apperrors.NewDatabaseError("unmarshal version", err)
	}
	return item.Version, nil
}
