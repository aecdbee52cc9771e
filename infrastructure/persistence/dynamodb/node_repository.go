// Package dynamodb stores idea nodes in a single DynamoDB table keyed by
// PK=IDEA#<ideaID>, SK=NODE#<nodeID>.
package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/woragis/woragis-sub002/application/ports"
	"github.com/woragis/woragis-sub002/domain/core/entities"
	"github.com/woragis/woragis-sub002/domain/core/graph"
	"github.com/woragis/woragis-sub002/domain/core/valueobjects"
	pkgerrors "github.com/woragis/woragis-sub002/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"
)

const (
	entityTypeNode = "NODE"
	ideaKeyPrefix  = "IDEA#"
	nodeKeyPrefix  = "NODE#"

	// DynamoDB caps a transaction at 100 items: the delete plus 99 scrubs.
	maxTransactItems = 100
	maxScrubAttempts = 3

	// Fixed width so that lexical order of stored timestamps is
	// chronological.
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// API is the subset of the DynamoDB client used by the repository.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

var (
	_ ports.NodeRepository = (*NodeRepository)(nil)
	_ ports.HealthChecker  = (*NodeRepository)(nil)
	_ API                  = (*dynamodb.Client)(nil)
)

// nodeItem is the DynamoDB item for an idea node. Connections is stored as
// a list, not a string set, to keep order and duplicates.
type nodeItem struct {
	PK          string   `dynamodbav:"PK"`
	SK          string   `dynamodbav:"SK"`
	EntityType  string   `dynamodbav:"EntityType"`
	NodeID      string   `dynamodbav:"NodeID"`
	IdeaID      string   `dynamodbav:"IdeaID"`
	Title       string   `dynamodbav:"Title"`
	Content     string   `dynamodbav:"Content"`
	Type        string   `dynamodbav:"Type"`
	PositionX   float64  `dynamodbav:"PositionX"`
	PositionY   float64  `dynamodbav:"PositionY"`
	Width       float64  `dynamodbav:"Width"`
	Height      float64  `dynamodbav:"Height"`
	Color       *string  `dynamodbav:"Color,omitempty"`
	Connections []string `dynamodbav:"Connections"`
	Visible     bool     `dynamodbav:"Visible"`
	Version     int      `dynamodbav:"Version"`
	CreatedAt   string   `dynamodbav:"CreatedAt"`
	UpdatedAt   string   `dynamodbav:"UpdatedAt"`
}

func ideaKey(ideaID string) string { return ideaKeyPrefix + ideaID }
func nodeKey(nodeID string) string { return nodeKeyPrefix + nodeID }

func toItem(s entities.NodeSnapshot) nodeItem {
	conns := s.Connections
	if conns == nil {
		conns = []string{}
	}
	return nodeItem{
		PK:          ideaKey(s.IdeaID),
		SK:          nodeKey(s.ID),
		EntityType:  entityTypeNode,
		NodeID:      s.ID,
		IdeaID:      s.IdeaID,
		Title:       s.Title,
		Content:     s.Content,
		Type:        s.Type,
		PositionX:   s.PositionX,
		PositionY:   s.PositionY,
		Width:       s.Width,
		Height:      s.Height,
		Color:       s.Color,
		Connections: conns,
		Visible:     s.Visible,
		Version:     s.Version,
		CreatedAt:   s.CreatedAt.UTC().Format(timeLayout),
		UpdatedAt:   s.UpdatedAt.UTC().Format(timeLayout),
	}
}

func (item nodeItem) toEntity() (*entities.IdeaNode, error) {
	createdAt, err := time.Parse(timeLayout, item.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CreatedAt of node %s: %w", item.NodeID, err)
	}
	updatedAt, err := time.Parse(timeLayout, item.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse UpdatedAt of node %s: %w", item.NodeID, err)
	}
	return entities.ReconstructIdeaNode(entities.NodeSnapshot{
		ID:          item.NodeID,
		IdeaID:      item.IdeaID,
		Title:       item.Title,
		Content:     item.Content,
		Type:        item.Type,
		PositionX:   item.PositionX,
		PositionY:   item.PositionY,
		Width:       item.Width,
		Height:      item.Height,
		Color:       item.Color,
		Connections: item.Connections,
		Visible:     item.Visible,
		Version:     item.Version,
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	})
}

// NodeRepository implements ports.NodeRepository on DynamoDB.
type NodeRepository struct {
	client    API
	tableName string
	logger    *zap.Logger
}

// NewNodeRepository creates a repository on tableName.
func NewNodeRepository(client API, tableName string, logger *zap.Logger) *NodeRepository {
	return &NodeRepository{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

func (r *NodeRepository) Save(ctx context.Context, node *entities.IdeaNode) error {
	item := toItem(node.Snapshot())
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal node: %w", err)
	}

	expr, err := saveCondition(node.PersistedVersion())
	if err != nil {
		return fmt.Errorf("failed to build save condition: %w", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                           aws.String(r.tableName),
		Item:                                av,
		ConditionExpression:                 expr.Condition(),
		ExpressionAttributeNames:            expr.Names(),
		ExpressionAttributeValues:           expr.Values(),
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return r.conditionFailure(node.PersistedVersion(), ccf.Item)
		}
		r.logger.Error("Failed to save node",
			zap.String("node_id", item.NodeID),
			zap.String("idea_id", item.IdeaID),
			zap.Error(err),
		)
		return storeError("put node", err)
	}

	node.MarkPersisted()
	return nil
}

// saveCondition requires absence for new nodes and an unchanged stored
// version for existing ones.
func saveCondition(persistedVersion int) (expression.Expression, error) {
	var cond expression.ConditionBuilder
	if persistedVersion == 0 {
		cond = expression.AttributeNotExists(expression.Name("PK"))
	} else {
		cond = expression.Name("Version").Equal(expression.Value(persistedVersion))
	}
	return expression.NewBuilder().WithCondition(cond).Build()
}

func (r *NodeRepository) conditionFailure(persistedVersion int, old map[string]types.AttributeValue) error {
	if persistedVersion == 0 {
		return pkgerrors.NewConflictError("node already exists").WithCode(pkgerrors.CodeAlreadyExists)
	}
	if len(old) == 0 {
		return pkgerrors.NewNotFoundError("node")
	}
	var current struct {
		Version int `dynamodbav:"Version"`
	}
	if err := attributevalue.UnmarshalMap(old, &current); err != nil {
		return pkgerrors.NewVersionConflictError("node", persistedVersion, 0)
	}
	return pkgerrors.NewVersionConflictError("node", persistedVersion, current.Version)
}

func (r *NodeRepository) GetByID(ctx context.Context, ideaID valueobjects.IdeaID, id valueobjects.NodeID) (*entities.IdeaNode, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            keyOf(ideaID.String(), id.String()),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, storeError("get node", err)
	}
	if len(result.Item) == 0 {
		return nil, pkgerrors.NewNotFoundError("node")
	}

	var item nodeItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal node: %w", err)
	}
	return item.toEntity()
}

func (r *NodeRepository) ListByIdea(ctx context.Context, ideaID valueobjects.IdeaID) ([]*entities.IdeaNode, error) {
	items, err := r.queryIdea(ctx, ideaID.String())
	if err != nil {
		return nil, err
	}
	nodes := make([]*entities.IdeaNode, 0, len(items))
	for _, item := range items {
		node, err := item.toEntity()
		if err != nil {
			r.logger.Warn("Skipping unreadable node item",
				zap.String("idea_id", ideaID.String()),
				zap.String("node_id", item.NodeID),
				zap.Error(err),
			)
			continue
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

func (r *NodeRepository) CountByIdea(ctx context.Context, ideaID valueobjects.IdeaID) (int, error) {
	expr, err := ideaKeyCondition(ideaID.String())
	if err != nil {
		return 0, fmt.Errorf("failed to build key condition: %w", err)
	}

	paginator := dynamodb.NewQueryPaginator(r.client, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		Select:                    types.SelectCount,
	})
	total := 0
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, storeError("count nodes", err)
		}
		total += int(page.Count)
	}
	return total, nil
}

// deleteCondition requires the item to exist and, for a non-zero
// expectedVersion, to still carry that version.
func deleteCondition(expectedVersion int) (expression.Expression, error) {
	cond := expression.AttributeExists(expression.Name("PK"))
	if expectedVersion != 0 {
		cond = cond.And(expression.Name("Version").Equal(expression.Value(expectedVersion)))
	}
	return expression.NewBuilder().WithCondition(cond).Build()
}

func (r *NodeRepository) Delete(ctx context.Context, ideaID valueobjects.IdeaID, id valueobjects.NodeID, expectedVersion int) error {
	expr, err := deleteCondition(expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to build delete condition: %w", err)
	}

	_, err = r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                           aws.String(r.tableName),
		Key:                                 keyOf(ideaID.String(), id.String()),
		ConditionExpression:                 expr.Condition(),
		ExpressionAttributeNames:            expr.Names(),
		ExpressionAttributeValues:           expr.Values(),
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			if expectedVersion == 0 {
				return pkgerrors.NewNotFoundError("node")
			}
			return r.conditionFailure(expectedVersion, ccf.Item)
		}
		return storeError("delete node", err)
	}
	return nil
}

// errScrubRace marks a scrub transaction cancelled by a concurrent write.
var errScrubRace = errors.New("scrub raced a concurrent write")

// DeleteAndScrub deletes the node and rewrites every sibling that
// references it in one TransactWriteItems call. The delete and each
// sibling write are conditional on the version read, so a concurrent edit
// cancels the whole transaction; the operation is then re-read and retried.
func (r *NodeRepository) DeleteAndScrub(ctx context.Context, ideaID valueobjects.IdeaID, id valueobjects.NodeID, expectedVersion int) ([]*entities.IdeaNode, error) {
	for attempt := 0; attempt < maxScrubAttempts; attempt++ {
		scrubbed, err := r.deleteAndScrubOnce(ctx, ideaID, id, expectedVersion)
		if err == nil {
			return scrubbed, nil
		}
		if !errors.Is(err, errScrubRace) {
			return nil, err
		}
		r.logger.Debug("Retrying delete scrub after concurrent write",
			zap.String("node_id", id.String()),
			zap.Int("attempt", attempt+1),
		)
	}
	return nil, pkgerrors.NewConflictError("referencing node changed during scrub").
		WithCode(pkgerrors.CodeVersionMismatch)
}

func (r *NodeRepository) deleteAndScrubOnce(ctx context.Context, ideaID valueobjects.IdeaID, id valueobjects.NodeID, expectedVersion int) ([]*entities.IdeaNode, error) {
	nodes, err := r.ListByIdea(ctx, ideaID)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*entities.IdeaNode, len(nodes))
	vertices := make([]graph.Vertex, 0, len(nodes))
	for _, n := range nodes {
		byID[n.ID().String()] = n
		vertices = append(vertices, n.Vertex())
	}
	target, ok := byID[id.String()]
	if !ok {
		return nil, pkgerrors.NewNotFoundError("node")
	}
	if expectedVersion != 0 && target.Version() != expectedVersion {
		return nil, pkgerrors.NewVersionConflictError("node", expectedVersion, target.Version())
	}

	var scrubbed []*entities.IdeaNode
	for _, source := range graph.IncomingIndex(vertices)[id.String()] {
		if source == id.String() {
			continue
		}
		sibling := byID[source]
		if sibling.RemoveConnectionsTo(id) {
			scrubbed = append(scrubbed, sibling)
		}
	}
	if len(scrubbed)+1 > maxTransactItems {
		return nil, pkgerrors.NewConflictError("too many referencing nodes to scrub in one transaction").
			WithDetail("referencing_nodes", len(scrubbed))
	}

	writes, err := r.scrubWrites(ideaID, target, scrubbed)
	if err != nil {
		return nil, err
	}
	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: writes})
	if err != nil {
		var canceled *types.TransactionCanceledException
		if errors.As(err, &canceled) {
			// The next read tells a deleted target from a changed one.
			return nil, errScrubRace
		}
		return nil, storeError("delete and scrub", err)
	}

	for _, sibling := range scrubbed {
		sibling.MarkPersisted()
	}
	r.logger.Info("Deleted node and scrubbed references",
		zap.String("idea_id", ideaID.String()),
		zap.String("node_id", id.String()),
		zap.Int("scrubbed", len(scrubbed)),
	)
	return scrubbed, nil
}

// scrubWrites builds the delete of the target first, followed by one
// conditional put per rewritten sibling.
func (r *NodeRepository) scrubWrites(ideaID valueobjects.IdeaID, target *entities.IdeaNode, scrubbed []*entities.IdeaNode) ([]types.TransactWriteItem, error) {
	existsExpr, err := deleteCondition(target.Version())
	if err != nil {
		return nil, fmt.Errorf("failed to build delete condition: %w", err)
	}

	writes := make([]types.TransactWriteItem, 0, len(scrubbed)+1)
	writes = append(writes, types.TransactWriteItem{
		Delete: &types.Delete{
			TableName:                 aws.String(r.tableName),
			Key:                       keyOf(ideaID.String(), target.ID().String()),
			ConditionExpression:       existsExpr.Condition(),
			ExpressionAttributeNames:  existsExpr.Names(),
			ExpressionAttributeValues: existsExpr.Values(),
		},
	})

	for _, sibling := range scrubbed {
		av, err := attributevalue.MarshalMap(toItem(sibling.Snapshot()))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal node: %w", err)
		}
		expr, err := saveCondition(sibling.PersistedVersion())
		if err != nil {
			return nil, fmt.Errorf("failed to build save condition: %w", err)
		}
		writes = append(writes, types.TransactWriteItem{
			Put: &types.Put{
				TableName:                 aws.String(r.tableName),
				Item:                      av,
				ConditionExpression:       expr.Condition(),
				ExpressionAttributeNames:  expr.Names(),
				ExpressionAttributeValues: expr.Values(),
			},
		})
	}
	return writes, nil
}

// throttlingCodes are API error codes that mean "try again later" rather
// than a broken request.
var throttlingCodes = map[string]struct{}{
	"ProvisionedThroughputExceededException": {},
	"RequestLimitExceeded":                   {},
	"ThrottlingException":                    {},
	"ServiceUnavailable":                     {},
}

// storeError maps an SDK failure to the error taxonomy. Throttling is
// reported as unavailable, everything else as a database error.
func storeError(operation string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if _, ok := throttlingCodes[apiErr.ErrorCode()]; ok {
			return pkgerrors.NewUnavailableError("dynamodb").
				WithCause(err).
				WithDetail("operation", operation).
				WithDetail("error_code", apiErr.ErrorCode())
		}
	}
	return pkgerrors.NewDatabaseError(operation, err)
}

// Ping checks that the table is reachable.
func (r *NodeRepository) Ping(ctx context.Context) error {
	_, err := r.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(r.tableName)})
	if err != nil {
		return pkgerrors.NewUnavailableError("dynamodb").WithCause(err)
	}
	return nil
}

func (r *NodeRepository) queryIdea(ctx context.Context, ideaID string) ([]nodeItem, error) {
	expr, err := ideaKeyCondition(ideaID)
	if err != nil {
		return nil, fmt.Errorf("failed to build key condition: %w", err)
	}

	paginator := dynamodb.NewQueryPaginator(r.client, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ConsistentRead:            aws.Bool(true),
	})

	var items []nodeItem
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, storeError("query nodes", err)
		}
		var pageItems []nodeItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &pageItems); err != nil {
			return nil, fmt.Errorf("failed to unmarshal nodes: %w", err)
		}
		items = append(items, pageItems...)
	}

	// Sort keys are random UUIDs; creation time restores insertion order.
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].CreatedAt != items[j].CreatedAt {
			return items[i].CreatedAt < items[j].CreatedAt
		}
		return strings.Compare(items[i].NodeID, items[j].NodeID) < 0
	})
	return items, nil
}

func ideaKeyCondition(ideaID string) (expression.Expression, error) {
	keyCond := expression.Key("PK").Equal(expression.Value(ideaKey(ideaID))).
		And(expression.Key("SK").BeginsWith(nodeKeyPrefix))
	return expression.NewBuilder().WithKeyCondition(keyCond).Build()
}

func keyOf(ideaID, nodeID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: ideaKey(ideaID)},
		"SK": &types.AttributeValueMemberS{Value: nodeKey(nodeID)},
	}
}
