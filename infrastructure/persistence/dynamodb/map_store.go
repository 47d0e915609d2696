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
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/janaghoniem/Distributed-Mind-Mapping-Tool/domain/clock"
	"github.com/janaghoniem/Distributed-Mind-Mapping-Tool/domain/mindmap"
	pkgerrors "github.com/janaghoniem/Distributed-Mind-Mapping-Tool/pkg/errors"
)

func mapPK(mapID string) string   { return "MAP#" + mapID }
func nodeSK(nodeID string) string { return "NODE#" + nodeID }
func edgeSK(edgeID string) string { return "EDGE#" + edgeID }

const metaSK = "META"

type mapItem struct {
	PK          string            `dynamodbav:"PK"`
	SK          string            `dynamodbav:"SK"`
	EntityType  string            `dynamodbav:"EntityType"`
	MapID       string            `dynamodbav:"MapID"`
	Name        string            `dynamodbav:"Name"`
	Clock       map[string]uint64 `dynamodbav:"Clock,omitempty"`
	Version     int64             `dynamodbav:"Version"`
	Seq         int64             `dynamodbav:"Seq"`
	ActiveNodes int               `dynamodbav:"ActiveNodes"`
	ActiveEdges int               `dynamodbav:"ActiveEdges"`
	CreatedAt   string            `dynamodbav:"CreatedAt"`
	UpdatedAt   string            `dynamodbav:"UpdatedAt"`
}

type nodeItem struct {
	PK         string            `dynamodbav:"PK"`
	SK         string            `dynamodbav:"SK"`
	EntityType string            `dynamodbav:"EntityType"`
	NodeID     string            `dynamodbav:"NodeID"`
	MapID      string            `dynamodbav:"MapID"`
	Label      string            `dynamodbav:"Label"`
	X          float64           `dynamodbav:"X"`
	Y          float64           `dynamodbav:"Y"`
	Color      string            `dynamodbav:"Color,omitempty"`
	Shape      string            `dynamodbav:"Shape,omitempty"`
	Deleted    bool              `dynamodbav:"Deleted"`
	Version    int64             `dynamodbav:"Version"`
	UpdatedBy  string            `dynamodbav:"UpdatedBy"`
	Clock      map[string]uint64 `dynamodbav:"Clock,omitempty"`
	CreatedAt  string            `dynamodbav:"CreatedAt"`
	UpdatedAt  string            `dynamodbav:"UpdatedAt"`
}

type edgeItem struct {
	PK         string            `dynamodbav:"PK"`
	SK         string            `dynamodbav:"SK"`
	EntityType string            `dynamodbav:"EntityType"`
	EdgeID     string            `dynamodbav:"EdgeID"`
	MapID      string            `dynamodbav:"MapID"`
	SourceID   string            `dynamodbav:"SourceID"`
	TargetID   string            `dynamodbav:"TargetID"`
	Deleted    bool              `dynamodbav:"Deleted"`
	Version    int64             `dynamodbav:"Version"`
	UpdatedBy  string            `dynamodbav:"UpdatedBy"`
	Clock      map[string]uint64 `dynamodbav:"Clock,omitempty"`
	CreatedAt  string            `dynamodbav:"CreatedAt"`
	UpdatedAt  string            `dynamodbav:"UpdatedAt"`
}

// MapStore implements ports.MapRepository on the single table.
type MapStore struct {
	client  *dynamodb.Client
	table   string
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewMapStore creates a DynamoDB-backed map repository.
func NewMapStore(client *dynamodb.Client, table string, logger *zap.Logger) *MapStore {
	return &MapStore{
		client:  client,
		table:   table,
		breaker: newBreaker("dynamodb-maps", logger),
		logger:  logger,
	}
}

func (s *MapStore) getItem(ctx context.Context, pk, sk string) (map[string]types.AttributeValue, error) {
	out, err := s.breaker.Execute(func() (interface{}, error) {
		return s.client.GetItem(ctx, &dynamodb.GetItemInput{
			TableName: aws.String(s.table),
			Key: map[string]types.AttributeValue{
				"PK": &types.AttributeValueMemberS{Value: pk},
				"SK": &types.AttributeValueMemberS{Value: sk},
			},
			ConsistentRead: aws.Bool(true),
		})
	})
	if err != nil {
		return nil, err
	}
	return out.(*dynamodb.GetItemOutput).Item, nil
}

func (s *MapStore) putItem(ctx context.Context, item map[string]types.AttributeValue, condition *string) error {
	_, err := s.breaker.Execute(func() (interface{}, error) {
		return s.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:           aws.String(s.table),
			Item:                item,
			ConditionExpression: condition,
		})
	})
	return err
}

// CreateMap writes the META item, refusing to overwrite an existing map.
func (s *MapStore) CreateMap(ctx context.Context, m *mindmap.MindMap) error {
	item, err := attributevalue.MarshalMap(toMapItem(m))
	if err != nil {
		return pkgerrors.Wrap(err, "marshal map item")
	}
	err = s.putItem(ctx, item, aws.String("attribute_not_exists(PK)"))
	var cond *types.ConditionalCheckFailedException
	if errors.As(err, &cond) {
		return pkgerrors.NewConflict("map " + m.ID + " already exists")
	}
	if err != nil {
		return pkgerrors.Wrap(err, "put map item")
	}
	return nil
}

// GetMap loads the META item, or nil if the map is unknown.
func (s *MapStore) GetMap(ctx context.Context, mapID string) (*mindmap.MindMap, error) {
	raw, err := s.getItem(ctx, mapPK(mapID), metaSK)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "get map item")
	}
	if raw == nil {
		return nil, nil
	}
	var item mapItem
	if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
		return nil, pkgerrors.Wrap(err, "unmarshal map item")
	}
	return fromMapItem(&item), nil
}

// SaveMap replaces the META item, preserving the Seq counter managed by
// the operation log.
func (s *MapStore) SaveMap(ctx context.Context, m *mindmap.MindMap) error {
	update := expression.
		Set(expression.Name("Name"), expression.Value(m.Name)).
		Set(expression.Name("Clock"), expression.Value(map[string]uint64(m.Clock))).
		Set(expression.Name("Version"), expression.Value(m.Version)).
		Set(expression.Name("ActiveNodes"), expression.Value(m.Stats.ActiveNodes)).
		Set(expression.Name("ActiveEdges"), expression.Value(m.Stats.ActiveEdges)).
		Set(expression.Name("UpdatedAt"), expression.Value(m.UpdatedAt.Format(time.RFC3339Nano)))
	expr, err := expression.NewBuilder().WithUpdate(update).Build()
	if err != nil {
		return pkgerrors.Wrap(err, "build map update")
	}
	_, err = s.breaker.Execute(func() (interface{}, error) {
		return s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName: aws.String(s.table),
			Key: map[string]types.AttributeValue{
				"PK": &types.AttributeValueMemberS{Value: mapPK(m.ID)},
				"SK": &types.AttributeValueMemberS{Value: metaSK},
			},
			UpdateExpression:          expr.Update(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ConditionExpression:       aws.String("attribute_exists(PK)"),
		})
	})
	if err != nil {
		return pkgerrors.Wrap(err, "update map item")
	}
	return nil
}

// GetNode loads a node record, deleted or not, or nil if unknown.
func (s *MapStore) GetNode(ctx context.Context, mapID, nodeID string) (*mindmap.Node, error) {
	raw, err := s.getItem(ctx, mapPK(mapID), nodeSK(nodeID))
	if err != nil {
		return nil, pkgerrors.Wrap(err, "get node item")
	}
	if raw == nil {
		return nil, nil
	}
	var item nodeItem
	if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
		return nil, pkgerrors.Wrap(err, "unmarshal node item")
	}
	return fromNodeItem(&item), nil
}

// SaveNode replaces the node record.
func (s *MapStore) SaveNode(ctx context.Context, n *mindmap.Node) error {
	item, err := attributevalue.MarshalMap(toNodeItem(n))
	if err != nil {
		return pkgerrors.Wrap(err, "marshal node item")
	}
	if err := s.putItem(ctx, item, nil); err != nil {
		return pkgerrors.Wrap(err, "put node item")
	}
	return nil
}

// ActiveNodes queries all non-deleted nodes of the map.
func (s *MapStore) ActiveNodes(ctx context.Context, mapID string) ([]*mindmap.Node, error) {
	items, err := s.queryPrefix(ctx, mapID, "NODE#")
	if err != nil {
		return nil, pkgerrors.Wrap(err, "query nodes")
	}
	out := make([]*mindmap.Node, 0, len(items))
	for _, raw := range items {
		var item nodeItem
		if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
			return nil, pkgerrors.Wrap(err, "unmarshal node item")
		}
		if !item.Deleted {
			out = append(out, fromNodeItem(&item))
		}
	}
	return out, nil
}

// GetEdge loads an edge record, deleted or not, or nil if unknown.
func (s *MapStore) GetEdge(ctx context.Context, mapID, edgeID string) (*mindmap.Edge, error) {
	raw, err := s.getItem(ctx, mapPK(mapID), edgeSK(edgeID))
	if err != nil {
		return nil, pkgerrors.Wrap(err, "get edge item")
	}
	if raw == nil {
		return nil, nil
	}
	var item edgeItem
	if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
		return nil, pkgerrors.Wrap(err, "unmarshal edge item")
	}
	return fromEdgeItem(&item), nil
}

// SaveEdge replaces the edge record.
func (s *MapStore) SaveEdge(ctx context.Context, e *mindmap.Edge) error {
	item, err := attributevalue.MarshalMap(toEdgeItem(e))
	if err != nil {
		return pkgerrors.Wrap(err, "marshal edge item")
	}
	if err := s.putItem(ctx, item, nil); err != nil {
		return pkgerrors.Wrap(err, "put edge item")
	}
	return nil
}

// ActiveEdges queries all non-deleted edges of the map.
func (s *MapStore) ActiveEdges(ctx context.Context, mapID string) ([]*mindmap.Edge, error) {
	items, err := s.queryPrefix(ctx, mapID, "EDGE#")
	if err != nil {
		return nil, pkgerrors.Wrap(err, "query edges")
	}
	out := make([]*mindmap.Edge, 0, len(items))
	for _, raw := range items {
		var item edgeItem
		if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
			return nil, pkgerrors.Wrap(err, "unmarshal edge item")
		}
		if !item.Deleted {
			out = append(out, fromEdgeItem(&item))
		}
	}
	return out, nil
}

// ActiveEdgeBetween scans the map's active edges for the pair in either
// direction. Mind maps stay small enough that the per-map edge query is
// the unit of work everywhere in this store.
func (s *MapStore) ActiveEdgeBetween(ctx context.Context, mapID, a, b string) (*mindmap.Edge, error) {
	edges, err := s.ActiveEdges(ctx, mapID)
	if err != nil {
		return nil, err
	}
	for _, e := range edges {
		if e.Connects(a, b) {
			return e, nil
		}
	}
	return nil, nil
}

// IncidentActiveEdges returns the active edges touching the node.
func (s *MapStore) IncidentActiveEdges(ctx context.Context, mapID, nodeID string) ([]*mindmap.Edge, error) {
	edges, err := s.ActiveEdges(ctx, mapID)
	if err != nil {
		return nil, err
	}
	var out []*mindmap.Edge
	for _, e := range edges {
		if e.Touches(nodeID) {
			out = append(out, e)
		}
	}
	return out, nil
}

// queryPrefix pages through all items of the map partition whose sort
// key starts with the given prefix.
func (s *MapStore) queryPrefix(ctx context.Context, mapID, prefix string) ([]map[string]types.AttributeValue, error) {
	keyCond := expression.Key("PK").Equal(expression.Value(mapPK(mapID))).
		And(expression.Key("SK").BeginsWith(prefix))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var items []map[string]types.AttributeValue
	var startKey map[string]types.AttributeValue
	for {
		out, err := s.breaker.Execute(func() (interface{}, error) {
			return s.client.Query(ctx, &dynamodb.QueryInput{
				TableName:                 aws.String(s.table),
				KeyConditionExpression:    expr.KeyCondition(),
				ExpressionAttributeNames:  expr.Names(),
				ExpressionAttributeValues: expr.Values(),
				ExclusiveStartKey:         startKey,
				ConsistentRead:            aws.Bool(true),
			})
		})
		if err != nil {
			return nil, err
		}
		page := out.(*dynamodb.QueryOutput)
		items = append(items, page.Items...)
		if page.LastEvaluatedKey == nil {
			return items, nil
		}
		startKey = page.LastEvaluatedKey
	}
}

func toMapItem(m *mindmap.MindMap) *mapItem {
	return &mapItem{
		PK:          mapPK(m.ID),
		SK:          metaSK,
		EntityType:  "MAP",
		MapID:       m.ID,
		Name:        m.Name,
		Clock:       m.Clock,
		Version:     m.Version,
		ActiveNodes: m.Stats.ActiveNodes,
		ActiveEdges: m.Stats.ActiveEdges,
		CreatedAt:   m.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:   m.UpdatedAt.Format(time.RFC3339Nano),
	}
}

func fromMapItem(item *mapItem) *mindmap.MindMap {
	return &mindmap.MindMap{
		ID:      item.MapID,
		Name:    item.Name,
		Clock:   normalizeClock(item.Clock),
		Version: item.Version,
		Stats: mindmap.Stats{
			ActiveNodes: item.ActiveNodes,
			ActiveEdges: item.ActiveEdges,
		},
		CreatedAt: parseTime(item.CreatedAt),
		UpdatedAt: parseTime(item.UpdatedAt),
	}
}

func toNodeItem(n *mindmap.Node) *nodeItem {
	return &nodeItem{
		PK:         mapPK(n.MapID),
		SK:         nodeSK(n.ID),
		EntityType: "NODE",
		NodeID:     n.ID,
		MapID:      n.MapID,
		Label:      n.Label,
		X:          n.X,
		Y:          n.Y,
		Color:      n.Color,
		Shape:      string(n.Shape),
		Deleted:    n.Deleted,
		Version:    n.Version,
		UpdatedBy:  n.UpdatedBy,
		Clock:      n.Clock,
		CreatedAt:  n.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:  n.UpdatedAt.Format(time.RFC3339Nano),
	}
}

func fromNodeItem(item *nodeItem) *mindmap.Node {
	return &mindmap.Node{
		ID:        item.NodeID,
		MapID:     item.MapID,
		Label:     item.Label,
		X:         item.X,
		Y:         item.Y,
		Color:     item.Color,
		Shape:     mindmap.Shape(item.Shape),
		Deleted:   item.Deleted,
		Version:   item.Version,
		UpdatedBy: item.UpdatedBy,
		Clock:     normalizeClock(item.Clock),
		CreatedAt: parseTime(item.CreatedAt),
		UpdatedAt: parseTime(item.UpdatedAt),
	}
}

func toEdgeItem(e *mindmap.Edge) *edgeItem {
	return &edgeItem{
		PK:         mapPK(e.MapID),
		SK:         edgeSK(e.ID),
		EntityType: "EDGE",
		EdgeID:     e.ID,
		MapID:      e.MapID,
		SourceID:   e.SourceID,
		TargetID:   e.TargetID,
		Deleted:    e.Deleted,
		Version:    e.Version,
		UpdatedBy:  e.UpdatedBy,
		Clock:      e.Clock,
		CreatedAt:  e.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:  e.UpdatedAt.Format(time.RFC3339Nano),
	}
}

func fromEdgeItem(item *edgeItem) *mindmap.Edge {
	return &mindmap.Edge{
		ID:        item.EdgeID,
		MapID:     item.MapID,
		SourceID:  item.SourceID,
		TargetID:  item.TargetID,
		Deleted:   item.Deleted,
		Version:   item.Version,
		UpdatedBy: item.UpdatedBy,
		Clock:     normalizeClock(item.Clock),
		CreatedAt: parseTime(item.CreatedAt),
		UpdatedAt: parseTime(item.UpdatedAt),
	}
}

func normalizeClock(m map[string]uint64) clock.Clock {
	if m == nil {
		return clock.New()
	}
	return clock.Clock(m)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
