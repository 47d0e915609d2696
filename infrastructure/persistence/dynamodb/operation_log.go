package dynamodb

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/janaghoniem/Distributed-Mind-Mapping-Tool/domain/mindmap"
	pkgerrors "github.com/janaghoniem/Distributed-Mind-Mapping-Tool/pkg/errors"
)

func opSK(seq int64) string { return fmt.Sprintf("OP#%020d", seq) }

type snapshotItem struct {
	Node            *mindmap.NodeState `dynamodbav:"Node,omitempty"`
	Edge            *mindmap.EdgeState `dynamodbav:"Edge,omitempty"`
	CascadedEdgeIDs []string           `dynamodbav:"CascadedEdgeIds,omitempty"`
}

type opItem struct {
	PK          string            `dynamodbav:"PK"`
	SK          string            `dynamodbav:"SK"`
	EntityType  string            `dynamodbav:"EntityType"`
	OperationID string            `dynamodbav:"OperationID"`
	MapID       string            `dynamodbav:"MapID"`
	Seq         int64             `dynamodbav:"Seq"`
	OpType      string            `dynamodbav:"OpType"`
	TargetID    string            `dynamodbav:"TargetID"`
	ClientID    string            `dynamodbav:"ClientID"`
	Clock       map[string]uint64 `dynamodbav:"Clock,omitempty"`
	Previous    *snapshotItem     `dynamodbav:"Previous,omitempty"`
	Status      string            `dynamodbav:"Status"`
	Conflict    bool              `dynamodbav:"Conflict"`
	AppliedAt   string            `dynamodbav:"AppliedAt"`
}

// OperationLog implements ports.OperationLog on the single table. The
// per-map sequence counter lives on the META item and is advanced with
// an atomic ADD, so concurrent appenders can never observe the same
// value.
type OperationLog struct {
	client  *dynamodb.Client
	table   string
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewOperationLog creates a DynamoDB-backed journal.
func NewOperationLog(client *dynamodb.Client, table string, logger *zap.Logger) *OperationLog {
	return &OperationLog{
		client:  client,
		table:   table,
		breaker: newBreaker("dynamodb-journal", logger),
		logger:  logger,
	}
}

// Append reserves the map's next sequence number and writes the journal
// item under it.
func (l *OperationLog) Append(ctx context.Context, rec *mindmap.Record) error {
	seq, err := l.nextSeq(ctx, rec.MapID)
	if err != nil {
		return pkgerrors.Wrap(err, "reserve sequence")
	}
	rec.Seq = seq

	item, err := attributevalue.MarshalMap(toOpItem(rec))
	if err != nil {
		return pkgerrors.Wrap(err, "marshal journal item")
	}
	_, err = l.breaker.Execute(func() (interface{}, error) {
		return l.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:           aws.String(l.table),
			Item:                item,
			ConditionExpression: aws.String("attribute_not_exists(PK)"),
		})
	})
	if err != nil {
		return pkgerrors.Wrap(err, "put journal item")
	}
	return nil
}

func (l *OperationLog) nextSeq(ctx context.Context, mapID string) (int64, error) {
	out, err := l.breaker.Execute(func() (interface{}, error) {
		return l.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName: aws.String(l.table),
			Key: map[string]types.AttributeValue{
				"PK": &types.AttributeValueMemberS{Value: mapPK(mapID)},
				"SK": &types.AttributeValueMemberS{Value: metaSK},
			},
			UpdateExpression: aws.String("ADD Seq :one"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":one": &types.AttributeValueMemberN{Value: "1"},
			},
			ConditionExpression: aws.String("attribute_exists(PK)"),
			ReturnValues:        types.ReturnValueUpdatedNew,
		})
	})
	if err != nil {
		return 0, err
	}
	var updated struct {
		Seq int64 `dynamodbav:"Seq"`
	}
	if err := attributevalue.UnmarshalMap(out.(*dynamodb.UpdateItemOutput).Attributes, &updated); err != nil {
		return 0, err
	}
	return updated.Seq, nil
}

// GetByID looks the record up through the OperationIndex GSI.
func (l *OperationLog) GetByID(ctx context.Context, operationID string) (*mindmap.Record, error) {
	keyCond := expression.Key("OperationID").Equal(expression.Value(operationID))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "build query")
	}
	out, err := l.breaker.Execute(func() (interface{}, error) {
		return l.client.Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String(l.table),
			IndexName:                 aws.String(OperationIndexName),
			KeyConditionExpression:    expr.KeyCondition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			Limit:                     aws.Int32(1),
		})
	})
	if err != nil {
		return nil, pkgerrors.Wrap(err, "query operation index")
	}
	items := out.(*dynamodb.QueryOutput).Items
	if len(items) == 0 {
		return nil, nil
	}
	return unmarshalOp(items[0])
}

// ListSince queries applied journal items with seq > sinceSeq, ascending.
func (l *OperationLog) ListSince(ctx context.Context, mapID string, sinceSeq int64) ([]*mindmap.Record, error) {
	keyCond := expression.Key("PK").Equal(expression.Value(mapPK(mapID))).
		And(expression.Key("SK").GreaterThan(expression.Value(opSK(sinceSeq))))
	filter := expression.Name("Status").Equal(expression.Value(string(mindmap.StatusApplied)))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).WithFilter(filter).Build()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "build query")
	}
	return l.queryRecords(ctx, expr, nil, true)
}

// ListByMap returns up to limit records newest-first.
func (l *OperationLog) ListByMap(ctx context.Context, mapID string, limit int, beforeSeq int64) ([]*mindmap.Record, error) {
	skCond := expression.Key("SK").BeginsWith("OP#")
	if beforeSeq > 0 {
		skCond = expression.Key("SK").Between(expression.Value(opSK(0)), expression.Value(opSK(beforeSeq-1)))
	}
	keyCond := expression.Key("PK").Equal(expression.Value(mapPK(mapID))).And(skCond)
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "build query")
	}
	return l.queryRecords(ctx, expr, aws.Int32(int32(limit)), false)
}

// ListConflicts returns records flagged concurrent, ascending by seq.
func (l *OperationLog) ListConflicts(ctx context.Context, mapID string) ([]*mindmap.Record, error) {
	keyCond := expression.Key("PK").Equal(expression.Value(mapPK(mapID))).
		And(expression.Key("SK").BeginsWith("OP#"))
	filter := expression.Name("Conflict").Equal(expression.Value(true))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).WithFilter(filter).Build()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "build query")
	}
	return l.queryRecords(ctx, expr, nil, true)
}

// UpdateStatus transitions the record's lifecycle status.
func (l *OperationLog) UpdateStatus(ctx context.Context, operationID string, status mindmap.RecordStatus) error {
	rec, err := l.GetByID(ctx, operationID)
	if err != nil {
		return err
	}
	if rec == nil {
		return pkgerrors.NewNotFound("operation " + operationID + " not found")
	}
	_, err = l.breaker.Execute(func() (interface{}, error) {
		return l.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName: aws.String(l.table),
			Key: map[string]types.AttributeValue{
				"PK": &types.AttributeValueMemberS{Value: mapPK(rec.MapID)},
				"SK": &types.AttributeValueMemberS{Value: opSK(rec.Seq)},
			},
			UpdateExpression: aws.String("SET #st = :status"),
			ExpressionAttributeNames: map[string]string{
				"#st": "Status",
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":status": &types.AttributeValueMemberS{Value: string(status)},
			},
			ConditionExpression: aws.String("attribute_exists(PK)"),
		})
	})
	if err != nil {
		return pkgerrors.Wrap(err, "update journal status")
	}
	return nil
}

func (l *OperationLog) queryRecords(ctx context.Context, expr expression.Expression, limit *int32, ascending bool) ([]*mindmap.Record, error) {
	var records []*mindmap.Record
	var startKey map[string]types.AttributeValue
	for {
		out, err := l.breaker.Execute(func() (interface{}, error) {
			return l.client.Query(ctx, &dynamodb.QueryInput{
				TableName:                 aws.String(l.table),
				KeyConditionExpression:    expr.KeyCondition(),
				FilterExpression:          expr.Filter(),
				ExpressionAttributeNames:  expr.Names(),
				ExpressionAttributeValues: expr.Values(),
				ExclusiveStartKey:         startKey,
				Limit:                     limit,
				ScanIndexForward:          aws.Bool(ascending),
				ConsistentRead:            aws.Bool(true),
			})
		})
		if err != nil {
			return nil, pkgerrors.Wrap(err, "query journal")
		}
		page := out.(*dynamodb.QueryOutput)
		for _, raw := range page.Items {
			rec, err := unmarshalOp(raw)
			if err != nil {
				return nil, err
			}
			records = append(records, rec)
			if limit != nil && len(records) >= int(*limit) {
				return records, nil
			}
		}
		if page.LastEvaluatedKey == nil {
			return records, nil
		}
		startKey = page.LastEvaluatedKey
	}
}

func toOpItem(rec *mindmap.Record) *opItem {
	item := &opItem{
		PK:          mapPK(rec.MapID),
		SK:          opSK(rec.Seq),
		EntityType:  "OPERATION",
		OperationID: rec.ID,
		MapID:       rec.MapID,
		Seq:         rec.Seq,
		OpType:      string(rec.Type),
		TargetID:    rec.EntityID,
		ClientID:    rec.ClientID,
		Clock:       rec.Clock,
		Status:      string(rec.Status),
		Conflict:    rec.Conflict,
		AppliedAt:   rec.AppliedAt.Format(time.RFC3339Nano),
	}
	if rec.Previous != nil {
		item.Previous = &snapshotItem{
			Node:            rec.Previous.Node,
			Edge:            rec.Previous.Edge,
			CascadedEdgeIDs: rec.Previous.CascadedEdgeIDs,
		}
	}
	return item
}

func unmarshalOp(raw map[string]types.AttributeValue) (*mindmap.Record, error) {
	var item opItem
	if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
		return nil, pkgerrors.Wrap(err, "unmarshal journal item")
	}
	rec := &mindmap.Record{
		ID:        item.OperationID,
		MapID:     item.MapID,
		Seq:       item.Seq,
		Type:      mindmap.OperationType(item.OpType),
		EntityID:  item.TargetID,
		ClientID:  item.ClientID,
		Clock:     normalizeClock(item.Clock),
		Status:    mindmap.RecordStatus(item.Status),
		Conflict:  item.Conflict,
		AppliedAt: parseTime(item.AppliedAt),
	}
	if item.Previous != nil {
		rec.Previous = &mindmap.Snapshot{
			Node:            item.Previous.Node,
			Edge:            item.Previous.Edge,
			CascadedEdgeIDs: item.Previous.CascadedEdgeIDs,
		}
	}
	return rec, nil
}
