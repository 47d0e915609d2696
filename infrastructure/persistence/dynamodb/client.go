// Package dynamodb persists maps and the operation journal in a single
// DynamoDB table:
//
//	PK             SK                  item
//	MAP#<mapID>    META                map authority record + Seq counter
//	MAP#<mapID>    NODE#<nodeID>       node record (soft deletes kept)
//	MAP#<mapID>    EDGE#<edgeID>       edge record (soft deletes kept)
//	MAP#<mapID>    OP#<seq, 20 digits> journal record
//
// Journal records additionally project OperationID into the
// OperationIndex GSI so rollback can look a record up by its ID without
// knowing its sequence.
package dynamodb

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// OperationIndexName is the GSI projecting journal records by operation ID.
const OperationIndexName = "OperationIndex"

// ClientConfig selects the table and, for local development, an
// alternate endpoint.
type ClientConfig struct {
	TableName string
	Region    string
	Endpoint  string
}

// NewClient builds a DynamoDB client from the ambient AWS configuration.
func NewClient(ctx context.Context, cfg ClientConfig) (*dynamodb.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

// newBreaker wraps DynamoDB calls in a circuit breaker so a struggling
// table sheds load fast instead of queueing merges behind timeouts.
func newBreaker(name string, logger *zap.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && counts.TotalFailures*2 > counts.Requests
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
}
