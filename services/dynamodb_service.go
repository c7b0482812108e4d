package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog"

	"personachat/models"
)

// ExchangeRecorder stores one audit record per relay request.
type ExchangeRecorder interface {
	Record(ctx context.Context, rec models.ExchangeRecord) error
}

// NoopRecorder discards records.
type NoopRecorder struct{}

func (NoopRecorder) Record(context.Context, models.ExchangeRecord) error { return nil }

// DynamoAPI is the subset of the DynamoDB client used by DynamoRecorder.
type DynamoAPI interface {
	CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, opts ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, opts ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// AuditConfig locates the exchange table.
type AuditConfig struct {
	Table    string
	Region   string
	Endpoint string
}

// NewDynamoClient builds a DynamoDB client. A non-empty endpoint targets
// DynamoDB Local with static dummy credentials.
func NewDynamoClient(ctx context.Context, cfg AuditConfig) (*dynamodb.Client, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.Endpoint != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{URL: cfg.Endpoint}, nil
		})
		opts = append(opts,
			config.WithEndpointResolverWithOptions(resolver),
			config.WithCredentialsProvider(credentials.StaticCredentialsProvider{
				Value: aws.Credentials{
					AccessKeyID: "dummy", SecretAccessKey: "dummy", SessionToken: "dummy",
				},
			}),
		)
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return dynamodb.NewFromConfig(awsCfg), nil
}

// DynamoRecorder writes exchange records keyed by persona and start time.
type DynamoRecorder struct {
	db     DynamoAPI
	table  string
	logger zerolog.Logger
}

func NewDynamoRecorder(db DynamoAPI, table string, logger zerolog.Logger) *DynamoRecorder {
	return &DynamoRecorder{
		db:     db,
		table:  table,
		logger: logger.With().Str("component", "exchange_recorder").Logger(),
	}
}

// EnsureTable creates the table when it does not exist yet.
func (r *DynamoRecorder) EnsureTable(ctx context.Context) error {
	_, err := r.db.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(r.table),
		AttributeDefinitions: []types.AttributeDefinition{
			{
				AttributeName: aws.String("PersonaID"),
				AttributeType: types.ScalarAttributeTypeS,
			},
			{
				AttributeName: aws.String("SortKey"),
				AttributeType: types.ScalarAttributeTypeS,
			},
		},
		KeySchema: []types.KeySchemaElement{
			{
				AttributeName: aws.String("PersonaID"),
				KeyType:       types.KeyTypeHash,
			},
			{
				AttributeName: aws.String("SortKey"),
				KeyType:       types.KeyTypeRange,
			},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	var inUse *types.ResourceInUseException
	if errors.As(err, &inUse) {
		r.logger.Debug().Str("table", r.table).Msg("exchange table already exists")
		return nil
	}
	if err != nil {
		return fmt.Errorf("create table %s: %w", r.table, err)
	}
	r.logger.Info().Str("table", r.table).Msg("created exchange table")
	return nil
}

// Record stores rec. Message content is never part of a record.
func (r *DynamoRecorder) Record(ctx context.Context, rec models.ExchangeRecord) error {
	startedAt := rec.StartedAt.UTC().Format(time.RFC3339Nano)
	item := map[string]types.AttributeValue{
		"PersonaID":   &types.AttributeValueMemberS{Value: rec.PersonaID},
		"SortKey":     &types.AttributeValueMemberS{Value: startedAt + "#" + rec.ID},
		"ID":          &types.AttributeValueMemberS{Value: rec.ID},
		"StartedAt":   &types.AttributeValueMemberS{Value: startedAt},
		"Transport":   &types.AttributeValueMemberS{Value: rec.Transport},
		"State":       &types.AttributeValueMemberS{Value: rec.State},
		"Fragments":   numberAttr(int64(rec.Fragments)),
		"Bytes":       numberAttr(int64(rec.Bytes)),
		"HistoryLen":  numberAttr(int64(rec.HistoryLen)),
		"FirstByteMs": numberAttr(rec.FirstByte.Milliseconds()),
		"DurationMs":  numberAttr(rec.Duration.Milliseconds()),
	}
	if rec.RequestID != "" {
		item["RequestID"] = &types.AttributeValueMemberS{Value: rec.RequestID}
	}
	if rec.Reason != "" {
		item["Reason"] = &types.AttributeValueMemberS{Value: rec.Reason}
	}

	_, err := r.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put exchange record: %w", err)
	}
	return nil
}

// OutcomeCounts aggregates exchanges of one persona.
type OutcomeCounts struct {
	Closed    int
	Errored   int
	Rejected  int
	Fragments int
}

// Summarize scans every record started at or after since and aggregates
// them per persona.
func (r *DynamoRecorder) Summarize(ctx context.Context, since time.Time) (map[string]OutcomeCounts, error) {
	summary := make(map[string]OutcomeCounts)
	input := &dynamodb.ScanInput{
		TableName:        aws.String(r.table),
		FilterExpression: aws.String("#ts >= :ts"),
		ExpressionAttributeNames: map[string]string{
			"#ts": "StartedAt",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ts": &types.AttributeValueMemberS{Value: since.UTC().Format(time.RFC3339Nano)},
		},
	}

	for {
		out, err := r.db.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("scan exchange records: %w", err)
		}
		for _, item := range out.Items {
			persona := stringAttr(item, "PersonaID")
			counts := summary[persona]
			switch {
			case stringAttr(item, "State") == StateClosed.String():
				counts.Closed++
			case isRejection(stringAttr(item, "Reason")):
				counts.Rejected++
			default:
				counts.Errored++
			}
			counts.Fragments += intAttr(item, "Fragments")
			summary[persona] = counts
		}
		if len(out.LastEvaluatedKey) == 0 {
			return summary, nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

func isRejection(reason string) bool {
	return reason == ReasonUnknownPersona || reason == ReasonUpstreamOpen
}

func numberAttr(v int64) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(v, 10)}
}

func stringAttr(item map[string]types.AttributeValue, key string) string {
	if v, ok := item[key].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func intAttr(item map[string]types.AttributeValue, key string) int {
	v, ok := item[key].(*types.AttributeValueMemberN)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(v.Value))
	if err != nil {
		return 0
	}
	return n
}
