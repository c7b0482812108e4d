package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"personachat/models"
)

type fakeDynamo struct {
	createErr error
	created   *dynamodb.CreateTableInput
	items     []map[string]types.AttributeValue
	pageSize  int
	scans     int
}

func (f *fakeDynamo) CreateTable(_ context.Context, in *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	f.created = in
	return &dynamodb.CreateTableOutput{}, f.createErr
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.items = append(f.items, in.Item)
	return &dynamodb.PutItemOutput{}, nil
}

// Scan ignores the filter expression and pages by index.
func (f *fakeDynamo) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.scans++
	start := 0
	if in.ExclusiveStartKey != nil {
		start = intAttr(in.ExclusiveStartKey, "Offset")
	}
	end := start + f.pageSize
	if f.pageSize == 0 || end > len(f.items) {
		end = len(f.items)
	}
	out := &dynamodb.ScanOutput{Items: f.items[start:end]}
	if end < len(f.items) {
		out.LastEvaluatedKey = map[string]types.AttributeValue{"Offset": numberAttr(int64(end))}
	}
	return out, nil
}

func TestDynamoRecorderEnsureTable(t *testing.T) {
	db := &fakeDynamo{}
	r := NewDynamoRecorder(db, "Exchanges", zerolog.Nop())

	require.NoError(t, r.EnsureTable(context.Background()))
	assert.Equal(t, "Exchanges", aws.ToString(db.created.TableName))

	db.createErr = &types.ResourceInUseException{Message: aws.String("exists")}
	assert.NoError(t, r.EnsureTable(context.Background()))

	db.createErr = errors.New("access denied")
	assert.Error(t, r.EnsureTable(context.Background()))
}

func TestDynamoRecorderRecordOmitsContent(t *testing.T) {
	db := &fakeDynamo{}
	r := NewDynamoRecorder(db, "Exchanges", zerolog.Nop())

	started := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	err := r.Record(context.Background(), models.ExchangeRecord{
		ID:        "ex-1",
		PersonaID: "hitesh",
		Transport: TransportHTTP,
		State:     StateClosed.String(),
		Fragments: 3,
		Bytes:     25,
		StartedAt: started,
		Duration:  1500 * time.Millisecond,
	})
	require.NoError(t, err)
	require.Len(t, db.items, 1)

	item := db.items[0]
	assert.Equal(t, "hitesh", stringAttr(item, "PersonaID"))
	assert.Equal(t, "2025-07-01T12:00:00Z#ex-1", stringAttr(item, "SortKey"))
	assert.Equal(t, 3, intAttr(item, "Fragments"))
	assert.Equal(t, 1500, intAttr(item, "DurationMs"))
	assert.NotContains(t, item, "Reason")
	assert.NotContains(t, item, "Content")
}

func TestDynamoRecorderSummarizePaginates(t *testing.T) {
	db := &fakeDynamo{pageSize: 2}
	r := NewDynamoRecorder(db, "Exchanges", zerolog.Nop())
	ctx := context.Background()
	now := time.Now()

	for _, rec := range []models.ExchangeRecord{
		{ID: "1", PersonaID: "hitesh", State: "closed", Fragments: 4, StartedAt: now},
		{ID: "2", PersonaID: "hitesh", State: "errored", Reason: ReasonUpstreamStream, Fragments: 1, StartedAt: now},
		{ID: "3", PersonaID: "piyush", State: "closed", Fragments: 2, StartedAt: now},
		{ID: "4", PersonaID: "unknown", State: "errored", Reason: ReasonUnknownPersona, StartedAt: now},
		{ID: "5", PersonaID: "piyush", State: "errored", Reason: ReasonUpstreamOpen, StartedAt: now},
	} {
		require.NoError(t, r.Record(ctx, rec))
	}

	summary, err := r.Summarize(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, db.scans)
	assert.Equal(t, OutcomeCounts{Closed: 1, Errored: 1, Fragments: 5}, summary["hitesh"])
	assert.Equal(t, OutcomeCounts{Closed: 1, Rejected: 1, Fragments: 2}, summary["piyush"])
	assert.Equal(t, OutcomeCounts{Rejected: 1}, summary["unknown"])
}

func TestNoopRecorder(t *testing.T) {
	assert.NoError(t, NoopRecorder{}.Record(context.Background(), models.ExchangeRecord{}))
}
