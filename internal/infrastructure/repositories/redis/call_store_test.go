package redis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"callwire/internal/core/domain"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testRecord() *domain.CallRequest {
	return &domain.CallRequest{
		RoomName:   "alpha",
		CallerID:   "c1",
		CallerName: "Caller One",
		CreatedAt:  time.Now().UnixMilli(),
	}
}

func TestCreateWritesRecordAndRoomSet(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer mock.ClearExpect()
	store := NewRedisCallStore(db, zap.NewNop().Sugar())

	mock.ExpectTxPipeline()
	mock.Regexp().ExpectSet(`callwire:call:.+`, `.+`, 0).SetVal("OK")
	mock.Regexp().ExpectSAdd(`callwire:room:alpha:calls`, `.+`).SetVal(1)
	mock.ExpectTxPipelineExec()
	mock.Regexp().ExpectPublish(`callwire:room:alpha:added`, `.+`).SetVal(1)

	id, err := store.Create(context.Background(), testRecord())

	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateSurfacesStoreFailure(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer mock.ClearExpect()
	store := NewRedisCallStore(db, zap.NewNop().Sugar())

	// No expectations registered: the pipeline exec fails.
	_, err := store.Create(context.Background(), testRecord())
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}

func TestCreateToleratesPublishFailure(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer mock.ClearExpect()
	store := NewRedisCallStore(db, zap.NewNop().Sugar())

	mock.ExpectTxPipeline()
	mock.Regexp().ExpectSet(`callwire:call:.+`, `.+`, 0).SetVal("OK")
	mock.Regexp().ExpectSAdd(`callwire:room:alpha:calls`, `.+`).SetVal(1)
	mock.ExpectTxPipelineExec()
	mock.Regexp().ExpectPublish(`callwire:room:alpha:added`, `.+`).SetErr(errors.New("broken pipe"))

	// The record is persisted, so the id still comes back.
	id, err := store.Create(context.Background(), testRecord())
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestDeleteRemovesRecordAndSetMember(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer mock.ClearExpect()
	store := NewRedisCallStore(db, zap.NewNop().Sugar())

	rec := testRecord()
	rec.ID = "req-1"
	data, err := json.Marshal(rec)
	require.NoError(t, err)

	mock.ExpectGet("callwire:call:req-1").SetVal(string(data))
	mock.ExpectTxPipeline()
	mock.ExpectSRem("callwire:room:alpha:calls", "req-1").SetVal(1)
	mock.ExpectDel("callwire:call:req-1").SetVal(1)
	mock.ExpectTxPipelineExec()

	require.NoError(t, store.Delete(context.Background(), "req-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteMissingRecordIsNoError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer mock.ClearExpect()
	store := NewRedisCallStore(db, zap.NewNop().Sugar())

	mock.ExpectGet("callwire:call:ghost").RedisNil()

	assert.NoError(t, store.Delete(context.Background(), "ghost"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteUnparseableRecordStillRemoved(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer mock.ClearExpect()
	store := NewRedisCallStore(db, zap.NewNop().Sugar())

	mock.ExpectGet("callwire:call:req-1").SetVal("{broken")
	mock.ExpectDel("callwire:call:req-1").SetVal(1)

	assert.NoError(t, store.Delete(context.Background(), "req-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteSurfacesStoreFailure(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer mock.ClearExpect()
	store := NewRedisCallStore(db, zap.NewNop().Sugar())

	mock.ExpectGet("callwire:call:req-1").SetErr(errors.New("connection refused"))

	err := store.Delete(context.Background(), "req-1")
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}
