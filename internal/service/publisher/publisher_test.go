package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"testing"
	"time"

	"governance-backend/internal/types"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	channel string
	message []byte
}

type fakeClient struct {
	published  []published
	head       map[string][]byte
	publishErr error
}

func (f *fakeClient) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	if f.publishErr != nil {
		cmd.SetErr(f.publishErr)
		return cmd
	}
	f.published = append(f.published, published{channel: channel, message: message.([]byte)})
	cmd.SetVal(1)
	return cmd
}

func (f *fakeClient) Set(ctx context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	if f.head == nil {
		f.head = make(map[string][]byte)
	}
	f.head[key] = value.([]byte)
	cmd.SetVal("OK")
	return cmd
}

type countingObserver struct{ failures int }

func (c *countingObserver) ObservePublishFailure() { c.failures++ }

func TestPublish(t *testing.T) {
	client := &fakeClient{}
	p := NewPublisher(client, "governance:events", nil)

	events := []types.Event{
		{Sequence: 7, Type: types.EventAdminStaked, Actor: common.HexToAddress("0x01"), Amount: big.NewInt(1500), Hash: common.HexToHash("0xaa")},
		{Sequence: 8, Type: types.EventActionProposed, ActionID: 3, Hash: common.HexToHash("0xbb")},
	}
	require.NoError(t, p.Publish(context.Background(), events))

	require.Len(t, client.published, 2)
	assert.Equal(t, "governance:events", client.published[0].channel)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(client.published[0].message, &decoded))
	assert.Equal(t, "AdminStaked", decoded["type"])
	assert.EqualValues(t, 1500, decoded["amount"])

	var head HeadRecord
	require.NoError(t, json.Unmarshal(client.head["governance:events:head"], &head))
	assert.Equal(t, uint64(8), head.Sequence)
	assert.Equal(t, common.HexToHash("0xbb").Hex(), head.Hash)
}

func TestPublish_FailureCounted(t *testing.T) {
	client := &fakeClient{publishErr: errors.New("connection refused")}
	obs := &countingObserver{}
	p := NewPublisher(client, "governance:events", obs)

	err := p.Publish(context.Background(), []types.Event{{Sequence: 1, Type: types.EventAdminAdded}})
	require.Error(t, err)
	assert.Equal(t, 1, obs.failures)
	assert.Empty(t, client.head)

	p.HandleEvents([]types.Event{{Sequence: 2, Type: types.EventAdminAdded}})
	assert.Equal(t, 2, obs.failures)
}

func TestPublish_Empty(t *testing.T) {
	client := &fakeClient{}
	require.NoError(t, NewPublisher(client, "c", nil).Publish(context.Background(), nil))
	assert.Empty(t, client.published)
}

func TestPublish_HeadNeverMovesBackwards(t *testing.T) {
	client := &fakeClient{}
	p := NewPublisher(client, "governance:events", nil)
	ctx := context.Background()

	require.NoError(t, p.Publish(ctx, []types.Event{{Sequence: 8, Type: types.EventAdminAdded, Hash: common.HexToHash("0x08")}}))
	require.NoError(t, p.Publish(ctx, []types.Event{{Sequence: 6, Type: types.EventAdminAdded, Hash: common.HexToHash("0x06")}}))

	assert.Len(t, client.published, 2)
	var head HeadRecord
	require.NoError(t, json.Unmarshal(client.head["governance:events:head"], &head))
	assert.Equal(t, uint64(8), head.Sequence)
	assert.Equal(t, common.HexToHash("0x08").Hex(), head.Hash)

	require.NoError(t, p.Publish(ctx, []types.Event{{Sequence: 9, Type: types.EventAdminAdded, Hash: common.HexToHash("0x09")}}))
	require.NoError(t, json.Unmarshal(client.head["governance:events:head"], &head))
	assert.Equal(t, uint64(9), head.Sequence)
}
