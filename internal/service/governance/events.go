package governance

import (
	"encoding/json"
	"fmt"
	"math/big"
	"sort"

	"governance-backend/internal/types"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const defaultEventLimit = 100

// eventHashInput 参与哈希的事件字段，字段顺序固定
type eventHashInput struct {
	Sequence   uint64            `json:"sequence"`
	Type       types.EventType   `json:"type"`
	Timestamp  int64             `json:"timestamp"`
	Actor      common.Address    `json:"actor"`
	Subject    common.Address    `json:"subject"`
	ActionID   uint64            `json:"actionId"`
	ActionType *types.ActionType `json:"actionType"`
	OldRole    *types.AdminRole  `json:"oldRole"`
	NewRole    *types.AdminRole  `json:"newRole"`
	Amount     *big.Int          `json:"amount"`
	Enabled    *bool             `json:"enabled"`
	Reason     string            `json:"reason"`
}

// eventHash keccak256(prevHash || json(entry))
func eventHash(e types.Event) common.Hash {
	payload, err := json.Marshal(eventHashInput{
		Sequence:   e.Sequence,
		Type:       e.Type,
		Timestamp:  e.Timestamp,
		Actor:      e.Actor,
		Subject:    e.Subject,
		ActionID:   e.ActionID,
		ActionType: e.ActionType,
		OldRole:    e.OldRole,
		NewRole:    e.NewRole,
		Amount:     e.Amount,
		Enabled:    e.Enabled,
		Reason:     e.Reason,
	})
	if err != nil {
		// 字段均为可序列化类型
		panic(fmt.Sprintf("marshal event: %v", err))
	}
	return crypto.Keccak256Hash(e.PrevHash.Bytes(), payload)
}

// emit 追加事件并推进哈希链
func (tx *txn) emit(e types.Event) {
	e.Sequence = tx.meta.EventCount + 1
	e.Timestamp = tx.now
	e.PrevHash = tx.meta.HeadHash
	e.Hash = eventHash(e)

	tx.meta.EventCount = e.Sequence
	tx.meta.HeadHash = e.Hash
	tx.events = append(tx.events, e)
}

// VerifyChain 重新计算哈希链
func VerifyChain(events []types.Event) types.EventLogVerification {
	var prev common.Hash
	for i, e := range events {
		expectedSeq := uint64(i + 1)
		if e.Sequence != expectedSeq {
			return types.EventLogVerification{
				Valid:    false,
				Message:  fmt.Sprintf("sequence gap at position %d: got %d, want %d", i, e.Sequence, expectedSeq),
				Length:   uint64(len(events)),
				HeadHash: prev,
			}
		}
		if e.PrevHash != prev {
			return types.EventLogVerification{
				Valid:    false,
				Message:  fmt.Sprintf("broken link at sequence %d", e.Sequence),
				Length:   uint64(len(events)),
				HeadHash: prev,
			}
		}
		if eventHash(e) != e.Hash {
			return types.EventLogVerification{
				Valid:    false,
				Message:  fmt.Sprintf("hash mismatch at sequence %d", e.Sequence),
				Length:   uint64(len(events)),
				HeadHash: prev,
			}
		}
		prev = e.Hash
	}
	return types.EventLogVerification{
		Valid:    true,
		Message:  "ok",
		Length:   uint64(len(events)),
		HeadHash: prev,
	}
}

// filterEvents 默认按序号倒序返回
func filterEvents(events []types.Event, filter types.EventFilter) ([]types.Event, int) {
	matched := make([]types.Event, 0)
	for _, e := range events {
		if filter.Match(e) {
			matched = append(matched, e)
		}
	}
	total := len(matched)
	if !filter.Ascending {
		sort.Slice(matched, func(i, j int) bool { return matched[i].Sequence > matched[j].Sequence })
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultEventLimit
	}
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, total
}

func rolePtr(r types.AdminRole) *types.AdminRole {
	return &r
}

func actionTypePtr(t types.ActionType) *types.ActionType {
	return &t
}

func boolPtr(b bool) *bool {
	return &b
}

func amountPtr(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
