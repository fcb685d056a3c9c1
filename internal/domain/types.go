package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Debate is the persisted off-chain record of an on-chain debate.
// (ChainID, DebateID) is the join key to contract state; ID is local only.
type Debate struct {
	ID             int64     `json:"id"`
	DebateID       int64     `json:"debateId"`
	ChainID        int64     `json:"chainId"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	AssetURL       string    `json:"assetUrl,omitempty"`
	CreationTxHash string    `json:"creationTxHash"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Evidence is a timeline entry attached to a debate.
type Evidence struct {
	ID         int64     `json:"id"`
	DebateIDPg int64     `json:"debateIdPg"`
	Content    string    `json:"content"`
	AssetURL   string    `json:"assetUrl,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// DebateState mirrors the contract's debates(uint256) accessor.
type DebateState struct {
	Creator   common.Address `json:"creator"`
	EndTime   uint64         `json:"endTime"`
	VoteFee   *big.Int       `json:"voteFee"`
	YesCount  *big.Int       `json:"yesCount"`
	NoCount   *big.Int       `json:"noCount"`
	YesPot    *big.Int       `json:"yesPot"`
	NoPot     *big.Int       `json:"noPot"`
	Finalized bool           `json:"finalized"`
	Result    uint8          `json:"result"`
	Residual  *big.Int       `json:"residual"`
}

// VotingClosed is evaluated against the supplied clock on every call.
func (s *DebateState) VotingClosed(now time.Time) bool {
	if s == nil {
		return false
	}
	if s.Finalized {
		return true
	}
	return now.Unix() >= 0 && uint64(now.Unix()) >= s.EndTime
}

// VoteProof mirrors the contract's voters(uint256,address) accessor.
type VoteProof struct {
	HasVoted   bool `json:"hasVoted"`
	SupportYes bool `json:"supportYes"`
	Claimed    bool `json:"claimed"`
}
