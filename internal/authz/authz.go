// Package authz gates evidence submissions on a typed-data signature from an
// address that voted on the debate.
package authz

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"strings"

	"github.com/devblac/syt-bridge/internal/chain"
	"github.com/devblac/syt-bridge/internal/domain"
	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

const (
	DefaultDomainName    = "StakeYourTake"
	DefaultDomainVersion = "1"

	primaryType = "Evidence"
)

var evidenceTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	primaryType: {
		{Name: "content", Type: "string"},
		{Name: "debateId", Type: "uint256"},
	},
}

// Submission is what a wallet signs and the client forwards. Address is
// optional; when set, the recovered signer must equal it.
type Submission struct {
	ChainID   int64
	DebateID  int64
	Content   string
	Address   common.Address
	Signature string
}

// Authorizer verifies signatures and on-chain votes.
type Authorizer struct {
	registry *chain.Registry
	name     string
	version  string
	log      *slog.Logger
}

// New returns an Authorizer. Empty name or version fall back to the defaults.
func New(registry *chain.Registry, name, version string, log *slog.Logger) *Authorizer {
	if name == "" {
		name = DefaultDomainName
	}
	if version == "" {
		version = DefaultDomainVersion
	}
	if log == nil {
		log = slog.Default()
	}
	return &Authorizer{registry: registry, name: name, version: version, log: log}
}

// EvidenceHash returns the EIP-712 digest a wallet signs for content on
// debateID.
func (a *Authorizer) EvidenceHash(chainID int64, contract common.Address, content string, debateID int64) ([]byte, error) {
	td := apitypes.TypedData{
		Types:       evidenceTypes,
		PrimaryType: primaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              a.name,
			Version:           a.version,
			ChainId:           math.NewHexOrDecimal256(chainID),
			VerifyingContract: contract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"content":  content,
			"debateId": strconv.FormatInt(debateID, 10),
		},
	}
	hash, _, err := apitypes.TypedDataAndHash(td)
	if err != nil {
		return nil, fmt.Errorf("hash typed data: %w", err)
	}
	return hash, nil
}

// Authorize recovers the signer of sub.
func (a *Authorizer) Authorize(_ context.Context, sub Submission) (common.Address, error) {
	p, err := a.registry.Resolve(sub.ChainID)
	if err != nil {
		return common.Address{}, err
	}
	if sub.DebateID < 0 {
		return common.Address{}, fmt.Errorf("%w: negative debate id", domain.ErrInvalidInput)
	}
	sig, err := decodeSignature(sub.Signature)
	if err != nil {
		return common.Address{}, err
	}
	hash, err := a.EvidenceHash(p.ChainID, p.Contract, sub.Content, sub.DebateID)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", domain.ErrSignatureInvalid, err)
	}
	pub, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: recover: %v", domain.ErrSignatureInvalid, err)
	}
	signer := crypto.PubkeyToAddress(*pub)
	if sub.Address != (common.Address{}) && signer != sub.Address {
		// Tampered content or debate id lands here.
		return common.Address{}, fmt.Errorf("%w: signer %s does not match %s", domain.ErrNotAuthorized, signer.Hex(), sub.Address.Hex())
	}
	return signer, nil
}

// CheckVoted reads voters(debateID, addr) once. It is neither cached nor
// retried.
func (a *Authorizer) CheckVoted(ctx context.Context, chainID, debateID int64, addr common.Address) (domain.VoteProof, error) {
	p, err := a.registry.Resolve(chainID)
	if err != nil {
		return domain.VoteProof{}, err
	}
	contract := a.registry.Contract()
	data, err := contract.PackVoters(debateID, addr)
	if err != nil {
		return domain.VoteProof{}, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	to := p.Contract
	out, err := p.Client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return domain.VoteProof{}, fmt.Errorf("voters(%d, %s): %w", debateID, addr.Hex(), err)
	}
	proof, err := contract.UnpackVoters(out)
	if err != nil {
		return domain.VoteProof{}, fmt.Errorf("%w: voters(%d): %v", domain.ErrChainUnavailable, debateID, err)
	}
	return proof, nil
}

// Verify authorizes sub and requires the signer to have voted.
func (a *Authorizer) Verify(ctx context.Context, sub Submission) (domain.VoteProof, error) {
	signer, err := a.Authorize(ctx, sub)
	if err != nil {
		return domain.VoteProof{}, err
	}
	proof, err := a.CheckVoted(ctx, sub.ChainID, sub.DebateID, signer)
	if err != nil {
		return domain.VoteProof{}, err
	}
	if !proof.HasVoted {
		a.log.Info("evidence rejected: no vote", "chain_id", sub.ChainID, "debate_id", sub.DebateID, "address", signer.Hex())
		return proof, fmt.Errorf("%w: %s has not voted on debate %d", domain.ErrNotAuthorized, signer.Hex(), sub.DebateID)
	}
	return proof, nil
}

var secp256k1HalfN = new(big.Int).Rsh(crypto.S256().Params().N, 1)

// decodeSignature parses a 65-byte r||s||v signature. v may be 0/1 or 27/28;
// high-s values are rejected.
func decodeSignature(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	sig, err := hexutil.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSignatureInvalid, err)
	}
	if len(sig) != crypto.SignatureLength {
		return nil, fmt.Errorf("%w: length %d", domain.ErrSignatureInvalid, len(sig))
	}
	v := sig[crypto.RecoveryIDOffset]
	if v >= 27 {
		v -= 27
	}
	if v > 1 {
		return nil, fmt.Errorf("%w: recovery id %d", domain.ErrSignatureInvalid, sig[crypto.RecoveryIDOffset])
	}
	r := new(big.Int).SetBytes(sig[:32])
	sv := new(big.Int).SetBytes(sig[32:64])
	if sv.Cmp(secp256k1HalfN) > 0 || !crypto.ValidateSignatureValues(v, r, sv, true) {
		return nil, fmt.Errorf("%w: signature values out of range", domain.ErrSignatureInvalid)
	}
	out := make([]byte, crypto.SignatureLength)
	copy(out, sig)
	out[crypto.RecoveryIDOffset] = v
	return out, nil
}
