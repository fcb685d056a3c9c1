// Package reconcile is the facade that keeps the off-chain debate record
// consistent with the voting contract.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/devblac/syt-bridge/internal/aggregate"
	"github.com/devblac/syt-bridge/internal/authz"
	"github.com/devblac/syt-bridge/internal/chain"
	"github.com/devblac/syt-bridge/internal/domain"
	"github.com/devblac/syt-bridge/internal/metrics"
	"github.com/devblac/syt-bridge/internal/resolver"
	"github.com/devblac/syt-bridge/internal/sink"
	"github.com/ethereum/go-ethereum/common"
)

// Store is the relational record the facade writes through.
type Store interface {
	CreateDebate(ctx context.Context, d domain.Debate) (domain.Debate, error)
	GetDebate(ctx context.Context, id int64) (domain.Debate, error)
	GetDebateByChain(ctx context.Context, chainID, debateID int64) (domain.Debate, error)
	ListDebates(ctx context.Context) ([]domain.Debate, error)
	UpdateDebate(ctx context.Context, id int64, title, description string) (domain.Debate, error)
	CreateEvidence(ctx context.Context, e domain.Evidence) (domain.Evidence, error)
	ListEvidence(ctx context.Context, debateIDPg int64) ([]domain.Evidence, error)
}

// Deps are the collaborators a Service is built from.
type Deps struct {
	Registry   *chain.Registry
	Resolver   *resolver.Resolver
	Aggregator *aggregate.Aggregator
	Authorizer *authz.Authorizer
	Store      Store
	Notifier   *Notifier
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
	// Retry bounds audit log scans.
	Retry chain.RetryPolicy
}

// Service is constructed once at startup and shared by all handlers.
type Service struct {
	registry   *chain.Registry
	resolver   *resolver.Resolver
	aggregator *aggregate.Aggregator
	authorizer *authz.Authorizer
	store      Store
	notifier   *Notifier
	metrics    *metrics.Metrics
	log        *slog.Logger
	retry      chain.RetryPolicy
	text       textPolicy
	now        func() time.Time
}

func New(d Deps) (*Service, error) {
	if d.Registry == nil || d.Resolver == nil || d.Aggregator == nil || d.Authorizer == nil || d.Store == nil {
		return nil, errors.New("registry, resolver, aggregator, authorizer and store are required")
	}
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		registry:   d.Registry,
		resolver:   d.Resolver,
		aggregator: d.Aggregator,
		authorizer: d.Authorizer,
		store:      d.Store,
		notifier:   d.Notifier,
		metrics:    d.Metrics,
		log:        log,
		retry:      d.Retry,
		text:       newTextPolicy(),
		now:        time.Now,
	}, nil
}

type CreateDebateInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	TxHash      string `json:"txHash"`
	ChainID     int64  `json:"chainId"`
	AssetURL    string `json:"assetUrl,omitempty"`
}

// CreateDebateFromTransaction persists a debate whose id is read from the
// DebateCreated log of a mined transaction. Replaying the same transaction
// returns the existing row with created=false.
func (s *Service) CreateDebateFromTransaction(ctx context.Context, in CreateDebateInput) (domain.Debate, bool, error) {
	title, err := s.text.check("title", in.Title, true, maxTitleLen)
	if err != nil {
		return domain.Debate{}, false, err
	}
	description, err := s.text.check("description", in.Description, false, maxDescriptionLen)
	if err != nil {
		return domain.Debate{}, false, err
	}
	assetURL, err := checkAssetURL(in.AssetURL)
	if err != nil {
		return domain.Debate{}, false, err
	}
	hash, err := parseTxHash(in.TxHash)
	if err != nil {
		return domain.Debate{}, false, err
	}
	profile, err := s.registry.Resolve(in.ChainID)
	if err != nil {
		return domain.Debate{}, false, err
	}

	details, err := s.resolver.FetchTransactionDetails(ctx, hash, in.ChainID)
	if err != nil {
		if errors.Is(err, domain.ErrChainUnavailable) {
			s.metrics.RPCError(in.ChainID)
		}
		return domain.Debate{}, false, err
	}
	if !details.Found {
		return domain.Debate{}, false, fmt.Errorf("%w: transaction %s is unknown or pending on chain %d", domain.ErrNotFound, hash.Hex(), in.ChainID)
	}
	debateID, err := details.DebateID()
	if err != nil {
		s.log.Warn("transaction carries no usable debate id", "chain_id", in.ChainID, "tx_hash", hash.Hex(), "error", err)
		return domain.Debate{}, false, err
	}

	rec, err := s.store.CreateDebate(ctx, domain.Debate{
		DebateID:       debateID,
		ChainID:        in.ChainID,
		Title:          title,
		Description:    description,
		AssetURL:       assetURL,
		CreationTxHash: hash.Hex(),
	})
	if errors.Is(err, domain.ErrStorageConflict) {
		existing, gerr := s.store.GetDebateByChain(ctx, in.ChainID, debateID)
		if gerr != nil {
			return domain.Debate{}, false, fmt.Errorf("load existing debate: %w", gerr)
		}
		s.metrics.DebateReplayed()
		s.log.Info("debate already recorded", "chain_id", in.ChainID, "debate_id", debateID, "id", existing.ID)
		return existing, false, nil
	}
	if err != nil {
		return domain.Debate{}, false, err
	}

	s.metrics.DebateCreated()
	s.log.Info("debate recorded", "chain_id", in.ChainID, "debate_id", debateID, "id", rec.ID, "tx_hash", rec.CreationTxHash)
	s.notifier.Notify(ctx, debateEvent(profile, rec, details))
	return rec, true, nil
}

func debateEvent(p *chain.Profile, rec domain.Debate, details *resolver.Details) sink.Event {
	ev := sink.Event{
		Kind:       "debate_created",
		ChainID:    rec.ChainID,
		ChainName:  p.Name,
		DebateID:   rec.DebateID,
		DebateIDPg: rec.ID,
		Title:      rec.Title,
		TxHash:     rec.CreationTxHash,
	}
	for _, l := range details.Logs {
		if l.EventName != chain.EventDebateCreated {
			continue
		}
		idx := l.LogIndex
		ev.LogIndex = &idx
		ev.BlockNumber = l.BlockNumber
		ev.Args = l.Args
		if c, ok := l.Args["creator"].(common.Address); ok {
			ev.Creator = c.Hex()
		}
		break
	}
	return ev
}

type SubmitEvidenceInput struct {
	DebateIDPg int64  `json:"debateIdPg"`
	DebateID   int64  `json:"debateId"`
	ChainID    int64  `json:"chainId"`
	Content    string `json:"content"`
	AssetURL   string `json:"assetUrl,omitempty"`
	Signature  string `json:"signature"`
	// Address is optional; when present the signer must match it.
	Address string `json:"address,omitempty"`
}

// SubmitEvidence authorizes a signed submission against a fresh on-chain
// vote check and then writes exactly one evidence row.
func (s *Service) SubmitEvidence(ctx context.Context, in SubmitEvidenceInput) (domain.Evidence, error) {
	if err := s.text.checkContent(in.Content); err != nil {
		return domain.Evidence{}, err
	}
	assetURL, err := checkAssetURL(in.AssetURL)
	if err != nil {
		return domain.Evidence{}, err
	}
	var claimed common.Address
	if in.Address != "" {
		if !common.IsHexAddress(in.Address) {
			return domain.Evidence{}, fmt.Errorf("%w: address", domain.ErrInvalidInput)
		}
		claimed = common.HexToAddress(in.Address)
	}
	if _, err := s.registry.Resolve(in.ChainID); err != nil {
		return domain.Evidence{}, err
	}

	debate, err := s.store.GetDebate(ctx, in.DebateIDPg)
	if err != nil {
		return domain.Evidence{}, err
	}
	if debate.ChainID != in.ChainID || debate.DebateID != in.DebateID {
		return domain.Evidence{}, fmt.Errorf("%w: record %d is debate %d on chain %d", domain.ErrDebateMismatch, debate.ID, debate.DebateID, debate.ChainID)
	}

	_, err = s.authorizer.Verify(ctx, authz.Submission{
		ChainID:   in.ChainID,
		DebateID:  in.DebateID,
		Content:   in.Content,
		Address:   claimed,
		Signature: in.Signature,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotAuthorized), errors.Is(err, domain.ErrSignatureInvalid):
			s.metrics.AuthzRejected(domain.Kind(err))
		case errors.Is(err, domain.ErrChainUnavailable):
			s.metrics.RPCError(in.ChainID)
		}
		return domain.Evidence{}, err
	}

	ev, err := s.store.CreateEvidence(ctx, domain.Evidence{
		DebateIDPg: debate.ID,
		Content:    in.Content,
		AssetURL:   assetURL,
	})
	if err != nil {
		return domain.Evidence{}, err
	}
	s.metrics.EvidenceCreated()
	s.log.Info("evidence recorded", "id", ev.ID, "debate_id_pg", debate.ID)
	return ev, nil
}

// DebateWithEvidence is a debate and its evidence timeline.
type DebateWithEvidence struct {
	domain.Debate
	Evidence []domain.Evidence `json:"evidence"`
}

func (s *Service) GetDebate(ctx context.Context, id int64) (DebateWithEvidence, error) {
	d, err := s.store.GetDebate(ctx, id)
	if err != nil {
		return DebateWithEvidence{}, err
	}
	ev, err := s.store.ListEvidence(ctx, id)
	if err != nil {
		return DebateWithEvidence{}, err
	}
	return DebateWithEvidence{Debate: d, Evidence: ev}, nil
}

func (s *Service) ListDebates(ctx context.Context) ([]domain.Debate, error) {
	return s.store.ListDebates(ctx)
}

type UpdateDebateInput struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
}

// UpdateDebate corrects title and/or description. Omitted fields keep their
// current value.
func (s *Service) UpdateDebate(ctx context.Context, id int64, in UpdateDebateInput) (domain.Debate, error) {
	if in.Title == nil && in.Description == nil {
		return domain.Debate{}, fmt.Errorf("%w: nothing to update", domain.ErrInvalidInput)
	}
	cur, err := s.store.GetDebate(ctx, id)
	if err != nil {
		return domain.Debate{}, err
	}
	title, description := cur.Title, cur.Description
	if in.Title != nil {
		if title, err = s.text.check("title", *in.Title, true, maxTitleLen); err != nil {
			return domain.Debate{}, err
		}
	}
	if in.Description != nil {
		if description, err = s.text.check("description", *in.Description, false, maxDescriptionLen); err != nil {
			return domain.Debate{}, err
		}
	}
	return s.store.UpdateDebate(ctx, id, title, description)
}

func (s *Service) ListEvidence(ctx context.Context, debateIDPg int64) ([]domain.Evidence, error) {
	return s.store.ListEvidence(ctx, debateIDPg)
}

// LiveDebate is a debate with its current contract state. State is nil when
// the chain could not be read.
type LiveDebate struct {
	domain.Debate
	State   *domain.DebateState `json:"state"`
	Metrics aggregate.Metrics   `json:"metrics"`
}

// LiveDebates merges contract state onto every stored debate. Metrics are
// derived at call time, never cached.
//
// If ctx ends while chains are being read, the view is still returned with
// the context error: chains that completed carry state, the rest are unknown.
func (s *Service) LiveDebates(ctx context.Context) ([]LiveDebate, error) {
	records, err := s.store.ListDebates(ctx)
	if err != nil {
		return nil, err
	}
	states, aggErr := s.aggregator.Aggregate(ctx, records)
	s.metrics.Aggregation()

	now := s.now()
	out := make([]LiveDebate, len(records))
	for i, rec := range records {
		p, _ := s.registry.Resolve(rec.ChainID)
		out[i] = LiveDebate{
			Debate:  rec,
			State:   states[i],
			Metrics: aggregate.Derive(states[i], p, now),
		}
	}
	if aggErr != nil {
		s.log.Warn("live view is partial", "debates", len(out), "error", aggErr)
		return out, aggErr
	}
	return out, nil
}

// VoteStatus reads the vote record for addr on a stored debate.
func (s *Service) VoteStatus(ctx context.Context, debateIDPg int64, addr string) (domain.VoteProof, error) {
	if !common.IsHexAddress(addr) {
		return domain.VoteProof{}, fmt.Errorf("%w: address", domain.ErrInvalidInput)
	}
	d, err := s.store.GetDebate(ctx, debateIDPg)
	if err != nil {
		return domain.VoteProof{}, err
	}
	return s.authorizer.CheckVoted(ctx, d.ChainID, d.DebateID, common.HexToAddress(addr))
}
