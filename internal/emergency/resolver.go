// Package emergency 为搭档请假的见习警员寻找并绑定当班的临时搭档。
package emergency

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/precinct-ops/duty-roster/backend/internal/audit"
	"github.com/precinct-ops/duty-roster/backend/internal/domain"
	"github.com/precinct-ops/duty-roster/backend/internal/locker"
	"github.com/precinct-ops/duty-roster/backend/internal/partnership"
	"github.com/precinct-ops/duty-roster/backend/internal/ranking"
	"github.com/precinct-ops/duty-roster/backend/internal/store"
	"github.com/shopspring/decimal"
)

type ExclusionReason string

const (
	ExcludedSelf             ExclusionReason = "self"
	ExcludedOnLeave          ExclusionReason = "on_leave"
	ExcludedProbationary     ExclusionReason = "probationary"
	ExcludedAlreadyPartnered ExclusionReason = "already_partnered"
	ExcludedInactive         ExclusionReason = "inactive"
)

type Candidate struct {
	Officer       *domain.Officer   `json:"officer"`
	ServiceCredit decimal.Decimal   `json:"serviceCredit"`
	State         partnership.State `json:"state"`
}

type Exclusion struct {
	OfficerID int64           `json:"officerID"`
	FullName  string          `json:"fullName"`
	Reason    ExclusionReason `json:"reason"`
}

type CandidatesResult struct {
	PPO        *partnership.Status `json:"ppo"`
	Candidates []Candidate         `json:"candidates"`
	Excluded   []Exclusion         `json:"excluded"`
}

type BondRequest struct {
	PPOID       int64
	CandidateID int64
	Date        time.Time
	ShiftTypeID int64
	Reason      string
	Actor       string
}

type BondResult struct {
	Bond     *domain.PartnershipBond `json:"bond"`
	Warnings []string                `json:"warnings,omitempty"`
}

type DissolveRequest struct {
	OfficerID   int64
	Date        time.Time
	ShiftTypeID int64
	Actor       string
}

type DissolveResult struct {
	Bond              *domain.PartnershipBond `json:"bond"`
	Restored          bool                    `json:"restored"`
	RestoredOfficerID *int64                  `json:"restoredOfficerID"`
	Warnings          []string                `json:"warnings,omitempty"`
}

type Resolver struct {
	store  store.TxStore
	ledger *partnership.Ledger
	locker locker.Locker
	audit  audit.Recorder
	logger *slog.Logger
}

func NewResolver(s store.TxStore, ledger *partnership.Ledger, lk locker.Locker, rec audit.Recorder, logger *slog.Logger) *Resolver {
	return &Resolver{
		store:  s,
		ledger: ledger,
		locker: lk,
		audit:  rec,
		logger: logger,
	}
}

// FindEmergencyCandidates 列出可以与 ppoID 临时搭档的当班警员，按名册顺序排列。
// 没有候选人不是错误，Excluded 中给出每个被排除者的原因。
func (r *Resolver) FindEmergencyCandidates(ctx context.Context, ppoID int64, date time.Time, shiftTypeID int64) (*CandidatesResult, error) {
	date = domain.Day(date)
	scope := domain.Scope{OfficerID: ppoID, Date: date, ShiftTypeID: shiftTypeID}

	status, err := r.ledger.Status(ctx, r.store, ppoID, date, shiftTypeID)
	if err != nil {
		return nil, err
	}
	ppo, err := r.store.GetOfficer(ctx, ppoID)
	if err != nil {
		return nil, store.Wrap(scope, err)
	}
	if !ppo.IsProbationary() {
		return nil, scope.BusinessRule(domain.ErrNotEmergencyEligible, "只有见习警员可以紧急调配")
	}
	if status.State != partnership.SuspendedEmergencyEligible {
		return nil, scope.BusinessRule(domain.ErrNotEmergencyEligible, "当前状态为 "+string(status.State))
	}

	working, err := r.store.WorkingOfficerIDs(ctx, date, shiftTypeID)
	if err != nil {
		return nil, store.Wrap(scope, err)
	}

	result := &CandidatesResult{
		PPO:        status,
		Candidates: []Candidate{},
		Excluded:   []Exclusion{},
	}

	var eligible []*domain.Officer
	states := make(map[int64]partnership.State)
	for _, id := range working {
		officer, err := r.store.GetOfficer(ctx, id)
		if err != nil {
			return nil, store.Wrap(scope, err)
		}
		// 停用的警员仍可能留有排班，给出原因而不是直接忽略
		if !officer.IsActive {
			result.Excluded = append(result.Excluded, Exclusion{OfficerID: id, FullName: officer.FullName, Reason: ExcludedInactive})
			continue
		}

		reason, state, err := r.assess(ctx, r.store, ppoID, officer, date, shiftTypeID)
		if err != nil {
			return nil, err
		}
		if reason != "" {
			result.Excluded = append(result.Excluded, Exclusion{OfficerID: id, FullName: officer.FullName, Reason: reason})
			continue
		}
		eligible = append(eligible, officer)
		states[id] = state
	}

	for _, entry := range ranking.RosterOrder(eligible, date) {
		result.Candidates = append(result.Candidates, Candidate{
			Officer:       entry.Officer,
			ServiceCredit: entry.ServiceCredit,
			State:         states[entry.Officer.ID],
		})
	}
	return result, nil
}

// assess 判断 officer 能否担任 ppoID 的临时搭档，返回空字符串表示可以
func (r *Resolver) assess(ctx context.Context, s store.Store, ppoID int64, officer *domain.Officer, date time.Time, shiftTypeID int64) (ExclusionReason, partnership.State, error) {
	if officer.ID == ppoID {
		return ExcludedSelf, "", nil
	}

	status, err := r.ledger.Status(ctx, s, officer.ID, date, shiftTypeID)
	if err != nil {
		return "", "", err
	}
	switch {
	case status.State == partnership.OnLeave:
		return ExcludedOnLeave, status.State, nil
	case officer.IsProbationary():
		return ExcludedProbationary, status.State, nil
	case status.State == partnership.PartneredActive:
		return ExcludedAlreadyPartnered, status.State, nil
	}
	return "", status.State, nil
}

// CreateEmergencyBond 为处于挂起状态的见习警员绑定临时搭档，只对当天该班次有效
func (r *Resolver) CreateEmergencyBond(ctx context.Context, req BondRequest) (*BondResult, error) {
	date := domain.Day(req.Date)
	scope := domain.Scope{OfficerID: req.PPOID, Date: date, ShiftTypeID: req.ShiftTypeID}

	if req.Date.IsZero() {
		return nil, scope.Validation(domain.ErrInvalidTimeRange, "date", "日期不能为空")
	}
	if req.PPOID == req.CandidateID {
		return nil, scope.BusinessRule(domain.ErrCandidateIneligible, string(ExcludedSelf))
	}

	release, err := locker.Slot(ctx, r.locker, scope)
	if err != nil {
		return nil, err
	}
	defer release()

	var bond *domain.PartnershipBond
	var ppo, candidate *domain.Officer

	err = r.store.WithTx(ctx, func(tx store.Store) error {
		ppo, err = tx.GetOfficer(ctx, req.PPOID)
		if err != nil {
			return store.Wrap(scope, err)
		}
		candidate, err = tx.GetOfficer(ctx, req.CandidateID)
		if err != nil {
			return store.Wrap(domain.Scope{OfficerID: req.CandidateID, Date: date, ShiftTypeID: req.ShiftTypeID}, err)
		}

		if ppo.IsProbationary() && candidate.IsProbationary() {
			return scope.BusinessRule(domain.ErrProbationaryPairing,
				fmt.Sprintf("%s 与 %s 均为见习警员", ppo.FullName, candidate.FullName))
		}
		if !ppo.IsProbationary() {
			return scope.BusinessRule(domain.ErrNotEmergencyEligible, "只有见习警员可以紧急调配")
		}

		status, err := r.ledger.Status(ctx, tx, req.PPOID, date, req.ShiftTypeID)
		if err != nil {
			return err
		}
		if status.State != partnership.SuspendedEmergencyEligible {
			return scope.BusinessRule(domain.ErrNotEmergencyEligible, "当前状态为 "+string(status.State))
		}

		working, err := tx.WorkingOfficerIDs(ctx, date, req.ShiftTypeID)
		if err != nil {
			return store.Wrap(scope, err)
		}
		if !candidate.IsActive {
			return scope.BusinessRule(domain.ErrCandidateIneligible,
				fmt.Sprintf("%s: %s", candidate.FullName, ExcludedInactive))
		}
		if !slices.Contains(working, req.CandidateID) {
			return scope.BusinessRule(domain.ErrCandidateIneligible,
				fmt.Sprintf("%s 当班未排班", candidate.FullName))
		}
		reason, _, err := r.assess(ctx, tx, req.PPOID, candidate, date, req.ShiftTypeID)
		if err != nil {
			return err
		}
		if reason != "" {
			return scope.BusinessRule(domain.ErrCandidateIneligible,
				fmt.Sprintf("%s: %s", candidate.FullName, reason))
		}

		text := req.Reason
		if text == "" {
			text = fmt.Sprintf("%s 的搭档请假，由 %s 临时搭档", ppo.FullName, candidate.FullName)
		}
		bond, err = r.ledger.BindEmergency(ctx, tx, req.PPOID, req.CandidateID, date, req.ShiftTypeID, text, req.Actor)
		return err
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("紧急搭档已建立",
		slog.Int64("ppo_id", req.PPOID),
		slog.Int64("candidate_id", req.CandidateID),
		slog.String("date", domain.DateKey(date)),
		slog.Int64("shift_type_id", req.ShiftTypeID),
	)

	warnings := audit.Report(ctx, r.audit, r.logger, &domain.AuditEntry{
		Actor:       req.Actor,
		ActionType:  domain.AuditEmergencyBondCreated,
		Description: fmt.Sprintf("%s 与 %s 建立紧急搭档", ppo.FullName, candidate.FullName),
		OfficerID:   req.PPOID,
		Date:        store.Time(date),
		ShiftTypeID: req.ShiftTypeID,
		After:       bond,
	})
	return &BondResult{Bond: bond, Warnings: warnings}, nil
}

// DissolveEmergencyBond 由主管解除紧急搭档；见习警员的原搭档已销假时常规搭档随之恢复
func (r *Resolver) DissolveEmergencyBond(ctx context.Context, req DissolveRequest) (*DissolveResult, error) {
	date := domain.Day(req.Date)
	scope := domain.Scope{OfficerID: req.OfficerID, Date: date, ShiftTypeID: req.ShiftTypeID}

	if req.Date.IsZero() {
		return nil, scope.Validation(domain.ErrInvalidTimeRange, "date", "日期不能为空")
	}

	release, err := locker.Slot(ctx, r.locker, scope)
	if err != nil {
		return nil, err
	}
	defer release()

	var outcome *partnership.DissolveOutcome
	err = r.store.WithTx(ctx, func(tx store.Store) error {
		if _, err := tx.GetOfficer(ctx, req.OfficerID); err != nil {
			return store.Wrap(scope, err)
		}
		outcome, err = r.ledger.DissolveEmergency(ctx, tx, req.OfficerID, date, req.ShiftTypeID, req.Actor)
		return err
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("紧急搭档已解除",
		slog.Int64("officer_id", req.OfficerID),
		slog.String("date", domain.DateKey(date)),
		slog.Int64("shift_type_id", req.ShiftTypeID),
		slog.Bool("restored", outcome.Restored),
	)

	warnings := audit.Report(ctx, r.audit, r.logger, &domain.AuditEntry{
		Actor:       req.Actor,
		ActionType:  domain.AuditEmergencyBondResolved,
		Description: fmt.Sprintf("解除警员 %d 与 %d 的紧急搭档", outcome.Bond.OfficerAID, outcome.Bond.OfficerBID),
		OfficerID:   req.OfficerID,
		Date:        store.Time(date),
		ShiftTypeID: req.ShiftTypeID,
		Before:      outcome.Bond,
	})
	return &DissolveResult{
		Bond:              outcome.Bond,
		Restored:          outcome.Restored,
		RestoredOfficerID: outcome.RestoreOf,
		Warnings:          warnings,
	}, nil
}
