package alertService

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tiangangQiu/FundVal-Live/data/repository"
	"github.com/tiangangQiu/FundVal-Live/internal/converter/dbConverter"
	"github.com/tiangangQiu/FundVal-Live/internal/model"
	"github.com/tiangangQiu/FundVal-Live/internal/model/dbModel"
	"github.com/tiangangQiu/FundVal-Live/internal/service"
	"github.com/tiangangQiu/FundVal-Live/utils"
)

type Repository interface {
	GetSubscriptions(ctx context.Context) ([]dbModel.Subscription, error)
	CreateSubscription(ctx context.Context, sub dbModel.Subscription) (int64, error)
	DeleteSubscription(ctx context.Context, subID int64) error
	TouchSubscriptionNotified(ctx context.Context, subID int64) error
}

type FundService interface {
	GetValuation(ctx context.Context, code string) (model.Valuation, error)
}

type Notifier interface {
	Send(chatID int64, text string) error
}

type AlertService struct {
	repo        Repository
	fundService FundService
	notifier    Notifier
}

// New wires the alert service. notifier may be nil when Telegram alerts are
// disabled; subscriptions are still stored.
func New(repo Repository, fundService FundService, notifier Notifier) *AlertService {
	return &AlertService{
		repo:        repo,
		fundService: fundService,
		notifier:    notifier,
	}
}

func (s *AlertService) GetSubscriptions(ctx context.Context) ([]model.Subscription, error) {
	dbSubs, err := s.repo.GetSubscriptions(ctx)
	if err != nil {
		return nil, err
	}

	subscriptions := make([]model.Subscription, 0, len(dbSubs))
	for _, sub := range dbSubs {
		subscriptions = append(subscriptions, dbConverter.ConvertSubscription(sub))
	}
	return subscriptions, nil
}

func (s *AlertService) Subscribe(ctx context.Context, sub model.Subscription) (int64, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "AlertService.Subscribe"

	slog.Debug("Subscribe start", slog.String("rqID", rqID), slog.String("op", op), slog.String("code", sub.Code))
	defer func() {
		slog.Debug("Subscribe finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	if sub.Code == "" || sub.ChatID == 0 {
		return 0, service.ErrValidation
	}
	if sub.ThresholdUp != nil && !sub.ThresholdUp.IsPositive() {
		return 0, service.ErrValidation
	}
	if sub.ThresholdDown != nil && !sub.ThresholdDown.IsPositive() {
		return 0, service.ErrValidation
	}

	dbSub := dbModel.Subscription{
		Code:             sub.Code,
		ChatID:           sub.ChatID,
		ThresholdUp:      sub.ThresholdUp,
		ThresholdDown:    sub.ThresholdDown,
		EnableDigest:     sub.EnableDigest,
		DigestTime:       sub.DigestTime,
		EnableVolatility: sub.EnableVolatility,
	}
	if dbSub.DigestTime == "" {
		dbSub.DigestTime = "14:45"
	}

	subID, err := s.repo.CreateSubscription(ctx, dbSub)
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return 0, service.ErrAlreadyExists
		}
		slog.Error("got error from repo.CreateSubscription", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return 0, err
	}

	return subID, nil
}

func (s *AlertService) Unsubscribe(ctx context.Context, subID int64) error {
	return s.repo.DeleteSubscription(ctx, subID)
}

// CheckAlerts evaluates every subscription against the live estimate and
// fires at most one notification per subscription per day.
func (s *AlertService) CheckAlerts(ctx context.Context) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "AlertService.CheckAlerts"

	if s.notifier == nil {
		return nil
	}

	slog.Debug("CheckAlerts start", slog.String("rqID", rqID), slog.String("op", op))
	defer func() {
		slog.Debug("CheckAlerts finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	subs, err := s.repo.GetSubscriptions(ctx)
	if err != nil {
		slog.Error("got error from repo.GetSubscriptions", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}

	today := time.Now().Format("2006-01-02")

	for _, sub := range subs {
		if sub.LastNotifiedAt.Valid && sub.LastNotifiedAt.Time.Format("2006-01-02") == today {
			continue
		}

		valuation, err := s.fundService.GetValuation(ctx, sub.Code)
		if err != nil {
			slog.Warn("skip subscription without valuation", slog.String("rqID", rqID), slog.String("op", op), slog.String("code", sub.Code))
			continue
		}

		text := ""
		switch {
		case sub.ThresholdUp != nil && valuation.EstRate.GreaterThanOrEqual(*sub.ThresholdUp):
			text = fmt.Sprintf("📈 *%s* (%s) is up %s%%, above your %s%% threshold", valuation.Name, sub.Code, valuation.EstRate, sub.ThresholdUp)
		case sub.ThresholdDown != nil && valuation.EstRate.LessThanOrEqual(sub.ThresholdDown.Neg()):
			text = fmt.Sprintf("📉 *%s* (%s) is down %s%%, below your -%s%% threshold", valuation.Name, sub.Code, valuation.EstRate, sub.ThresholdDown)
		}
		if text == "" {
			continue
		}

		if err = s.notifier.Send(sub.ChatID, text); err != nil {
			continue
		}

		if err = s.repo.TouchSubscriptionNotified(ctx, sub.ID); err != nil {
			slog.Error("got error from repo.TouchSubscriptionNotified", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		}
	}

	return nil
}
