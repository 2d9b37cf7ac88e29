package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/tiangangQiu/FundVal-Live/config"
	"github.com/tiangangQiu/FundVal-Live/internal/model"
	"github.com/tiangangQiu/FundVal-Live/utils"
)

type RedisCache struct {
	redis *redis.Client
	cfg   *config.Config
}

func NewRedisCache(redisClient *redis.Client, cfg *config.Config) *RedisCache {
	return &RedisCache{redis: redisClient, cfg: cfg}
}

func valuationKey(code string) string {
	return fmt.Sprintf("valuation:%s", code)
}

func (r *RedisCache) SetValuation(ctx context.Context, valuation model.Valuation) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	slog.Debug("SetValuation start", slog.String("rqID", rqID), slog.String("code", valuation.Code))

	valuationJson, err := json.Marshal(valuation)
	if err != nil {
		slog.Error(
			"can't marshall valuation in SetValuation",
			slog.String("rqID", rqID),
			slog.String("err", err.Error()),
			slog.Any("valuation", valuation),
		)
		return errors.New("can't marshall valuation")
	}

	_, err = r.redis.Set(ctx, valuationKey(valuation.Code), valuationJson, r.cfg.Cache.ValuationExpiration).Result()
	if err != nil {
		slog.Error("failed on redis.Set", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return err
	}

	slog.Debug("SetValuation completed", slog.String("rqID", rqID))

	return nil
}

func (r *RedisCache) SetValuations(ctx context.Context, valuations []model.Valuation) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	slog.Debug("SetValuations start", slog.String("rqID", rqID))

	pipe := r.redis.Pipeline()
	for _, valuation := range valuations {
		valuationJson, err := json.Marshal(valuation)
		if err != nil {
			slog.Error(
				"can't marshall valuation in SetValuations",
				slog.String("rqID", rqID),
				slog.String("err", err.Error()),
				slog.Any("valuation", valuation),
			)
			return errors.New("can't marshall valuation")
		}

		pipe.Set(ctx, valuationKey(valuation.Code), valuationJson, r.cfg.Cache.ValuationExpiration)
	}

	_, err := pipe.Exec(ctx)
	if err != nil {
		slog.Error("failed on pipe.Exec", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return err
	}

	slog.Debug("SetValuations completed", slog.String("rqID", rqID))

	return nil
}

func (r *RedisCache) GetValuation(ctx context.Context, code string) (model.Valuation, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	slog.Debug("GetValuation start", slog.String("rqID", rqID), slog.String("code", code))

	res, err := r.redis.Get(ctx, valuationKey(code)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Error("failed on redis.Get", slog.String("rqID", rqID), slog.String("err", err.Error()), slog.String("key", code))
		}
		return model.Valuation{}, err
	}

	valuation := model.Valuation{}
	err = json.Unmarshal([]byte(res), &valuation)
	if err != nil {
		slog.Error(
			"can't unmarshall valuation in GetValuation",
			slog.String("rqID", rqID),
			slog.String("err", err.Error()),
			slog.String("resultFromRedis", res),
		)
		return model.Valuation{}, errors.New("can't unmarshall valuation")
	}

	slog.Debug("GetValuation finished", slog.String("rqID", rqID))

	return valuation, nil
}
