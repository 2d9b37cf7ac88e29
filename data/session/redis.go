package session

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

var ErrNotFound = errors.New("session not found")

type RedisSession struct {
	redis *redis.Client
	cfg   *config.Config
}

func NewRedisSession(redisClient *redis.Client, cfg *config.Config) *RedisSession {
	return &RedisSession{redis: redisClient, cfg: cfg}
}

func sessionKey(sid string) string {
	return fmt.Sprintf("session:%s", sid)
}

func (s *RedisSession) GetSession(ctx context.Context, sid string) (model.Session, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)

	res, err := s.redis.Get(ctx, sessionKey(sid)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.Session{}, ErrNotFound
		}
		slog.Error("failed on redis.Get in GetSession", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return model.Session{}, err
	}

	session := model.Session{}
	if err := json.Unmarshal([]byte(res), &session); err != nil {
		slog.Error("can't unmarshall session", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return model.Session{}, err
	}

	return session, nil
}

func (s *RedisSession) SetSession(ctx context.Context, sid string, session model.Session) error {
	rqID := utils.GetRequestIDFromCtx(ctx)

	sessionJson, err := json.Marshal(session)
	if err != nil {
		slog.Error("can't marshall session", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return err
	}

	_, err = s.redis.Set(ctx, sessionKey(sid), sessionJson, s.cfg.Session.Expiration).Result()
	if err != nil {
		slog.Error("failed on redis.Set in SetSession", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return err
	}

	return nil
}

func (s *RedisSession) DeleteSession(ctx context.Context, sid string) error {
	rqID := utils.GetRequestIDFromCtx(ctx)

	_, err := s.redis.Del(ctx, sessionKey(sid)).Result()
	if err != nil {
		slog.Error("failed on redis.Del in DeleteSession", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return err
	}

	return nil
}
