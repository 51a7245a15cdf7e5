package sequence

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"kolmarket/pkg/rediskey"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

var Module = fx.Module("sequence",
	fx.Provide(NewRedisGenerator),
)

// Generator hands out human-facing codes. Campaign codes are sequential per
// day; verification codes are random one-time tokens a KOL posts publicly to
// prove handle ownership.
type Generator interface {
	NextCampaignCode(ctx context.Context) (string, error)
	VerificationCode(ctx context.Context) (string, error)
}

type RedisGenerator struct {
	rdb *redis.Client
}

type Params struct {
	fx.In

	Redis *redis.Client
}

func NewRedisGenerator(p Params) Generator {
	return &RedisGenerator{
		rdb: p.Redis,
	}
}

func (g *RedisGenerator) NextCampaignCode(ctx context.Context) (string, error) {
	date := time.Now().Format("20060102")
	key := rediskey.CampaignSequence(date)

	seq, err := g.rdb.Incr(ctx, key).Result()
	if err != nil {
		return "", err
	}
	g.rdb.Expire(ctx, key, 48*time.Hour)

	return fmt.Sprintf("CMP-%s-%04d", date, seq), nil
}

const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func (g *RedisGenerator) VerificationCode(ctx context.Context) (string, error) {
	buf := make([]byte, 8)
	for i := range buf {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeAlphabet))))
		if err != nil {
			return "", err
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return fmt.Sprintf("KOL-%s", buf), nil
}
