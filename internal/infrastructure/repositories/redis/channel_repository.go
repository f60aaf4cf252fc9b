package redis

import (
	"context"
	"fmt"
	"sort"

	"pttrelay/internal/core/domain"
	"pttrelay/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

// KEYS: members zset, channel index set, seq counter. ARGV: conn, channel.
var addMemberScript = redis.NewScript(`
if redis.call('ZSCORE', KEYS[1], ARGV[1]) then
  return 0
end
local seq = redis.call('INCR', KEYS[3])
redis.call('ZADD', KEYS[1], seq, ARGV[1])
redis.call('SADD', KEYS[2], ARGV[2])
return 1
`)

// KEYS: members zset, channel index set. ARGV: conn, channel.
var removeMemberScript = redis.NewScript(`
local removed = redis.call('ZREM', KEYS[1], ARGV[1])
local remaining = redis.call('ZCARD', KEYS[1])
if remaining == 0 then
  redis.call('SREM', KEYS[2], ARGV[2])
end
return {removed, remaining}
`)

// RedisChannelRepository stores each roster as a sorted set scored by join
// order, plus a set of active channel IDs.
type RedisChannelRepository struct {
	client *redis.Client
	prefix string
}

func NewRedisChannelRepository(client *redis.Client, prefix string) *RedisChannelRepository {
	return &RedisChannelRepository{
		client: client,
		prefix: prefix,
	}
}

var _ ports.ChannelRepository = (*RedisChannelRepository)(nil)

func (r *RedisChannelRepository) membersKey(id domain.ChannelID) string {
	return fmt.Sprintf("%schannel:%s:members", r.prefix, id)
}

func (r *RedisChannelRepository) channelsKey() string {
	return r.prefix + "channels"
}

func (r *RedisChannelRepository) seqKey() string {
	return r.prefix + "channel:seq"
}

func (r *RedisChannelRepository) AddMember(ctx context.Context, channelID domain.ChannelID, connID domain.ConnectionID) (bool, error) {
	added, err := addMemberScript.Run(ctx, r.client,
		[]string{r.membersKey(channelID), r.channelsKey(), r.seqKey()},
		string(connID), string(channelID),
	).Int()
	if err != nil {
		return false, fmt.Errorf("failed to add channel member in Redis: %w", err)
	}
	return added == 1, nil
}

func (r *RedisChannelRepository) RemoveMember(ctx context.Context, channelID domain.ChannelID, connID domain.ConnectionID) (bool, int, error) {
	res, err := removeMemberScript.Run(ctx, r.client,
		[]string{r.membersKey(channelID), r.channelsKey()},
		string(connID), string(channelID),
	).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("failed to remove channel member in Redis: %w", err)
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("unexpected reply from remove script: %v", res)
	}
	return res[0] == 1, int(res[1]), nil
}

func (r *RedisChannelRepository) IsMember(ctx context.Context, channelID domain.ChannelID, connID domain.ConnectionID) (bool, error) {
	err := r.client.ZScore(ctx, r.membersKey(channelID), string(connID)).Err()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check channel member in Redis: %w", err)
	}
	return true, nil
}

func (r *RedisChannelRepository) Members(ctx context.Context, channelID domain.ChannelID) ([]domain.ConnectionID, error) {
	ids, err := r.client.ZRange(ctx, r.membersKey(channelID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get channel members from Redis: %w", err)
	}

	members := make([]domain.ConnectionID, len(ids))
	for i, id := range ids {
		members[i] = domain.ConnectionID(id)
	}
	return members, nil
}

func (r *RedisChannelRepository) ListChannels(ctx context.Context) ([]domain.ChannelSummary, error) {
	ids, err := r.client.SMembers(ctx, r.channelsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list channels from Redis: %w", err)
	}
	if len(ids) == 0 {
		return []domain.ChannelSummary{}, nil
	}

	cmds := make([]*redis.IntCmd, len(ids))
	_, err = r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.ZCard(ctx, r.membersKey(domain.ChannelID(id)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to count channel members in Redis: %w", err)
	}

	summaries := make([]domain.ChannelSummary, 0, len(ids))
	for i, id := range ids {
		if n := cmds[i].Val(); n > 0 {
			summaries = append(summaries, domain.ChannelSummary{ID: domain.ChannelID(id), Members: int(n)})
		}
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].ID < summaries[j].ID })
	return summaries, nil
}

// Reset drops every roster. Rosters reference connections owned by this
// process, so entries left over from a previous run are meaningless.
func (r *RedisChannelRepository) Reset(ctx context.Context) (int, error) {
	ids, err := r.client.SMembers(ctx, r.channelsKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list channels from Redis: %w", err)
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, r.membersKey(domain.ChannelID(id)))
	}
	keys = append(keys, r.channelsKey())

	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return 0, fmt.Errorf("failed to reset channels in Redis: %w", err)
	}
	return len(ids), nil
}
