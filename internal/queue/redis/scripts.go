package redis

import "github.com/redis/go-redis/v9"

// Every script receives the same keys:
//
//	KEYS[1] msgs        HASH seq -> message record (JSON)
//	KEYS[2] available   ZSET seq scored by seq
//	KEYS[3] locked      ZSET seq scored by lock expiry (unix ms)
//	KEYS[4] deliveries  HASH seq -> delivery count
//	KEYS[5] tokens      HASH seq -> lock token
//	KEYS[6] deadletter  ZSET seq scored by seq
//	KEYS[7] seq         STRING counter
//
// Scripts that settle or claim messages first reclaim expired locks, so lock
// expiry is applied lazily and atomically with the operation itself.

const reclaimLua = `
local function release(seq, maxDelivery)
  redis.call('HDEL', KEYS[5], seq)
  redis.call('ZREM', KEYS[3], seq)
  local count = tonumber(redis.call('HGET', KEYS[4], seq) or '0')
  if count >= maxDelivery then
    redis.call('ZADD', KEYS[6], seq, seq)
    return
  end
  redis.call('ZADD', KEYS[2], seq, seq)
end

local function reclaim(now, maxDelivery)
  local expired = redis.call('ZRANGEBYSCORE', KEYS[3], '-inf', now)
  for _, seq in ipairs(expired) do
    release(seq, maxDelivery)
  end
end
`

// ARGV: record
var sendScript = redis.NewScript(`
local seq = redis.call('INCR', KEYS[7])
redis.call('HSET', KEYS[1], seq, ARGV[1])
redis.call('HSET', KEYS[4], seq, 0)
redis.call('ZADD', KEYS[2], seq, seq)
return seq
`)

// ARGV: now, maxDelivery, lockedUntil, n, token1..tokenN
// Returns {{seq, record, deliveryCount, token}, ...}
var receiveScript = redis.NewScript(reclaimLua + `
local now = tonumber(ARGV[1])
local maxDelivery = tonumber(ARGV[2])
local n = tonumber(ARGV[4])
reclaim(now, maxDelivery)

local claimed = {}
local seqs = redis.call('ZRANGE', KEYS[2], 0, n - 1)
for i, seq in ipairs(seqs) do
  redis.call('ZREM', KEYS[2], seq)
  local count = redis.call('HINCRBY', KEYS[4], seq, 1)
  local token = ARGV[4 + i]
  redis.call('HSET', KEYS[5], seq, token)
  redis.call('ZADD', KEYS[3], ARGV[3], seq)
  table.insert(claimed, {seq, redis.call('HGET', KEYS[1], seq), count, token})
end
return claimed
`)

// ARGV: now, maxDelivery, seq, token
// Returns 1 when the message was removed, 0 when the lock was lost.
var completeScript = redis.NewScript(reclaimLua + `
reclaim(tonumber(ARGV[1]), tonumber(ARGV[2]))

local seq = ARGV[3]
if redis.call('HGET', KEYS[5], seq) ~= ARGV[4] then
  return 0
end
redis.call('ZREM', KEYS[3], seq)
redis.call('HDEL', KEYS[5], seq)
redis.call('HDEL', KEYS[4], seq)
redis.call('HDEL', KEYS[1], seq)
return 1
`)

// ARGV: now, maxDelivery, seq, token
// Returns 1 when the lock was released, 0 when the lock was lost.
var abandonScript = redis.NewScript(reclaimLua + `
local maxDelivery = tonumber(ARGV[2])
reclaim(tonumber(ARGV[1]), maxDelivery)

local seq = ARGV[3]
if redis.call('HGET', KEYS[5], seq) ~= ARGV[4] then
  return 0
end
release(seq, maxDelivery)
return 1
`)

// ARGV: n
// Read-only. Returns {{seq, record, deliveryCount, lockExpiry or empty string}, ...}
// for the first n available messages and every locked message.
var peekScript = redis.NewScript(`
local n = tonumber(ARGV[1])
local out = {}

for _, seq in ipairs(redis.call('ZRANGE', KEYS[2], 0, n - 1)) do
  local count = redis.call('HGET', KEYS[4], seq) or '0'
  table.insert(out, {seq, redis.call('HGET', KEYS[1], seq), count, ''})
end

local locked = redis.call('ZRANGE', KEYS[3], 0, -1, 'WITHSCORES')
for i = 1, #locked, 2 do
  local seq = locked[i]
  local count = redis.call('HGET', KEYS[4], seq) or '0'
  table.insert(out, {seq, redis.call('HGET', KEYS[1], seq), count, locked[i + 1]})
end
return out
`)

// ARGV: now, maxDelivery, n
// Returns {{seq, record, deliveryCount}, ...}
var deadLettersScript = redis.NewScript(reclaimLua + `
reclaim(tonumber(ARGV[1]), tonumber(ARGV[2]))

local out = {}
for _, seq in ipairs(redis.call('ZRANGE', KEYS[6], 0, tonumber(ARGV[3]) - 1)) do
  local count = redis.call('HGET', KEYS[4], seq) or '0'
  table.insert(out, {seq, redis.call('HGET', KEYS[1], seq), count})
end
return out
`)
