/*
Package cache provides the Redis-backed read-through cache in front of the
scenario and plan stores.

# Overview

The package wraps a go-redis client behind a Manager that owns the
connection lifecycle: initialization, periodic health checks, and graceful
shutdown. Stores use the JSON helpers plus the key-convention functions
(ScenarioKey, ScenarioVersionKey, PlanKey) so invalidation stays in one
place.

# Core types

  - Manager: holds the Redis client and pool configuration and exposes
    Get/Set/Delete/Exists plus the GetJSON/SetJSON convenience pair.
  - Config: address, credentials, pool sizing, default TTL, and health
    check interval.

Misses surface as the ErrCacheMiss sentinel; callers branch with
IsCacheMiss and fall through to the backing store.

This package is internal and should not be imported by external projects.
*/
package cache
