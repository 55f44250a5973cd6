package commands

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"batchrpc/internal/dispatch"
	"batchrpc/internal/shared/cache"
)

type kvCommands struct {
	cache cache.KVCache
}

// key 读取并校验 key 参数，失败时返回命令级失败结果
func (k *kvCommands) key(call *dispatch.Call) (string, dispatch.Result) {
	key, _ := call.String("key")
	if err := cache.ValidateKey(key); err != nil {
		return "", call.Fail(CodeBadArgs, err.Error())
	}
	return key, nil
}

// set 参数 {key, value, ttl?}，value 非字符串时以 JSON 保存，ttl 单位为秒
func (k *kvCommands) set(ctx context.Context, call *dispatch.Call) (dispatch.Result, error) {
	key, fail := k.key(call)
	if fail != nil {
		return fail, nil
	}

	raw, ok := call.Args["value"]
	if !ok {
		return call.Fail(CodeBadArgs, "value is required"), nil
	}
	value, isString := raw.(string)
	if !isString {
		data, err := json.Marshal(raw)
		if err != nil {
			return call.Fail(CodeBadArgs, "value is not serializable"), nil
		}
		value = string(data)
	}

	var ttl time.Duration
	if _, present := call.Args["ttl"]; present {
		secs, ok := call.Int("ttl")
		if !ok || secs < 0 || time.Duration(secs)*time.Second > cache.MaxTTL {
			return call.Fail(CodeBadArgs, "ttl must be a number of seconds up to 30 days"), nil
		}
		ttl = time.Duration(secs) * time.Second
	}

	if err := k.cache.Set(ctx, key, value, ttl); err != nil {
		return nil, err
	}
	return dispatch.Result{"key": key, "stored": true}, nil
}

func (k *kvCommands) get(ctx context.Context, call *dispatch.Call) (dispatch.Result, error) {
	key, fail := k.key(call)
	if fail != nil {
		return fail, nil
	}

	value, err := k.cache.Get(ctx, key)
	if errors.Is(err, cache.ErrNotFound) {
		return call.Fail(CodeNotFound, "key not found: "+key), nil
	}
	if err != nil {
		return nil, err
	}

	res := dispatch.Result{"key": key, "value": value}
	if ttl, err := k.cache.TTL(ctx, key); err == nil && ttl > 0 {
		res["ttl"] = int64(ttl.Round(time.Second) / time.Second)
	}
	return res, nil
}

func (k *kvCommands) del(ctx context.Context, call *dispatch.Call) (dispatch.Result, error) {
	key, fail := k.key(call)
	if fail != nil {
		return fail, nil
	}
	existed, err := k.cache.Delete(ctx, key)
	if err != nil {
		return nil, err
	}
	return dispatch.Result{"key": key, "deleted": existed}, nil
}
