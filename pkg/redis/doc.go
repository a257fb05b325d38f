// Package redis connects to Redis through go-redis and exposes a readiness
// probe. The launch-token nonce store is its main consumer.
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
package redis
