package publish

import (
	"context"
	"time"

	"github.com/YDUTSEVOLDN/Subway/core/factory"
	corepublish "github.com/YDUTSEVOLDN/Subway/core/publish"
)

func init() {
	_ = corepublish.Register("redis", func(conf map[string]any) (corepublish.Publisher, error) {
		var c RedisConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return NewRedisPublisher(ctx, c)
	})

	_ = corepublish.Register("mqtt", func(conf map[string]any) (corepublish.Publisher, error) {
		var c MQTTConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewMQTTPublisher(c)
	})
}
