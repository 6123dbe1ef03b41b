package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

type orderHook struct {
	name  string
	trail *[]string
	fail  bool
	panic bool
}

func (h orderHook) BeforeHandle(ctx context.Context, _ string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
	*h.trail = append(*h.trail, "before:"+h.name)
	if h.panic {
		panic("boom")
	}
	if h.fail {
		return ctx, km, data, errors.New("rejected")
	}
	return ctx, km, append(data, h.name...), nil
}

func (h orderHook) AfterHandle(context.Context, string, kafka.Message, []byte, error) {
	*h.trail = append(*h.trail, "after:"+h.name)
}

func (h orderHook) OnError(context.Context, string, kafka.Message, []byte, error) {
	*h.trail = append(*h.trail, "error:"+h.name)
}

func TestHookChain(t *testing.T) {
	t.Run("threads data and unwinds in reverse", func(t *testing.T) {
		var trail []string
		chain := NewHookChain(orderHook{name: "a", trail: &trail}, nil, orderHook{name: "b", trail: &trail})

		_, _, data, err := chain.BeforeHandle(context.Background(), "t", kafka.Message{}, []byte(">"))
		require.NoError(t, err)
		require.Equal(t, ">ab", string(data))

		chain.AfterHandle(context.Background(), "t", kafka.Message{}, data, nil)
		require.Equal(t, []string{"before:a", "before:b", "after:b", "after:a"}, trail)
	})

	t.Run("stops at first failing hook", func(t *testing.T) {
		var trail []string
		chain := NewHookChain(orderHook{name: "a", trail: &trail, fail: true}, orderHook{name: "b", trail: &trail})
		_, _, _, err := chain.BeforeHandle(context.Background(), "t", kafka.Message{}, nil)
		require.Error(t, err)
		require.Equal(t, []string{"before:a"}, trail)
	})

	t.Run("panic becomes hook error", func(t *testing.T) {
		var trail []string
		chain := NewHookChain(orderHook{name: "a", trail: &trail, panic: true})
		_, _, _, err := chain.BeforeHandle(context.Background(), "t", kafka.Message{}, nil)
		var herr *HookError
		require.ErrorAs(t, err, &herr)
		require.Equal(t, "ERR_PANIC", herr.Code)
	})
}

func TestLoggingHookTrace(t *testing.T) {
	msg := kafka.Message{Headers: []kafka.Header{{Key: TraceHeader, Value: []byte("abc")}}}
	ctx, _, _, err := LoggingHook{}.BeforeHandle(context.Background(), "t", msg, nil)
	require.NoError(t, err)
	require.Equal(t, "abc", TraceID(ctx))
	require.Empty(t, ExtractTraceID(kafka.Message{}))
}

func TestBackoffWithJitter(t *testing.T) {
	for attempt := 1; attempt <= 10; attempt++ {
		d := backoffWithJitter(100*time.Millisecond, time.Second, attempt)
		require.Greater(t, d, time.Duration(0))
		require.LessOrEqual(t, d, time.Second)
	}
	require.LessOrEqual(t, backoffWithJitter(0, 0, 0), 50*time.Millisecond)
}

func TestEncodeValue(t *testing.T) {
	b, err := encodeValue(map[string]int{"rows": 3})
	require.NoError(t, err)
	require.JSONEq(t, `{"rows":3}`, string(b))

	b, err = encodeValue("raw")
	require.NoError(t, err)
	require.Equal(t, "raw", string(b))

	_, err = encodeValue(make(chan int))
	require.Error(t, err)
}

func TestConfigOptions(t *testing.T) {
	cfg := Config{Brokers: []string{"k1:9092"}, GroupID: "g", Workers: 4, RetryMax: 1, DLQTopic: "dlq", Compression: "zstd", WriteTimeout: time.Second}

	pc := &ProducerConfig{}
	for _, opt := range cfg.ProducerOptions() {
		opt(pc)
	}
	require.Equal(t, []string{"k1:9092"}, pc.Brokers)
	require.Equal(t, "zstd", pc.Compression)
	require.True(t, pc.HashByKey)
	require.Equal(t, time.Second, pc.WriteTimeout)

	cc := &ConsumerConfig{}
	for _, opt := range cfg.ConsumerOptions() {
		opt(cc)
	}
	require.Equal(t, "g", cc.GroupID)
	require.Equal(t, 4, cc.WorkerCount)
	require.Equal(t, 1, cc.RetryMax)
	require.Equal(t, "dlq", cc.DLQTopic)

	_, err := NewProducer()
	require.Error(t, err)
	_, err = NewConsumer()
	require.Error(t, err)
}
