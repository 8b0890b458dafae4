package events

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishDeliversInSubscriptionOrder(t *testing.T) {
	b := NewBus()
	var got []string

	s1 := b.Subscribe("t", func(p any) { got = append(got, "first:"+p.(string)) })
	s2 := b.Subscribe("t", func(p any) { got = append(got, "second:"+p.(string)) })
	defer s1.Unsubscribe()
	defer s2.Unsubscribe()

	n := b.Publish("t", "x")

	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"first:x", "second:x"}, got)
}

func TestBus_TopicsAreIsolated(t *testing.T) {
	b := NewBus()
	called := false
	sub := b.Subscribe(ProgressTopic("S1", "CTD"), func(any) { called = true })
	defer sub.Unsubscribe()

	assert.Equal(t, 0, b.Publish(ProgressTopic("S1", "Sequence"), nil))
	assert.False(t, called)
}

func TestSubscription_UnsubscribeOnlyOnce(t *testing.T) {
	b := NewBus()
	sub := b.Subscribe("t", func(any) {})
	require.Equal(t, 1, b.Listeners("t"))

	assert.True(t, sub.Unsubscribe())
	assert.False(t, sub.Unsubscribe())
	assert.Equal(t, 0, b.Listeners("t"))
	assert.Equal(t, 0, b.Publish("t", nil))
}

func TestBus_ConcurrentSubscribePublish(t *testing.T) {
	b := NewBus()
	var wg sync.WaitGroup
	var mu sync.Mutex
	count := 0

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := b.Subscribe("t", func(any) {
				mu.Lock()
				count++
				mu.Unlock()
			})
			b.Publish("t", nil)
			s.Unsubscribe()
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, b.Listeners("t"))
	assert.GreaterOrEqual(t, count, 50)
}

func TestTopics(t *testing.T) {
	assert.Equal(t, "progress:S-7:Sequence", ProgressTopic("S-7", "Sequence"))
	assert.Equal(t, "table:processed_data", TableTopic("processed_data"))
}
