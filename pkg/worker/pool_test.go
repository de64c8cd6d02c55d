package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/streamchat/pkg/eventstream"
	"github.com/papercomputeco/streamchat/pkg/logger"
	"github.com/papercomputeco/streamchat/pkg/storage"
	"github.com/papercomputeco/streamchat/pkg/storage/inmemory"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*eventstream.MessagePersistedEvent
	err    error
}

func (p *recordingPublisher) PublishMessage(_ context.Context, event *eventstream.MessagePersistedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

// newTestPool creates a worker pool backed by an in-memory driver with one
// session "s1" owned by "u1".
// Callers should "wp.Close()" to drain enqueued jobs before asserting storage state.
func newTestPool(pub eventstream.Publisher) (*Pool, *inmemory.Driver) {
	driver := inmemory.NewDriver()
	Expect(driver.CreateSession(context.Background(), &storage.Session{
		ID:     "s1",
		UserID: "u1",
		Title:  "New chat",
	})).To(Succeed())

	wp, err := NewPool(&Config{
		Driver:    driver,
		Publisher: pub,
		Logger:    logger.New(logger.WithDebug(true), logger.WithWriter(GinkgoWriter)),
	})
	Expect(err).NotTo(HaveOccurred())

	return wp, driver
}

func assistantJob(id, content string) Job {
	started := time.Unix(1735689600, 0).UTC()
	return Job{
		Message: &storage.Message{
			ID:        id,
			SessionID: "s1",
			Role:      "assistant",
			Content:   content,
			CreatedAt: started.Add(time.Second),
		},
		UserID:      "u1",
		Provider:    "dashscope",
		Model:       "qwen-plus",
		StartedAt:   started,
		CompletedAt: started.Add(time.Second),
		Fragments:   3,
		EndReason:   "terminator",
	}
}

var _ = Describe("Worker Pool", func() {
	var (
		wp     *Pool
		driver *inmemory.Driver
		pub    *recordingPublisher
		ctx    context.Context
	)

	BeforeEach(func() {
		pub = &recordingPublisher{}
		wp, driver = newTestPool(pub)
		ctx = context.Background()
	})

	It("requires a driver", func() {
		_, err := NewPool(&Config{})
		Expect(err).To(HaveOccurred())
		wp.Close()
	})

	It("applies default sizes", func() {
		Expect(wp.config.NumWorkers).To(Equal(defaultNumWorkers))
		Expect(cap(wp.queue)).To(Equal(int(defaultJobQueueSize)))
		wp.Close()
	})

	Describe("Enqueue", func() {
		It("returns true when the queue has capacity", func() {
			Expect(wp.Enqueue(assistantJob("m1", "hi"))).To(BeTrue())
			wp.Close()
		})

		It("drops jobs when the queue is full", func() {
			// A pool with no running workers keeps every job in the queue.
			full := &Pool{
				config: &Config{Driver: driver},
				queue:  make(chan Job, 1),
				logger: logger.Nop(),
			}
			Expect(full.Enqueue(assistantJob("m1", "one"))).To(BeTrue())
			Expect(full.Enqueue(assistantJob("m2", "two"))).To(BeFalse())
			wp.Close()
		})
	})

	Describe("after Close", func() {
		It("drops new jobs instead of panicking", func() {
			wp.Close()

			var queued bool
			Expect(func() { queued = wp.Enqueue(assistantJob("m1", "late")) }).NotTo(Panic())
			Expect(queued).To(BeFalse())

			msgs, err := driver.ListMessages(ctx, "s1")
			Expect(err).NotTo(HaveOccurred())
			Expect(msgs).To(BeEmpty())
		})

		It("tolerates a second Close", func() {
			wp.Close()
			Expect(wp.Close).NotTo(Panic())
		})

		It("never sends on the closed queue while producers race the close", func() {
			var producers sync.WaitGroup
			start := make(chan struct{})
			for i := range 8 {
				producers.Add(1)
				go func() {
					defer GinkgoRecover()
					defer producers.Done()
					<-start
					for j := range 50 {
						job := assistantJob(fmt.Sprintf("m-%d-%d", i, j), "x")
						Expect(func() { wp.Enqueue(job) }).NotTo(Panic())
					}
				}()
			}

			close(start)
			wp.Close()
			producers.Wait()
		})
	})

	Describe("processing", func() {
		It("persists the message and publishes an event", func() {
			wp.Enqueue(assistantJob("m1", "Hello"))
			wp.Close()

			msgs, err := driver.ListMessages(ctx, "s1")
			Expect(err).NotTo(HaveOccurred())
			Expect(msgs).To(HaveLen(1))
			Expect(msgs[0].Content).To(Equal("Hello"))

			Expect(pub.events).To(HaveLen(1))
			event := pub.events[0]
			Expect(event.EventType).To(Equal(eventstream.EventTypeMessagePersisted))
			Expect(event.Session.ID).To(Equal("s1"))
			Expect(event.Session.UserID).To(Equal("u1"))
			Expect(event.Message.Content).To(Equal("Hello"))
			Expect(event.Stream.DurationMs).To(Equal(int64(1000)))
			Expect(event.Stream.Fragments).To(Equal(3))
		})

		It("keeps the message when publishing fails", func() {
			pub.err = errors.New("broker down")
			wp.Enqueue(assistantJob("m1", "Hello"))
			wp.Close()

			msgs, err := driver.ListMessages(ctx, "s1")
			Expect(err).NotTo(HaveOccurred())
			Expect(msgs).To(HaveLen(1))
		})

		It("skips publishing when the store rejects the message", func() {
			job := assistantJob("m1", "Hello")
			job.Message.SessionID = "missing"
			wp.Enqueue(job)
			wp.Close()

			Expect(pub.events).To(BeEmpty())
		})

		It("drains every queued job on close", func() {
			for i, text := range []string{"a", "b", "c", "d", "e"} {
				job := assistantJob(text, text)
				job.Message.CreatedAt = job.Message.CreatedAt.Add(time.Duration(i) * time.Second)
				Expect(wp.Enqueue(job)).To(BeTrue())
			}
			wp.Close()

			msgs, err := driver.ListMessages(ctx, "s1")
			Expect(err).NotTo(HaveOccurred())
			Expect(msgs).To(HaveLen(5))
		})
	})

	It("works without a publisher", func() {
		wp.Close()

		bare, drv := newTestPool(nil)
		bare.Enqueue(assistantJob("m1", "Hello"))
		bare.Close()

		msgs, err := drv.ListMessages(ctx, "s1")
		Expect(err).NotTo(HaveOccurred())
		Expect(msgs).To(HaveLen(1))
	})
})
