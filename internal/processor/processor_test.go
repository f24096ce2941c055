package processor_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/leadbridge/bridge/common/id"
	"github.com/leadbridge/bridge/internal/event"
	"github.com/leadbridge/bridge/internal/model"
	"github.com/leadbridge/bridge/internal/processor"
	"github.com/leadbridge/bridge/internal/queue"
)

// Mock queue producer
type mockProducer struct {
	enqueueFn   func(ctx context.Context, msg queue.EventMessage) (string, error)
	capturedMsg *queue.EventMessage
}

func (m *mockProducer) Enqueue(ctx context.Context, msg queue.EventMessage) (string, error) {
	m.capturedMsg = &msg
	if m.enqueueFn != nil {
		return m.enqueueFn(ctx, msg)
	}
	return "1700000000000-0", nil
}

func (m *mockProducer) Close() error {
	return nil
}

// Mock rule source
type mockRuleSource struct {
	rulesForFn func(ctx context.Context, userID int64) ([]model.SyncRule, error)
}

func (m *mockRuleSource) RulesFor(ctx context.Context, userID int64) ([]model.SyncRule, error) {
	if m.rulesForFn != nil {
		return m.rulesForFn(ctx, userID)
	}
	return nil, nil
}

// Mock owner directory
type mockOwnerDirectory struct {
	listByPlatformFn func(ctx context.Context, platform model.Source) ([]model.Settings, error)
}

func (m *mockOwnerDirectory) ListByPlatform(ctx context.Context, platform model.Source) ([]model.Settings, error) {
	if m.listByPlatformFn != nil {
		return m.listByPlatformFn(ctx, platform)
	}
	return nil, nil
}

// Mock enricher
type mockEnricher struct {
	enrichFn func(ctx context.Context, userID int64, evt event.Event) (*event.Context, error)
}

func (m *mockEnricher) Enrich(ctx context.Context, userID int64, evt event.Event) (*event.Context, error) {
	if m.enrichFn != nil {
		return m.enrichFn(ctx, userID, evt)
	}
	return &event.Context{Event: evt}, nil
}

// Mock dedup store
type mockDedupStore struct {
	seenFn func(ctx context.Context, key string) (bool, error)
	marked []string
}

func (m *mockDedupStore) Seen(ctx context.Context, key string) (bool, error) {
	if m.seenFn != nil {
		return m.seenFn(ctx, key)
	}
	return false, nil
}

func (m *mockDedupStore) Mark(ctx context.Context, key string) error {
	m.marked = append(m.marked, key)
	return nil
}

// In-memory dedup store whose marks persist across calls until expire()
// simulates the TTL lapsing.
type memoryDedupStore struct {
	keys map[string]bool
}

func newMemoryDedupStore() *memoryDedupStore {
	return &memoryDedupStore{keys: map[string]bool{}}
}

func (m *memoryDedupStore) Seen(ctx context.Context, key string) (bool, error) {
	return m.keys[key], nil
}

func (m *memoryDedupStore) Mark(ctx context.Context, key string) error {
	m.keys[key] = true
	return nil
}

func (m *memoryDedupStore) expire() {
	m.keys = map[string]bool{}
}

// Mock dispatcher
type mockDispatcher struct {
	dispatchFn    func(ctx context.Context, userID int64, rule model.SyncRule, evctx *event.Context) error
	dispatched    []model.SyncRule
	capturedEvctx *event.Context
}

func (m *mockDispatcher) Dispatch(ctx context.Context, userID int64, rule model.SyncRule, evctx *event.Context) error {
	m.dispatched = append(m.dispatched, rule)
	m.capturedEvctx = evctx
	if m.dispatchFn != nil {
		return m.dispatchFn(ctx, userID, rule, evctx)
	}
	return nil
}

// Mock execution counter
type mockExecutionCounter struct {
	incrementFn func(ctx context.Context, ruleID int64) error
	incremented []int64
}

func (m *mockExecutionCounter) IncrementExecution(ctx context.Context, ruleID int64) error {
	m.incremented = append(m.incremented, ruleID)
	if m.incrementFn != nil {
		return m.incrementFn(ctx, ruleID)
	}
	return nil
}

var _ = Describe("Processor", func() {
	var (
		proc       *processor.Processor
		producer   *mockProducer
		rules      *mockRuleSource
		owners     *mockOwnerDirectory
		enricher   *mockEnricher
		dedupStore *mockDedupStore
		dispatcher *mockDispatcher
		counter    *mockExecutionCounter
		ctx        context.Context
	)

	lpPayload := []byte(`{"action":"lead_update","action_time":"1700000000","project_id":"42","lead":{"id":3001,"stage_id":12}}`)

	matchingRule := func(ruleID int64) model.SyncRule {
		return model.SyncRule{
			ID:            ruleID,
			UserID:        7,
			WebhookSource: model.SourceLPTracker,
			IsActive:      true,
			Conditions: model.RuleConditions{
				Operator: model.OperatorAnd,
				Rules: []model.Condition{
					{Type: model.ConditionEventType, Value: "lead_update"},
				},
			},
			Actions: []model.RuleAction{{Type: model.ActionSyncToAmoCRM}},
		}
	}

	BeforeEach(func() {
		ctx = context.Background()
		producer = &mockProducer{}
		rules = &mockRuleSource{}
		owners = &mockOwnerDirectory{
			listByPlatformFn: func(ctx context.Context, platform model.Source) ([]model.Settings, error) {
				return []model.Settings{
					{UserID: 7, Platform: model.SourceLPTracker, ProjectID: "42"},
					{UserID: 9, Platform: model.SourceAmoCRM, Subdomain: "acme"},
				}, nil
			},
		}
		enricher = &mockEnricher{}
		dedupStore = &mockDedupStore{}
		dispatcher = &mockDispatcher{}
		counter = &mockExecutionCounter{}

		err := id.Init(1)
		Expect(err).NotTo(HaveOccurred())

		proc = processor.New(producer, rules, owners, enricher, dedupStore, dispatcher, counter)
	})

	Describe("Submit", func() {
		It("enqueues the raw payload and returns the job id", func() {
			jobID, err := proc.Submit(ctx, model.SourceLPTracker, lpPayload)

			Expect(err).NotTo(HaveOccurred())
			Expect(jobID).To(Equal("1700000000000-0"))
			Expect(producer.capturedMsg).NotTo(BeNil())
			Expect(producer.capturedMsg.Source).To(Equal(model.SourceLPTracker))
			Expect(producer.capturedMsg.Payload).To(Equal(lpPayload))
			Expect(producer.capturedMsg.Attempt).To(Equal(1))
			Expect(producer.capturedMsg.EventID).NotTo(BeZero())
		})

		It("propagates enqueue failures", func() {
			producer.enqueueFn = func(ctx context.Context, msg queue.EventMessage) (string, error) {
				return "", errors.New("redis down")
			}

			_, err := proc.Submit(ctx, model.SourceAmoCRM, []byte("{}"))

			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("redis down"))
		})
	})

	Describe("Process", func() {
		Context("with a matching active rule", func() {
			BeforeEach(func() {
				rules.rulesForFn = func(ctx context.Context, userID int64) ([]model.SyncRule, error) {
					Expect(userID).To(Equal(int64(7)))
					return []model.SyncRule{matchingRule(12)}, nil
				}
			})

			It("dispatches, marks dedup and bumps the execution counter", func() {
				err := proc.Process(ctx, model.SourceLPTracker, lpPayload)

				Expect(err).NotTo(HaveOccurred())
				Expect(dispatcher.dispatched).To(HaveLen(1))
				Expect(dispatcher.dispatched[0].ID).To(Equal(int64(12)))
				Expect(dedupStore.marked).To(ConsistOf("webhook:7:3001:12:1700000000"))
				Expect(counter.incremented).To(ConsistOf(int64(12)))
			})

			It("suppresses an already-seen event", func() {
				dedupStore.seenFn = func(ctx context.Context, key string) (bool, error) {
					return true, nil
				}

				err := proc.Process(ctx, model.SourceLPTracker, lpPayload)

				Expect(err).NotTo(HaveOccurred())
				Expect(dispatcher.dispatched).To(BeEmpty())
				Expect(counter.incremented).To(BeEmpty())
			})

			It("proceeds when the dedup lookup fails", func() {
				dedupStore.seenFn = func(ctx context.Context, key string) (bool, error) {
					return false, errors.New("redis timeout")
				}

				err := proc.Process(ctx, model.SourceLPTracker, lpPayload)

				Expect(err).NotTo(HaveOccurred())
				Expect(dispatcher.dispatched).To(HaveLen(1))
			})

			It("still marks dedup when dispatch partially fails", func() {
				dispatcher.dispatchFn = func(ctx context.Context, userID int64, rule model.SyncRule, evctx *event.Context) error {
					return errors.New("upstream 502")
				}

				err := proc.Process(ctx, model.SourceLPTracker, lpPayload)

				Expect(err).NotTo(HaveOccurred())
				Expect(dedupStore.marked).To(HaveLen(1))
				Expect(counter.incremented).To(HaveLen(1))
			})

			It("suppresses a replay within the dedup window and fires again after expiry", func() {
				memory := newMemoryDedupStore()
				proc = processor.New(producer, rules, owners, enricher, memory, dispatcher, counter)

				Expect(proc.Process(ctx, model.SourceLPTracker, lpPayload)).To(Succeed())
				Expect(dispatcher.dispatched).To(HaveLen(1))

				// Same payload while the mark is alive: no second dispatch.
				Expect(proc.Process(ctx, model.SourceLPTracker, lpPayload)).To(Succeed())
				Expect(dispatcher.dispatched).To(HaveLen(1))
				Expect(counter.incremented).To(HaveLen(1))

				// Once the mark lapses the same event fires again.
				memory.expire()
				Expect(proc.Process(ctx, model.SourceLPTracker, lpPayload)).To(Succeed())
				Expect(dispatcher.dispatched).To(HaveLen(2))
				Expect(counter.incremented).To(HaveLen(2))
			})

			It("keys dedup on the default token when the payload has no timestamp", func() {
				payload := []byte(`{"action":"lead_update","project_id":"42","lead":{"id":3001}}`)

				err := proc.Process(ctx, model.SourceLPTracker, payload)

				Expect(err).NotTo(HaveOccurred())
				Expect(dedupStore.marked).To(ConsistOf("webhook:7:3001:12:default"))
			})
		})

		Context("rule filtering", func() {
			It("skips inactive rules and rules for the other source", func() {
				inactive := matchingRule(1)
				inactive.IsActive = false
				otherSource := matchingRule(2)
				otherSource.WebhookSource = model.SourceAmoCRM
				rules.rulesForFn = func(ctx context.Context, userID int64) ([]model.SyncRule, error) {
					return []model.SyncRule{inactive, otherSource, matchingRule(3)}, nil
				}

				err := proc.Process(ctx, model.SourceLPTracker, lpPayload)

				Expect(err).NotTo(HaveOccurred())
				Expect(dispatcher.dispatched).To(HaveLen(1))
				Expect(dispatcher.dispatched[0].ID).To(Equal(int64(3)))
			})

			It("skips rules whose fields the change did not touch", func() {
				r := matchingRule(5)
				r.Conditions.Rules = []model.Condition{
					{Type: model.ConditionFieldEquals, Field: "city", Value: "Moscow"},
				}
				rules.rulesForFn = func(ctx context.Context, userID int64) ([]model.SyncRule, error) {
					return []model.SyncRule{r}, nil
				}
				payload := []byte(`{"action":"lead_update","project_id":"42","action_update_fields":["name"],"lead":{"id":3001}}`)

				err := proc.Process(ctx, model.SourceLPTracker, payload)

				Expect(err).NotTo(HaveOccurred())
				Expect(dispatcher.dispatched).To(BeEmpty())
			})

			It("skips rules whose conditions do not hold", func() {
				r := matchingRule(6)
				r.Conditions.Rules = []model.Condition{
					{Type: model.ConditionEventType, Value: "lead_new"},
				}
				rules.rulesForFn = func(ctx context.Context, userID int64) ([]model.SyncRule, error) {
					return []model.SyncRule{r}, nil
				}

				err := proc.Process(ctx, model.SourceLPTracker, lpPayload)

				Expect(err).NotTo(HaveOccurred())
				Expect(dispatcher.dispatched).To(BeEmpty())
				Expect(dedupStore.marked).To(BeEmpty())
			})

			It("runs every matching rule even when one dispatch fails", func() {
				dispatcher.dispatchFn = func(ctx context.Context, userID int64, rule model.SyncRule, evctx *event.Context) error {
					if rule.ID == 1 {
						return errors.New("upstream down")
					}
					return nil
				}
				rules.rulesForFn = func(ctx context.Context, userID int64) ([]model.SyncRule, error) {
					return []model.SyncRule{matchingRule(1), matchingRule(2)}, nil
				}

				err := proc.Process(ctx, model.SourceLPTracker, lpPayload)

				Expect(err).NotTo(HaveOccurred())
				Expect(dispatcher.dispatched).To(HaveLen(2))
				Expect(counter.incremented).To(ConsistOf(int64(1), int64(2)))
			})
		})

		Context("terminal drops", func() {
			It("acknowledges a malformed payload", func() {
				err := proc.Process(ctx, model.SourceLPTracker, []byte("not json"))

				Expect(err).NotTo(HaveOccurred())
				Expect(dispatcher.dispatched).To(BeEmpty())
			})

			It("acknowledges an event whose owner cannot be resolved", func() {
				payload := []byte(`{"action":"lead_update","project_id":"999","lead":{"id":3001}}`)

				err := proc.Process(ctx, model.SourceLPTracker, payload)

				Expect(err).NotTo(HaveOccurred())
				Expect(dispatcher.dispatched).To(BeEmpty())
			})

			It("acknowledges an event without an entity id", func() {
				payload := []byte(`{"action":"lead_update","project_id":"42"}`)

				err := proc.Process(ctx, model.SourceLPTracker, payload)

				Expect(err).NotTo(HaveOccurred())
				Expect(dispatcher.dispatched).To(BeEmpty())
			})
		})

		Context("retryable failures", func() {
			It("returns the error when the settings lookup fails", func() {
				owners.listByPlatformFn = func(ctx context.Context, platform model.Source) ([]model.Settings, error) {
					return nil, errors.New("db down")
				}

				err := proc.Process(ctx, model.SourceLPTracker, lpPayload)

				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("db down"))
			})

			It("returns the error when enrichment fails", func() {
				enricher.enrichFn = func(ctx context.Context, userID int64, evt event.Event) (*event.Context, error) {
					return nil, errors.New("amocrm 503")
				}
				rules.rulesForFn = func(ctx context.Context, userID int64) ([]model.SyncRule, error) {
					return []model.SyncRule{matchingRule(12)}, nil
				}

				err := proc.Process(ctx, model.SourceLPTracker, lpPayload)

				Expect(err).To(HaveOccurred())
				Expect(dispatcher.dispatched).To(BeEmpty())
			})

			It("returns the error when rules cannot be loaded", func() {
				rules.rulesForFn = func(ctx context.Context, userID int64) ([]model.SyncRule, error) {
					return nil, errors.New("db down")
				}

				err := proc.Process(ctx, model.SourceLPTracker, lpPayload)

				Expect(err).To(HaveOccurred())
				Expect(dispatcher.dispatched).To(BeEmpty())
			})
		})

		It("resolves AmoCRM owners by subdomain", func() {
			var sawUser int64
			rules.rulesForFn = func(ctx context.Context, userID int64) ([]model.SyncRule, error) {
				sawUser = userID
				return nil, nil
			}
			payload := []byte(`{"account[subdomain]":"acme","leads[status][0][id]":"100"}`)

			err := proc.Process(ctx, model.SourceAmoCRM, payload)

			Expect(err).NotTo(HaveOccurred())
			Expect(sawUser).To(Equal(int64(9)))
		})
	})
})
