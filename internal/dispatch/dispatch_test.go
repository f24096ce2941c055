package dispatch_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/leadbridge/bridge/internal/crm"
	"github.com/leadbridge/bridge/internal/dispatch"
	"github.com/leadbridge/bridge/internal/event"
	"github.com/leadbridge/bridge/internal/model"
)

// Mock AmoCRM adapter
type mockAmoCRM struct {
	syncLeadFn      func(ctx context.Context, userID int64, record crm.SyncRecord, matchBy model.MatchStrategy) error
	capturedRecord  *crm.SyncRecord
	capturedMatchBy model.MatchStrategy
	syncCalls       int
}

func (m *mockAmoCRM) GetLead(ctx context.Context, userID int64, leadID string) (*model.Lead, error) {
	return nil, nil
}

func (m *mockAmoCRM) GetContact(ctx context.Context, userID int64, contactID string) (*model.Contact, error) {
	return nil, nil
}

func (m *mockAmoCRM) SyncLead(ctx context.Context, userID int64, record crm.SyncRecord, matchBy model.MatchStrategy) error {
	m.syncCalls++
	m.capturedRecord = &record
	m.capturedMatchBy = matchBy
	if m.syncLeadFn != nil {
		return m.syncLeadFn(ctx, userID, record, matchBy)
	}
	return nil
}

// Mock LPTracker adapter
type mockLPTracker struct {
	syncLeadFn     func(ctx context.Context, userID int64, record crm.SyncRecord, matchBy model.MatchStrategy) error
	capturedRecord *crm.SyncRecord
	syncCalls      int
}

func (m *mockLPTracker) GetLead(ctx context.Context, userID int64, leadID string) (*model.Lead, error) {
	return nil, nil
}

func (m *mockLPTracker) GetContact(ctx context.Context, userID int64, contactID string) (*model.Contact, error) {
	return nil, nil
}

func (m *mockLPTracker) SyncLead(ctx context.Context, userID int64, record crm.SyncRecord, matchBy model.MatchStrategy) error {
	m.syncCalls++
	m.capturedRecord = &record
	if m.syncLeadFn != nil {
		return m.syncLeadFn(ctx, userID, record, matchBy)
	}
	return nil
}

var _ = Describe("Dispatcher", func() {
	var (
		dispatcher *dispatch.Dispatcher
		amo        *mockAmoCRM
		lp         *mockLPTracker
		ctx        context.Context
		evctx      *event.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		amo = &mockAmoCRM{}
		lp = &mockLPTracker{}
		dispatcher = dispatch.New(amo, lp)

		evctx = &event.Context{
			Event: event.NewLPTrackerEvent(map[string]any{"action": "lead_update"}),
			Lead: &model.Lead{
				ID:    "3001",
				Name:  "Enterprise deal",
				Price: "15000",
				CustomFields: []model.CustomField{
					{ID: "101", Name: "city", Values: []string{"Moscow"}},
					{Name: "source", Values: []string{"landing"}},
				},
			},
			Contacts: []model.Contact{
				{ID: "1", Name: "No Phone", Email: "np@example.com"},
				{ID: "2", Name: "Ivan Petrov", Phone: "+79001234567", Email: "ivan@example.com"},
			},
		}
	})

	Describe("Dispatch", func() {
		It("routes each action to its target adapter", func() {
			rule := model.SyncRule{
				ID:     12,
				UserID: 7,
				Actions: []model.RuleAction{
					{Type: model.ActionSyncToAmoCRM},
					{Type: model.ActionSyncToLPTracker},
				},
			}

			err := dispatcher.Dispatch(ctx, 7, rule, evctx)

			Expect(err).NotTo(HaveOccurred())
			Expect(amo.syncCalls).To(Equal(1))
			Expect(lp.syncCalls).To(Equal(1))
		})

		It("builds the record from the enriched lead and best contact", func() {
			rule := model.SyncRule{
				Actions: []model.RuleAction{{Type: model.ActionSyncToAmoCRM}},
			}

			err := dispatcher.Dispatch(ctx, 7, rule, evctx)

			Expect(err).NotTo(HaveOccurred())
			record := amo.capturedRecord
			Expect(record).NotTo(BeNil())
			Expect(record.LeadName).To(Equal("Enterprise deal"))
			Expect(record.Price).To(Equal("15000"))
			// the contact carrying a phone wins over the first listed one
			Expect(record.ContactName).To(Equal("Ivan Petrov"))
			Expect(record.ContactPhone).To(Equal("+79001234567"))
			Expect(record.CustomFields).To(HaveKeyWithValue("101", "Moscow"))
			// fields without an id fall back to their name as the key
			Expect(record.CustomFields).To(HaveKeyWithValue("source", "landing"))
		})

		It("applies name fallbacks when the payload is bare", func() {
			bare := &event.Context{
				Event: event.NewLPTrackerEvent(map[string]any{}),
			}
			rule := model.SyncRule{
				Actions: []model.RuleAction{{Type: model.ActionSyncToLPTracker}},
			}

			err := dispatcher.Dispatch(ctx, 7, rule, bare)

			Expect(err).NotTo(HaveOccurred())
			Expect(lp.capturedRecord.LeadName).To(Equal("Untitled lead"))
			Expect(lp.capturedRecord.ContactName).To(Equal("Unknown contact"))
		})

		It("defaults the match strategy to phone", func() {
			rule := model.SyncRule{
				Actions: []model.RuleAction{{Type: model.ActionSyncToAmoCRM}},
			}

			err := dispatcher.Dispatch(ctx, 7, rule, evctx)

			Expect(err).NotTo(HaveOccurred())
			Expect(amo.capturedMatchBy).To(Equal(model.MatchByPhone))
		})

		It("passes the action's explicit match strategy through", func() {
			rule := model.SyncRule{
				Actions: []model.RuleAction{
					{Type: model.ActionSyncToAmoCRM, MatchBy: model.MatchByEmail},
				},
			}

			err := dispatcher.Dispatch(ctx, 7, rule, evctx)

			Expect(err).NotTo(HaveOccurred())
			Expect(amo.capturedMatchBy).To(Equal(model.MatchByEmail))
		})

		It("carries the action's targeting detail onto the record", func() {
			rule := model.SyncRule{
				Actions: []model.RuleAction{
					{
						Type:          model.ActionSyncToLPTracker,
						PipelineID:    "9",
						StatusID:      "44",
						FieldMappings: map[string]string{"city": "region"},
					},
				},
			}

			err := dispatcher.Dispatch(ctx, 7, rule, evctx)

			Expect(err).NotTo(HaveOccurred())
			record := lp.capturedRecord
			Expect(record.PipelineID).To(Equal("9"))
			Expect(record.StatusID).To(Equal("44"))
			Expect(record.FieldMappings).To(HaveKeyWithValue("city", "region"))
		})

		It("skips actions with an unknown type", func() {
			rule := model.SyncRule{
				Actions: []model.RuleAction{
					{Type: model.ActionType("sync_to_bitrix")},
					{Type: model.ActionSyncToAmoCRM},
				},
			}

			err := dispatcher.Dispatch(ctx, 7, rule, evctx)

			Expect(err).NotTo(HaveOccurred())
			Expect(amo.syncCalls).To(Equal(1))
			Expect(lp.syncCalls).To(Equal(0))
		})

		It("isolates a failing action from its siblings", func() {
			amo.syncLeadFn = func(ctx context.Context, userID int64, record crm.SyncRecord, matchBy model.MatchStrategy) error {
				return errors.New("upstream 502")
			}
			rule := model.SyncRule{
				Actions: []model.RuleAction{
					{Type: model.ActionSyncToAmoCRM},
					{Type: model.ActionSyncToLPTracker},
				},
			}

			err := dispatcher.Dispatch(ctx, 7, rule, evctx)

			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("upstream 502"))
			// the second action still ran
			Expect(lp.syncCalls).To(Equal(1))
		})

		It("does nothing for a rule without actions", func() {
			err := dispatcher.Dispatch(ctx, 7, model.SyncRule{}, evctx)

			Expect(err).NotTo(HaveOccurred())
			Expect(amo.syncCalls).To(Equal(0))
			Expect(lp.syncCalls).To(Equal(0))
		})
	})
})
