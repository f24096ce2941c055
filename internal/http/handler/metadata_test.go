package handler_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/leadbridge/bridge/internal/http/handler"
	"github.com/leadbridge/bridge/internal/model"
	"github.com/leadbridge/bridge/internal/store"
)

type fakeConfigService struct {
	metadataFn       func(ctx context.Context, userID int64, platform model.Source, kind string) (*model.Metadata, error)
	capturedUserID   int64
	capturedPlatform model.Source
	capturedKind     string
}

func (f *fakeConfigService) RulesFor(ctx context.Context, userID int64) ([]model.SyncRule, error) {
	return nil, nil
}

func (f *fakeConfigService) SettingsFor(ctx context.Context, userID int64, platform model.Source) (*model.Settings, error) {
	return nil, store.ErrNotFound
}

func (f *fakeConfigService) MetadataFor(ctx context.Context, userID int64, platform model.Source, kind string) (*model.Metadata, error) {
	f.capturedUserID = userID
	f.capturedPlatform = platform
	f.capturedKind = kind
	if f.metadataFn != nil {
		return f.metadataFn(ctx, userID, platform, kind)
	}
	return nil, store.ErrNotFound
}

func (f *fakeConfigService) InvalidateUser(ctx context.Context, userID int64) error { return nil }

func (f *fakeConfigService) ClearAll(ctx context.Context) error { return nil }

type fakeMetadataService struct {
	upsertFn func(ctx context.Context, meta *model.Metadata) (*model.Metadata, error)
	saved    *model.Metadata
}

func (f *fakeMetadataService) Upsert(ctx context.Context, meta *model.Metadata) (*model.Metadata, error) {
	f.saved = meta
	if f.upsertFn != nil {
		return f.upsertFn(ctx, meta)
	}
	meta.ID = 9001
	meta.UpdatedAt = time.Unix(1700000000, 0).UTC()
	return meta, nil
}

var _ = Describe("MetadataHandler", func() {
	var (
		router   *gin.Engine
		config   *fakeConfigService
		metadata *fakeMetadataService
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		router = gin.New()
		config = &fakeConfigService{}
		metadata = &fakeMetadataService{}

		h := handler.NewMetadataHandler(config, metadata)
		router.GET("/metadata/:user_id/:platform/:kind", h.Get)
		router.PUT("/metadata", h.Upsert)
	})

	Describe("Get", func() {
		It("resolves reference data through the cached configuration path", func() {
			config.metadataFn = func(ctx context.Context, userID int64, platform model.Source, kind string) (*model.Metadata, error) {
				return &model.Metadata{
					ID:       42,
					UserID:   userID,
					Platform: platform,
					Kind:     kind,
					Value:    json.RawMessage(`{"101":"New","102":"In progress"}`),
				}, nil
			}

			req := httptest.NewRequest(http.MethodGet, "/metadata/7/amocrm/statuses", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(config.capturedUserID).To(Equal(int64(7)))
			Expect(config.capturedPlatform).To(Equal(model.SourceAmoCRM))
			Expect(config.capturedKind).To(Equal("statuses"))
			Expect(w.Body.String()).To(ContainSubstring(`"In progress"`))
		})

		It("returns 404 when no entry exists for the kind", func() {
			config.metadataFn = func(ctx context.Context, userID int64, platform model.Source, kind string) (*model.Metadata, error) {
				return nil, fmt.Errorf("loading metadata: %w", store.ErrNotFound)
			}

			req := httptest.NewRequest(http.MethodGet, "/metadata/7/lptracker/funnels", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusNotFound))
		})

		It("rejects an unknown platform", func() {
			req := httptest.NewRequest(http.MethodGet, "/metadata/7/hubspot/statuses", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		It("rejects a non-numeric user id", func() {
			req := httptest.NewRequest(http.MethodGet, "/metadata/acme/amocrm/statuses", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("Upsert", func() {
		It("stores the reference data for the user and platform", func() {
			body := `{"user_id":"7","platform":"amocrm","kind":"statuses","value":{"101":"New"}}`
			req := httptest.NewRequest(http.MethodPut, "/metadata", strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(metadata.saved).NotTo(BeNil())
			Expect(metadata.saved.UserID).To(Equal(int64(7)))
			Expect(metadata.saved.Platform).To(Equal(model.SourceAmoCRM))
			Expect(metadata.saved.Kind).To(Equal("statuses"))
			Expect(string(metadata.saved.Value)).To(MatchJSON(`{"101":"New"}`))
			Expect(w.Body.String()).To(ContainSubstring(`"id":9001`))
		})

		It("rejects a body without a kind", func() {
			body := `{"user_id":"7","platform":"amocrm","value":{}}`
			req := httptest.NewRequest(http.MethodPut, "/metadata", strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(metadata.saved).To(BeNil())
		})

		It("returns 500 when the write fails", func() {
			metadata.upsertFn = func(ctx context.Context, meta *model.Metadata) (*model.Metadata, error) {
				return nil, fmt.Errorf("storing metadata: connection refused")
			}

			body := `{"user_id":"7","platform":"lptracker","kind":"funnels","value":[]}`
			req := httptest.NewRequest(http.MethodPut, "/metadata", strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusInternalServerError))
		})
	})
})
