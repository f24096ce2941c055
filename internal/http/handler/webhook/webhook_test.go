package webhook_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/leadbridge/bridge/internal/http/handler/webhook"
	"github.com/leadbridge/bridge/internal/model"
)

type fakeSubmitter struct {
	submitFn        func(ctx context.Context, source model.Source, payload []byte) (string, error)
	capturedSource  model.Source
	capturedPayload []byte
}

func (f *fakeSubmitter) Submit(ctx context.Context, source model.Source, payload []byte) (string, error) {
	f.capturedSource = source
	f.capturedPayload = payload
	if f.submitFn != nil {
		return f.submitFn(ctx, source, payload)
	}
	return "1700000000000-0", nil
}

var _ = Describe("WebhookHandler", func() {
	var (
		router    *gin.Engine
		submitter *fakeSubmitter
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		router = gin.New()
		submitter = &fakeSubmitter{}

		h := webhook.NewHandler(submitter)
		router.POST("/webhooks/amocrm", h.HandleAmoCRM)
		router.POST("/webhooks/lptracker", h.HandleLPTracker)
	})

	Describe("HandleAmoCRM", func() {
		It("flattens the form fields and enqueues them as JSON", func() {
			form := url.Values{}
			form.Set("account[subdomain]", "acme")
			form.Set("leads[status][0][id]", "100")
			form.Set("leads[status][0][status_id]", "55")

			req := httptest.NewRequest(http.MethodPost, "/webhooks/amocrm", strings.NewReader(form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.String()).To(ContainSubstring(`"job_id":"1700000000000-0"`))
			Expect(submitter.capturedSource).To(Equal(model.SourceAmoCRM))

			var fields map[string]string
			Expect(json.Unmarshal(submitter.capturedPayload, &fields)).To(Succeed())
			Expect(fields).To(HaveKeyWithValue("account[subdomain]", "acme"))
			Expect(fields).To(HaveKeyWithValue("leads[status][0][id]", "100"))
		})

		It("rejects an empty form", func() {
			req := httptest.NewRequest(http.MethodPost, "/webhooks/amocrm", strings.NewReader(""))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		It("answers 500 when the enqueue fails", func() {
			submitter.submitFn = func(ctx context.Context, source model.Source, payload []byte) (string, error) {
				return "", errors.New("redis down")
			}

			form := url.Values{}
			form.Set("account[subdomain]", "acme")
			req := httptest.NewRequest(http.MethodPost, "/webhooks/amocrm", strings.NewReader(form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusInternalServerError))
		})
	})

	Describe("HandleLPTracker", func() {
		It("enqueues the JSON body verbatim", func() {
			body := `{"action":"lead_update","project_id":"42","lead":{"id":3001}}`
			req := httptest.NewRequest(http.MethodPost, "/webhooks/lptracker", strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(submitter.capturedSource).To(Equal(model.SourceLPTracker))
			Expect(string(submitter.capturedPayload)).To(Equal(body))
		})

		It("rejects a body that is not a JSON object", func() {
			req := httptest.NewRequest(http.MethodPost, "/webhooks/lptracker", strings.NewReader("not json"))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(submitter.capturedPayload).To(BeNil())
		})

		It("answers 500 when the enqueue fails", func() {
			submitter.submitFn = func(ctx context.Context, source model.Source, payload []byte) (string, error) {
				return "", errors.New("redis down")
			}

			req := httptest.NewRequest(http.MethodPost, "/webhooks/lptracker", strings.NewReader(`{"action":"lead_new"}`))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusInternalServerError))
		})
	})
})
