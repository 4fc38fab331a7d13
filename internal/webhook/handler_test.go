package webhook

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeDeduper struct {
	mu   sync.Mutex
	seen map[string]bool
	err  error
}

func newFakeDeduper() *fakeDeduper {
	return &fakeDeduper{seen: map[string]bool{}}
}

func (f *fakeDeduper) SeenBefore(deliveryID string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	was := f.seen[deliveryID]
	f.seen[deliveryID] = true
	return was, nil
}

const openedIssuePayload = `{"action":"opened","issue":{"number":7,"title":"t","body":"b"},"repository":{"name":"widgets","owner":{"login":"acme"}}}`

func postWebhook(t *testing.T, h http.HandlerFunc, body string, deliveryID string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/github", strings.NewReader(body))
	if deliveryID != "" {
		req.Header.Set("X-GitHub-Delivery", deliveryID)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func waitForDispatch(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(time.Second):
		t.Fatal("event was not dispatched")
		return Event{}
	}
}

func TestHandlerDispatchesSupportedEvent(t *testing.T) {
	dispatched := make(chan Event, 1)
	h := NewHandler(zap.NewNop(), newFakeDeduper(), func(e Event) { dispatched <- e })

	rr := postWebhook(t, h, openedIssuePayload, "delivery-1")
	require.Equal(t, http.StatusOK, rr.Code)

	e := waitForDispatch(t, dispatched)
	assert.Equal(t, 7, e.Number)
	assert.Equal(t, "acme", e.Owner)
}

func TestHandlerRejectsNonPost(t *testing.T) {
	h := NewHandler(zap.NewNop(), newFakeDeduper(), func(Event) {})
	req := httptest.NewRequest(http.MethodGet, "/webhooks/github", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestHandlerIgnoresUnsupportedAction(t *testing.T) {
	dispatched := make(chan Event, 1)
	h := NewHandler(zap.NewNop(), newFakeDeduper(), func(e Event) { dispatched <- e })

	body := `{"action":"closed","issue":{"number":1},"repository":{"name":"widgets","owner":{"login":"acme"}}}`
	rr := postWebhook(t, h, body, "delivery-2")
	require.Equal(t, http.StatusOK, rr.Code)

	select {
	case <-dispatched:
		t.Fatal("unsupported action should not dispatch")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHandlerDropsRedeliveredEvent(t *testing.T) {
	dispatched := make(chan Event, 2)
	dedup := newFakeDeduper()
	h := NewHandler(zap.NewNop(), dedup, func(e Event) { dispatched <- e })

	rr1 := postWebhook(t, h, openedIssuePayload, "delivery-3")
	require.Equal(t, http.StatusOK, rr1.Code)
	waitForDispatch(t, dispatched)

	rr2 := postWebhook(t, h, openedIssuePayload, "delivery-3")
	require.Equal(t, http.StatusOK, rr2.Code)

	select {
	case <-dispatched:
		t.Fatal("redelivered event should not dispatch twice")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHandlerDispatchesDespiteDedupFailure(t *testing.T) {
	dispatched := make(chan Event, 1)
	dedup := newFakeDeduper()
	dedup.err = errors.New("db unavailable")
	h := NewHandler(zap.NewNop(), dedup, func(e Event) { dispatched <- e })

	rr := postWebhook(t, h, openedIssuePayload, "delivery-4")
	require.Equal(t, http.StatusOK, rr.Code)
	waitForDispatch(t, dispatched)
}

func TestHandlerGeneratesFallbackIDWithoutDeliveryHeader(t *testing.T) {
	dispatched := make(chan Event, 1)
	h := NewHandler(zap.NewNop(), newFakeDeduper(), func(e Event) { dispatched <- e })

	rr := postWebhook(t, h, openedIssuePayload, "")
	require.Equal(t, http.StatusOK, rr.Code)
	waitForDispatch(t, dispatched)
}

func TestHandlerRejectsMalformedJSON(t *testing.T) {
	h := NewHandler(zap.NewNop(), newFakeDeduper(), func(Event) {})
	rr := postWebhook(t, h, "{not json", "delivery-5")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
