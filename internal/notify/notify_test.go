package notify

import (
	"context"
	"crypto/hmac"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collabhq/collabpay/internal/money"
	"github.com/collabhq/collabpay/internal/retry"
)

func TestSend_SignsPayload(t *testing.T) {
	var gotBody []byte
	var gotSig, gotEvent string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = body
		gotSig = r.Header.Get("X-Collabpay-Signature")
		gotEvent = r.Header.Get("X-Collabpay-Event")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e := NewEmitter(srv.URL, "whsec_test", slog.Default())
	require.NotNil(t, e)

	event := &Event{
		ID:        "ntf_1",
		Type:      EventWithdrawalCompleted,
		Timestamp: time.Now(),
		Data:      map[string]any{"netAmount": money.Cents(8800).Format()},
	}
	require.NoError(t, e.send(context.Background(), event))

	assert.Equal(t, string(EventWithdrawalCompleted), gotEvent)
	assert.True(t, hmac.Equal([]byte(Sign(gotBody, "whsec_test")), []byte(gotSig)))

	var decoded Event
	require.NoError(t, json.Unmarshal(gotBody, &decoded))
	assert.Equal(t, "88.00", decoded.Data["netAmount"])
}

func TestWithdrawalCompleted_CarriesFeeBreakdown(t *testing.T) {
	bodies := make(chan []byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		bodies <- body
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e := NewEmitter(srv.URL, "whsec_test", slog.Default())
	e.WithdrawalCompleted("creator_1", "wd_1", "bank_transfer",
		money.Cents(10000), money.Cents(25), money.Cents(200), money.Cents(25), money.Cents(250), money.Cents(9750))

	select {
	case body := <-bodies:
		var decoded Event
		require.NoError(t, json.Unmarshal(body, &decoded))
		assert.Equal(t, "100.00", decoded.Data["gross"])
		assert.Equal(t, "0.25", decoded.Data["percentageFee"])
		assert.Equal(t, "2.00", decoded.Data["platformFee"])
		assert.Equal(t, "0.25", decoded.Data["fixedFee"])
		assert.Equal(t, "2.50", decoded.Data["totalFees"])
		assert.Equal(t, "97.50", decoded.Data["netAmount"])
	case <-time.After(5 * time.Second):
		t.Fatal("notification was never delivered")
	}
}

func TestSend_Non2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	e := NewEmitter(srv.URL, "", slog.Default())
	err := e.send(context.Background(), &Event{ID: "ntf_2", Type: EventPaymentFailed, Timestamp: time.Now()})
	assert.Error(t, err)
}

func TestSend_4xxIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	e := NewEmitter(srv.URL, "", slog.Default())
	err := e.send(context.Background(), &Event{ID: "ntf_3", Type: EventPaymentFailed, Timestamp: time.Now()})

	var pe *retry.PermanentError
	assert.ErrorAs(t, err, &pe, "a rejected payload must not be retried")
}

func TestNilEmitterIsNoOp(t *testing.T) {
	var e *Emitter
	assert.NotPanics(t, func() {
		e.PaymentAvailable("creator_1", "contract_1", "pay_1", 9500)
		e.WithdrawalFailed("creator_1", "wd_1", "bank_transfer", "declined")
	})
	assert.Nil(t, NewEmitter("", "secret", slog.Default()))
}
