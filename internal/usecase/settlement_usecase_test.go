package usecase_test

import (
	"context"
	"encoding/base64"
	"errors"
	"math"
	"net/http"
	"net/netip"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rs-labo46/ec-settlement/internal/domain/model"
	"github.com/rs-labo46/ec-settlement/internal/gateway"
	repo "github.com/rs-labo46/ec-settlement/internal/repository"
	"github.com/rs-labo46/ec-settlement/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func devPolicy() usecase.SettlementPolicy {
	return usecase.SettlementPolicy{MaxSkew: 5 * time.Minute, SecretKey: testSecret}
}

func prodPolicy() usecase.SettlementPolicy {
	p := devPolicy()
	p.Production = true
	p.AllowedIPs = []netip.Prefix{netip.MustParsePrefix("103.10.0.0/16")}
	return p
}

func newSettlement(s *memStore, n usecase.Notifier, p usecase.SettlementPolicy) *usecase.SettlementUsecase {
	return usecase.NewSettlementUsecase(s, n, fixedClock{t: testNow}, p)
}

func quietNotifier() *NotifierMock {
	n := new(NotifierMock)
	n.On("SendOrderConfirmation", mock.Anything, mock.Anything).Return(nil)
	return n
}

// シナリオの注文（2100円, PENDING）を作る
func checkoutScenario(t *testing.T, s *memStore) usecase.CheckoutOutput {
	t.Helper()
	out, err := newCheckout(s, usecase.UUIDGenerator{}).Checkout(context.Background(), 7, usecase.CheckoutInput{
		Items:        []usecase.CheckoutItemInput{{ProductID: 1, Quantity: 2}},
		ShippingInfo: kathmandu(),
	})
	require.NoError(t, err)
	return out
}

func completeCallback(ref string, total string) map[string]string {
	f := gateway.Fields{TotalAmount: total, TransactionUUID: ref, ProductCode: "EPAYTEST"}
	return map[string]string{
		"transaction_uuid": ref,
		"transaction_code": "000AWEO",
		"status":           gateway.StatusComplete,
		"total_amount":     total,
		"product_code":     "EPAYTEST",
		"signature":        gateway.Sign(f, testSecret),
	}
}

func TestSettle_Scenario_ThenReplay(t *testing.T) {
	s := newMemStore()
	seedScenario(s)
	co := checkoutScenario(t, s)

	n := new(NotifierMock)
	n.On("SendOrderConfirmation", mock.Anything, mock.MatchedBy(func(c usecase.OrderConfirmation) bool {
		return c.OrderID == co.OrderID && c.TotalAmount == 2100 && c.Email == "sita@example.com" && len(c.Items) == 1
	})).Return(nil).Once()

	uc := newSettlement(s, n, prodPolicy())
	in := usecase.SettlementInput{RemoteIP: "103.10.1.1", Fields: completeCallback(co.TransactionRef, "2100")}

	out, err := uc.Settle(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, usecase.MessageSettled, out.Message)
	assert.Equal(t, co.OrderID, out.OrderID)
	assert.Equal(t, "COMPLETED", out.Status)

	o := s.order(co.OrderID)
	assert.Equal(t, model.OrderStatusCompleted, o.Status)
	assert.Equal(t, "000AWEO", o.GatewayRef)
	assert.Equal(t, int64(3), s.product(1).StockQuantity)

	//同じコールバックの再送
	out, err = uc.Settle(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, usecase.MessageAlreadyDone, out.Message)
	assert.Equal(t, "COMPLETED", out.Status)
	assert.Equal(t, int64(3), s.product(1).StockQuantity)

	adj := s.adjustments()
	require.Len(t, adj, 1)
	assert.Equal(t, int64(-2), adj[0].Delta)
	assert.Len(t, s.auditsOf(model.AuditKindPaymentSettled), 1)
	assert.Len(t, s.auditsOf(model.AuditKindSettlementReplayed), 1)
	n.AssertExpectations(t)
}

func TestSettle_EnvelopeWithDecimalAmount(t *testing.T) {
	s := newMemStore()
	seedScenario(s)
	co := checkoutScenario(t, s)

	//eSewaは合計を"2100.0"で返すことがある。署名は受け取った文字列で検証する。
	body := `{"transaction_code":"000AWEO","status":"COMPLETE","total_amount":2100.0,` +
		`"transaction_uuid":"` + co.TransactionRef + `","product_code":"EPAYTEST","signature":"` +
		gateway.Sign(gateway.Fields{TotalAmount: "2100.0", TransactionUUID: co.TransactionRef, ProductCode: "EPAYTEST"}, testSecret) + `"}`
	fields := map[string]string{"data": base64Std(body)}

	out, err := newSettlement(s, quietNotifier(), prodPolicy()).Settle(context.Background(), usecase.SettlementInput{
		RemoteIP: "103.10.200.3",
		Fields:   fields,
	})
	require.NoError(t, err)
	assert.Equal(t, usecase.MessageSettled, out.Message)
	assert.Equal(t, int64(3), s.product(1).StockQuantity)
}

func TestSettle_ConcurrentReplays_DecrementOnce(t *testing.T) {
	s := newMemStore()
	seedScenario(s)
	co := checkoutScenario(t, s)
	uc := newSettlement(s, quietNotifier(), devPolicy())

	var wg sync.WaitGroup
	results := make([]usecase.SettlementOutput, 20)
	errs := make([]error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = uc.Settle(context.Background(), usecase.SettlementInput{
				Fields: completeCallback(co.TransactionRef, "2100"),
			})
		}(i)
	}
	wg.Wait()

	settled := 0
	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, "COMPLETED", results[i].Status)
		if results[i].Message == usecase.MessageSettled {
			settled++
		}
	}
	assert.Equal(t, 1, settled)
	assert.Equal(t, int64(3), s.product(1).StockQuantity)
	assert.Len(t, s.adjustments(), 1)
}

func TestSettle_ConcurrentOrdersOnLastUnit(t *testing.T) {
	s := newMemStore()
	s.addProduct(model.Product{ID: 1, Name: "last", OriginalPrice: 500, StockQuantity: 1})
	s.addZone("Kathmandu", 0, true)

	//チェックアウトは在庫を確保しないので両方通る
	co := newCheckout(s, &seqIDs{})
	refs := make([]usecase.CheckoutOutput, 2)
	for i := range refs {
		out, err := co.Checkout(context.Background(), int64(10+i), usecase.CheckoutInput{
			Items:        []usecase.CheckoutItemInput{{ProductID: 1, Quantity: 1}},
			ShippingInfo: kathmandu(),
		})
		require.NoError(t, err)
		refs[i] = out
	}

	uc := newSettlement(s, quietNotifier(), devPolicy())
	var wg sync.WaitGroup
	errs := make([]error, len(refs))
	for i, r := range refs {
		wg.Add(1)
		go func(i int, r usecase.CheckoutOutput) {
			defer wg.Done()
			_, errs[i] = uc.Settle(context.Background(), usecase.SettlementInput{
				Fields: completeCallback(r.TransactionRef, "500"),
			})
		}(i, r)
	}
	wg.Wait()

	failed := 0
	for i, err := range errs {
		if err != nil {
			failed++
			he, ok := usecase.AsHTTPError(err)
			require.True(t, ok)
			assert.Equal(t, usecase.CodeInsufficientStock, he.Code)
			//負けた注文はPENDINGのまま
			assert.Equal(t, model.OrderStatusPending, s.order(refs[i].OrderID).Status)
		}
	}
	assert.Equal(t, 1, failed)

	p := s.product(1)
	assert.Equal(t, int64(0), p.StockQuantity)
	assert.Equal(t, model.ProductStatusOutOfStock, p.Status)
	assert.Len(t, s.auditsOf(model.AuditKindSettlementRejected), 1)
}

func TestSettle_AmountMismatch_StaysPending(t *testing.T) {
	for _, total := range []string{"2099", "2101", "2100.01", "0", "", "abc"} {
		s := newMemStore()
		seedScenario(s)
		co := checkoutScenario(t, s)
		n := new(NotifierMock)

		_, err := newSettlement(s, n, devPolicy()).Settle(context.Background(), usecase.SettlementInput{
			Fields: completeCallback(co.TransactionRef, total),
		})
		assertHTTPError(t, err, http.StatusBadRequest, usecase.CodeAmountMismatch)
		assert.Equal(t, model.OrderStatusPending, s.order(co.OrderID).Status, "total=%q", total)
		assert.Equal(t, int64(5), s.product(1).StockQuantity)

		rejected := s.auditsOf(model.AuditKindSettlementRejected)
		require.Len(t, rejected, 1)
		assert.Equal(t, co.TransactionRef, rejected[0].ResourceID)
		assert.Contains(t, rejected[0].DetailsJSON, "amount_mismatch")
		n.AssertNotCalled(t, "SendOrderConfirmation", mock.Anything, mock.Anything)
	}
}

func TestSettle_Signature(t *testing.T) {
	s := newMemStore()
	seedScenario(s)
	co := checkoutScenario(t, s)

	bad := completeCallback(co.TransactionRef, "2100")
	bad["signature"] = gateway.Sign(gateway.Fields{TotalAmount: "2100", TransactionUUID: co.TransactionRef, ProductCode: "EPAYTESX"}, testSecret)

	//本番は拒否
	_, err := newSettlement(s, quietNotifier(), prodPolicy()).Settle(context.Background(), usecase.SettlementInput{RemoteIP: "103.10.0.9", Fields: bad})
	assertHTTPError(t, err, http.StatusBadRequest, usecase.CodeInvalidSignature)
	assert.Equal(t, model.OrderStatusPending, s.order(co.OrderID).Status)

	delete(bad, "signature")
	_, err = newSettlement(s, quietNotifier(), prodPolicy()).Settle(context.Background(), usecase.SettlementInput{RemoteIP: "103.10.0.9", Fields: bad})
	assertHTTPError(t, err, http.StatusBadRequest, usecase.CodeInvalidSignature)

	//開発環境はログだけ出して続行
	out, err := newSettlement(s, quietNotifier(), devPolicy()).Settle(context.Background(), usecase.SettlementInput{Fields: bad})
	require.NoError(t, err)
	assert.Equal(t, usecase.MessageSettled, out.Message)
	assert.Equal(t, int64(3), s.product(1).StockQuantity)
}

func TestSettle_Origin(t *testing.T) {
	s := newMemStore()
	seedScenario(s)
	co := checkoutScenario(t, s)
	uc := newSettlement(s, quietNotifier(), prodPolicy())

	for _, ip := range []string{"8.8.8.8", "", "not-an-ip", "103.11.0.1"} {
		_, err := uc.Settle(context.Background(), usecase.SettlementInput{RemoteIP: ip, Fields: completeCallback(co.TransactionRef, "2100")})
		assertHTTPError(t, err, http.StatusForbidden, usecase.CodeForbidden)
	}
	assert.Equal(t, model.OrderStatusPending, s.order(co.OrderID).Status)
	assert.Len(t, s.auditsOf(model.AuditKindSettlementRejected), 4)

	//IPv4射影アドレスも許可リストで判定する
	_, err := uc.Settle(context.Background(), usecase.SettlementInput{RemoteIP: "::ffff:103.10.3.4", Fields: completeCallback(co.TransactionRef, "2100")})
	require.NoError(t, err)
}

func TestSettle_Freshness(t *testing.T) {
	s := newMemStore()
	seedScenario(s)
	co := checkoutScenario(t, s)

	fresh := strconv.FormatInt(testNow.Add(-4*time.Minute).Unix(), 10)
	stale := strconv.FormatInt(testNow.Add(-6*time.Minute).Unix(), 10)
	future := testNow.Add(10 * time.Minute).Format(time.RFC3339)

	uc := newSettlement(s, quietNotifier(), prodPolicy())
	for _, ts := range []string{
		stale,
		future,
		"99999999999999",
		"9999-12-31T23:59:59Z",
		"0001-01-01T00:00:00Z",
		strconv.FormatInt(math.MaxInt64, 10),
	} {
		_, err := uc.Settle(context.Background(), usecase.SettlementInput{
			RemoteIP:        "103.10.0.1",
			TimestampHeader: ts,
			Fields:          completeCallback(co.TransactionRef, "2100"),
		})
		assertHTTPError(t, err, http.StatusForbidden, usecase.CodeStaleCallback)
	}

	//フィールドのtimestampも見る
	f := completeCallback(co.TransactionRef, "2100")
	f["timestamp"] = stale
	_, err := uc.Settle(context.Background(), usecase.SettlementInput{RemoteIP: "103.10.0.1", Fields: f})
	assertHTTPError(t, err, http.StatusForbidden, usecase.CodeStaleCallback)

	_, err = uc.Settle(context.Background(), usecase.SettlementInput{
		RemoteIP:        "103.10.0.1",
		TimestampHeader: "yesterday",
		Fields:          completeCallback(co.TransactionRef, "2100"),
	})
	assertHTTPError(t, err, http.StatusBadRequest, usecase.CodeValidation)
	assert.Equal(t, model.OrderStatusPending, s.order(co.OrderID).Status)

	//タイムスタンプ必須
	strict := prodPolicy()
	strict.RequireTimestamp = true
	_, err = newSettlement(s, quietNotifier(), strict).Settle(context.Background(), usecase.SettlementInput{
		RemoteIP: "103.10.0.1",
		Fields:   completeCallback(co.TransactionRef, "2100"),
	})
	assertHTTPError(t, err, http.StatusForbidden, usecase.CodeStaleCallback)

	out, err := newSettlement(s, quietNotifier(), strict).Settle(context.Background(), usecase.SettlementInput{
		RemoteIP:        "103.10.0.1",
		TimestampHeader: fresh,
		Fields:          completeCallback(co.TransactionRef, "2100"),
	})
	require.NoError(t, err)
	assert.Equal(t, usecase.MessageSettled, out.Message)
}

func TestSettle_NotFoundAndMalformed(t *testing.T) {
	s := newMemStore()
	seedScenario(s)
	uc := newSettlement(s, quietNotifier(), devPolicy())

	_, err := uc.Settle(context.Background(), usecase.SettlementInput{Fields: completeCallback("missing-ref", "2100")})
	assertHTTPError(t, err, http.StatusNotFound, usecase.CodeNotFound)

	_, err = uc.Settle(context.Background(), usecase.SettlementInput{Fields: map[string]string{"status": "COMPLETE"}})
	assertHTTPError(t, err, http.StatusBadRequest, usecase.CodeValidation)

	rejected := s.auditsOf(model.AuditKindSettlementRejected)
	require.Len(t, rejected, 2)
	assert.Equal(t, "missing-ref", rejected[0].ResourceID)
	assert.Equal(t, "unknown", rejected[1].ResourceID)
}

func TestSettle_GatewayNotComplete(t *testing.T) {
	s := newMemStore()
	seedScenario(s)
	co := checkoutScenario(t, s)
	n := new(NotifierMock)

	f := completeCallback(co.TransactionRef, "2100")
	f["status"] = "CANCELED"

	out, err := newSettlement(s, n, devPolicy()).Settle(context.Background(), usecase.SettlementInput{Fields: f})
	require.NoError(t, err)
	assert.Equal(t, usecase.MessageNotCompleted, out.Message)
	assert.Equal(t, "PENDING", out.Status)
	assert.Equal(t, int64(5), s.product(1).StockQuantity)
	n.AssertNotCalled(t, "SendOrderConfirmation", mock.Anything, mock.Anything)
}

func TestSettle_FailedOrderIsConflict(t *testing.T) {
	s := newMemStore()
	seedScenario(s)
	co := checkoutScenario(t, s)

	o := s.order(co.OrderID)
	o.Status = model.OrderStatusFailed
	s.setOrder(o)

	_, err := newSettlement(s, quietNotifier(), devPolicy()).Settle(context.Background(), usecase.SettlementInput{
		Fields: completeCallback(co.TransactionRef, "2100"),
	})
	assertHTTPError(t, err, http.StatusConflict, usecase.CodeOrderNotPending)
	assert.Equal(t, model.OrderStatusFailed, s.order(co.OrderID).Status)
	assert.Equal(t, int64(5), s.product(1).StockQuantity)
	assert.Len(t, s.auditsOf(model.AuditKindSettlementRejected), 1)
}

func TestSettle_StockShortfallAbortsEverything(t *testing.T) {
	s := newMemStore()
	seedScenario(s)
	co := checkoutScenario(t, s)

	//チェックアウト後に在庫が減った
	p := s.product(1)
	p.StockQuantity = 1
	s.addProduct(p)

	_, err := newSettlement(s, quietNotifier(), devPolicy()).Settle(context.Background(), usecase.SettlementInput{
		Fields: completeCallback(co.TransactionRef, "2100"),
	})
	he := assertHTTPError(t, err, http.StatusConflict, usecase.CodeInsufficientStock)
	assert.Equal(t, int64(1), he.Details["available"])

	o := s.order(co.OrderID)
	assert.Equal(t, model.OrderStatusPending, o.Status)
	assert.Equal(t, "", o.GatewayRef)
	assert.Equal(t, int64(1), s.product(1).StockQuantity)
	assert.Empty(t, s.adjustments())
	assert.Empty(t, s.auditsOf(model.AuditKindPaymentSettled))
}

func TestSettle_NotifierFailureDoesNotRollBack(t *testing.T) {
	s := newMemStore()
	seedScenario(s)
	co := checkoutScenario(t, s)

	n := new(NotifierMock)
	n.On("SendOrderConfirmation", mock.Anything, mock.Anything).Return(errors.New("broker down"))

	out, err := newSettlement(s, n, devPolicy()).Settle(context.Background(), usecase.SettlementInput{
		Fields: completeCallback(co.TransactionRef, "2100"),
	})
	require.NoError(t, err)
	assert.Equal(t, usecase.MessageSettled, out.Message)
	assert.Equal(t, model.OrderStatusCompleted, s.order(co.OrderID).Status)
	n.AssertExpectations(t)
}

func TestSettle_CommitFailureIsTransient(t *testing.T) {
	s := newMemStore()
	seedScenario(s)
	co := checkoutScenario(t, s)

	//注文の取得（1回目のWithinTx）は通して、確定のcommitだけ失敗させる
	in := usecase.SettlementInput{Fields: completeCallback(co.TransactionRef, "2100")}
	failing := &failOnNthTx{store: s, n: 2, err: errors.New("serialization failure")}
	uc := usecase.NewSettlementUsecase(failing, quietNotifier(), fixedClock{t: testNow}, devPolicy())

	_, err := uc.Settle(context.Background(), in)
	assertHTTPError(t, err, http.StatusServiceUnavailable, usecase.CodeTransient)
	assert.Equal(t, model.OrderStatusPending, s.order(co.OrderID).Status)
	assert.Equal(t, int64(5), s.product(1).StockQuantity)
}

func base64Std(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

// n回目のWithinTxだけcommitを失敗させる
type failOnNthTx struct {
	store *memStore
	n     int
	calls int
	err   error
}

func (f *failOnNthTx) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	f.calls++
	if f.calls == f.n {
		f.store.mu.Lock()
		f.store.failCommit = f.err
		f.store.mu.Unlock()
	}
	return f.store.WithinTx(ctx, fn)
}
