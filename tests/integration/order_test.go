//go:build integration

package integration

import (
	"net/http"
	"regexp"
	"testing"
)

var uuidPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

func one(productID string, qty int) cartRequest {
	return cartRequest{Items: []itemRequest{{ProductID: productID, Quantity: qty}}}
}

func TestPlaceOrder_Auth(t *testing.T) {
	tests := []struct {
		name string
		key  string
	}{
		{name: "missing", key: ""},
		{name: "wrong", key: "wrong-key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doJSON(t, http.MethodPost, "/api/orders", one("pho-bo", 1), "api_key", tt.key)
			defer resp.Body.Close()
			expectStatus(t, resp, http.StatusUnauthorized)
		})
	}
}

func TestPlaceOrder_Rejected(t *testing.T) {
	tests := []struct {
		name string
		req  cartRequest
		want int
	}{
		{name: "empty items", req: cartRequest{Items: []itemRequest{}}, want: http.StatusBadRequest},
		{name: "unknown product", req: one("nope", 1), want: http.StatusUnprocessableEntity},
		{name: "zero quantity", req: one("pho-bo", 0), want: http.StatusUnprocessableEntity},
		{
			name: "unknown variant",
			req:  cartRequest{Items: []itemRequest{{ProductID: "pho-bo", Variant: "huge", Quantity: 1}}},
			want: http.StatusUnprocessableEntity,
		},
		{
			name: "unknown voucher",
			req:  cartRequest{Items: one("pho-bo", 1).Items, VoucherCode: "NOTACODE"},
			want: http.StatusUnprocessableEntity,
		},
		{
			name: "voucher minimum not met",
			req:  cartRequest{Items: one("pho-bo", 1).Items, VoucherCode: "GIAM20K"},
			want: http.StatusUnprocessableEntity,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doAuth(t, http.MethodPost, "/api/orders", tt.req)
			defer resp.Body.Close()
			expectStatus(t, resp, tt.want)
		})
	}
}

func TestPlaceOrder_Pricing(t *testing.T) {
	tests := []struct {
		name      string
		req       cartRequest
		wantTotal float64
		wantVouch float64
	}{
		{
			name:      "single item",
			req:       one("pho-bo", 1),
			wantTotal: 65000,
		},
		{
			name:      "promotion",
			req:       one("banh-mi-thit", 2),
			wantTotal: 60000,
		},
		{
			name:      "variant",
			req:       cartRequest{Items: []itemRequest{{ProductID: "pho-bo", Variant: "large", Quantity: 1}}},
			wantTotal: 80000,
		},
		{
			name:      "percent voucher",
			req:       cartRequest{Items: one("pho-bo", 1).Items, VoucherCode: "happyhours"},
			wantTotal: 53300,
			wantVouch: 11700,
		},
		{
			name: "fixed voucher",
			req: cartRequest{
				Items:       []itemRequest{{ProductID: "pho-bo", Quantity: 1}, {ProductID: "com-tam", Quantity: 1}},
				VoucherCode: "GIAM20K",
			},
			wantTotal: 100000,
			wantVouch: 20000,
		},
		{
			name: "same price voucher",
			req: cartRequest{
				Items:       []itemRequest{{ProductID: "pho-bo", Quantity: 1}, {ProductID: "tra-da", Quantity: 1}},
				VoucherCode: "DONGGIA",
			},
			wantTotal: 34000,
			wantVouch: 36000,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doAuth(t, http.MethodPost, "/api/orders", tt.req)
			defer resp.Body.Close()
			expectStatus(t, resp, http.StatusCreated)

			o := decodeJSON[orderResponse](t, resp)
			if !uuidPattern.MatchString(o.ID) {
				t.Errorf("id is not a UUID: %q", o.ID)
			}
			if o.Version != 1 {
				t.Errorf("version: got %d, want 1", o.Version)
			}
			if o.Totals.GrandTotal != tt.wantTotal {
				t.Errorf("grand total: got %v, want %v", o.Totals.GrandTotal, tt.wantTotal)
			}
			if o.Totals.VoucherDiscountTotal != tt.wantVouch {
				t.Errorf("voucher discount: got %v, want %v", o.Totals.VoucherDiscountTotal, tt.wantVouch)
			}
			var sum float64
			for _, li := range o.Items {
				sum += li.LineTotal
			}
			if sum != o.Totals.GrandTotal {
				t.Errorf("line totals %v do not add up to %v", sum, o.Totals.GrandTotal)
			}
		})
	}
}

func TestQuote_DoesNotStore(t *testing.T) {
	resp := doJSON(t, http.MethodPost, "/api/cart/quote", cartRequest{
		Items:       []itemRequest{{ProductID: "bun-cha", Quantity: 2}},
		VoucherCode: "HAPPYHOURS",
	})
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusOK)

	q := decodeJSON[orderResponse](t, resp)
	if q.ID != "" {
		t.Errorf("quote must not have an id, got %q", q.ID)
	}
	// (60000 - 10000) * 2 = 100000, 18% off.
	if q.Totals.GrandTotal != 82000 {
		t.Errorf("grand total: got %v, want 82000", q.Totals.GrandTotal)
	}
}

func TestUpdateOrder_Reconcile(t *testing.T) {
	resp := doAuth(t, http.MethodPost, "/api/orders", cartRequest{
		Items:    []itemRequest{{ProductID: "pho-bo", Quantity: 1}, {ProductID: "goi-cuon", Quantity: 1}},
		TableRef: "T1",
	})
	expectStatus(t, resp, http.StatusCreated)
	placed := decodeJSON[orderResponse](t, resp)
	resp.Body.Close()
	if len(placed.Items) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(placed.Items))
	}
	pho, goi := placed.Items[0], placed.Items[1]
	path := "/api/orders/" + placed.ID

	// Raise pho, drop goi-cuon, add a drink.
	update := cartRequest{
		Items: []itemRequest{
			{InstanceID: pho.InstanceID, Quantity: 2},
			{ProductID: "tra-da", Quantity: 1},
		},
		TableRef:        "T1",
		ExpectedVersion: 1,
	}
	resp = doAuth(t, http.MethodPut, path, update, "Accept-Language", "vi-VN,vi;q=0.9")
	expectStatus(t, resp, http.StatusOK)
	if got := resp.Header.Get("Content-Language"); got != "vi" {
		t.Errorf("Content-Language: got %q, want vi", got)
	}
	res := decodeJSON[updateResponse](t, resp)
	resp.Body.Close()

	if !res.Applied {
		t.Fatal("expected update to be applied")
	}
	if want := "đã thêm 1 món, đã bỏ 1 món, đổi số lượng 1 món"; res.Summary != want {
		t.Errorf("summary: got %q, want %q", res.Summary, want)
	}
	if res.Counts.Added != 1 || res.Counts.Removed != 1 || res.Counts.QuantityChanged != 1 {
		t.Errorf("counts: %+v", res.Counts)
	}
	if res.Order.Version != 2 {
		t.Errorf("version: got %d, want 2", res.Order.Version)
	}
	if res.Order.Totals.GrandTotal != 135000 {
		t.Errorf("grand total: got %v, want 135000", res.Order.Totals.GrandTotal)
	}

	// The stored order matches the response.
	resp = doAuth(t, http.MethodGet, path, nil)
	expectStatus(t, resp, http.StatusOK)
	stored := decodeJSON[orderResponse](t, resp)
	resp.Body.Close()
	if stored.Version != 2 || len(stored.Items) != 2 {
		t.Fatalf("stored order: version %d, %d rows", stored.Version, len(stored.Items))
	}
	for _, li := range stored.Items {
		if li.InstanceID == goi.InstanceID {
			t.Errorf("removed row %s still stored", goi.InstanceID)
		}
	}

	// A stale version is rejected.
	resp = doAuth(t, http.MethodPut, path, update)
	expectStatus(t, resp, http.StatusConflict)
	resp.Body.Close()

	// Resubmitting the stored cart changes nothing.
	same := cartRequest{TableRef: "T1", ExpectedVersion: 2}
	for _, li := range stored.Items {
		same.Items = append(same.Items, itemRequest{InstanceID: li.InstanceID, Quantity: li.Quantity})
	}
	resp = doAuth(t, http.MethodPut, path, same)
	expectStatus(t, resp, http.StatusOK)
	res = decodeJSON[updateResponse](t, resp)
	resp.Body.Close()
	if res.Applied || res.Summary != "no changes" || res.Order.Version != 2 {
		t.Errorf("no-op update: applied=%v summary=%q version=%d", res.Applied, res.Summary, res.Order.Version)
	}
}

func TestUpdateOrder_UnknownRow(t *testing.T) {
	resp := doAuth(t, http.MethodPost, "/api/orders", one("com-tam", 1))
	expectStatus(t, resp, http.StatusCreated)
	placed := decodeJSON[orderResponse](t, resp)
	resp.Body.Close()

	resp = doAuth(t, http.MethodPut, "/api/orders/"+placed.ID, cartRequest{
		Items: []itemRequest{{InstanceID: "not-a-row", Quantity: 1}},
	})
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusUnprocessableEntity)
}

func TestGetOrder_NotFound(t *testing.T) {
	resp := doAuth(t, http.MethodGet, "/api/orders/00000000-0000-0000-0000-000000000000", nil)
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusNotFound)
}
