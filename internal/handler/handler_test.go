package handler

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BraraBy/eCom-P-sub000/internal/domain/auth"
	"github.com/BraraBy/eCom-P-sub000/internal/domain/product"
	"github.com/BraraBy/eCom-P-sub000/internal/domain/promotion"
)

const (
	testPepper = "test-pepper"
	testAPIKey = "secret-admin-key"
)

// --- Mock implementations ---

type fakePromotionRepo struct {
	nextID int64
	byID   map[int64]*promotion.Promotion
}

func newFakePromotionRepo() *fakePromotionRepo {
	return &fakePromotionRepo{nextID: 1, byID: map[int64]*promotion.Promotion{}}
}

func (f *fakePromotionRepo) List(_ context.Context) ([]promotion.Promotion, error) {
	out := make([]promotion.Promotion, 0, len(f.byID))
	for _, p := range f.byID {
		out = append(out, *p)
	}
	return out, nil
}

func (f *fakePromotionRepo) Get(_ context.Context, id int64) (*promotion.Promotion, error) {
	p, ok := f.byID[id]
	if !ok {
		return nil, promotion.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakePromotionRepo) ListActive(_ context.Context, now time.Time) ([]promotion.Promotion, error) {
	var out []promotion.Promotion
	for _, p := range f.byID {
		if p.AvailableAt(now) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakePromotionRepo) CountActive(_ context.Context, now time.Time) (int64, error) {
	var n int64
	for _, p := range f.byID {
		if p.AvailableAt(now) {
			n++
		}
	}
	return n, nil
}

func (f *fakePromotionRepo) GetActiveByCode(_ context.Context, code string, now time.Time) (*promotion.Promotion, error) {
	for _, p := range f.byID {
		if strings.EqualFold(p.Code, code) && p.AvailableAt(now) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, promotion.ErrNotFound
}

func (f *fakePromotionRepo) Create(_ context.Context, d promotion.Draft) (*promotion.Promotion, error) {
	for _, p := range f.byID {
		if strings.EqualFold(p.Code, d.Code) {
			return nil, promotion.ErrCodeExists
		}
	}
	p := &promotion.Promotion{
		ID:              f.nextID,
		Title:           d.Title,
		Description:     d.Description,
		Code:            d.Code,
		Kind:            d.Kind,
		DiscountPercent: d.DiscountPercent,
		DiscountAmount:  d.DiscountAmount,
		MinOrderAmount:  d.MinOrderAmount,
		StartsAt:        d.StartsAt,
		EndsAt:          d.EndsAt,
		Active:          d.Active,
		MaxTotalUses:    d.MaxTotalUses,
		MaxUsesPerUser:  d.MaxUsesPerUser,
		CreatedBy:       d.CreatedBy,
		CreatedAt:       time.Now(),
	}
	f.nextID++
	f.byID[p.ID] = p
	return p, nil
}

func (f *fakePromotionRepo) Save(_ context.Context, p *promotion.Promotion) (*promotion.Promotion, error) {
	if _, ok := f.byID[p.ID]; !ok {
		return nil, promotion.ErrNotFound
	}
	cp := *p
	f.byID[p.ID] = &cp
	return p, nil
}

func (f *fakePromotionRepo) Delete(_ context.Context, id int64) (*promotion.Promotion, error) {
	p, ok := f.byID[id]
	if !ok {
		return nil, promotion.ErrNotFound
	}
	delete(f.byID, id)
	return p, nil
}

type fakeScopeRepo struct {
	scopes map[int64]promotion.Scope
}

func (f *fakeScopeRepo) Get(_ context.Context, promotionID int64) (*promotion.Scope, error) {
	s := f.scopes[promotionID]
	return &s, nil
}

func (f *fakeScopeRepo) Replace(_ context.Context, promotionID int64, s promotion.Scope) error {
	f.scopes[promotionID] = s
	return nil
}

type fakeRedemptionRepo struct {
	counts  map[int64]int64
	byOrder map[int64]map[int64]bool // promotion id -> order ids seen
	perUser map[int64]int64
}

func newFakeRedemptionRepo() *fakeRedemptionRepo {
	return &fakeRedemptionRepo{
		counts:  map[int64]int64{},
		byOrder: map[int64]map[int64]bool{},
		perUser: map[int64]int64{},
	}
}

func (f *fakeRedemptionRepo) CountByPromotion(_ context.Context, promotionID int64) (int64, error) {
	return f.counts[promotionID], nil
}

func (f *fakeRedemptionRepo) CountByCustomer(_ context.Context, _ int64, customerID int64) (int64, error) {
	return f.perUser[customerID], nil
}

func (f *fakeRedemptionRepo) Redeem(_ context.Context, promotionID int64, customerID *int64, orderID int64, _ time.Time) error {
	orders := f.byOrder[promotionID]
	if orders == nil {
		orders = map[int64]bool{}
		f.byOrder[promotionID] = orders
	}
	if orders[orderID] {
		return promotion.ErrOrderRedeemed
	}
	orders[orderID] = true
	f.counts[promotionID]++
	if customerID != nil {
		f.perUser[*customerID]++
	}
	return nil
}

type fakeProductRepo struct {
	byID map[int64]*product.Product
}

func (f *fakeProductRepo) List(_ context.Context) ([]product.Product, error) {
	out := make([]product.Product, 0, len(f.byID))
	for _, p := range f.byID {
		out = append(out, *p)
	}
	return out, nil
}

func (f *fakeProductRepo) GetByID(_ context.Context, id int64) (*product.Product, error) {
	p, ok := f.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return p, nil
}

func (f *fakeProductRepo) CategoriesByProductIDs(_ context.Context, ids []int64) (map[int64]int64, error) {
	out := make(map[int64]int64, len(ids))
	for _, id := range ids {
		if p, ok := f.byID[id]; ok {
			out[id] = p.CategoryID
		}
	}
	return out, nil
}

type fakeAPIKeyRepo struct {
	hashes map[string]*auth.APIKeyInfo
}

func (f *fakeAPIKeyRepo) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	info, ok := f.hashes[hash]
	if !ok {
		return nil, errors.New("api key not found")
	}
	return info, nil
}

// --- Test fixture ---

type fixture struct {
	handler     http.Handler
	promos      *fakePromotionRepo
	redemptions *fakeRedemptionRepo
}

func newFixture() *fixture {
	promos := newFakePromotionRepo()
	scopes := &fakeScopeRepo{scopes: map[int64]promotion.Scope{}}
	redemptions := newFakeRedemptionRepo()
	products := &fakeProductRepo{byID: map[int64]*product.Product{
		1: {ID: 1, Name: "Waffle", Price: decimal.RequireFromString("6.50"), CategoryID: 10},
		2: {ID: 2, Name: "Tiramisu", Price: decimal.RequireFromString("5.50"), CategoryID: 20},
	}}

	mac := hmac.New(sha256.New, []byte(testPepper))
	mac.Write([]byte(testAPIKey))
	keyHash := hex.EncodeToString(mac.Sum(nil))
	apikeys := &fakeAPIKeyRepo{hashes: map[string]*auth.APIKeyInfo{
		keyHash: {ID: 1, KeyHash: keyHash, Name: "test key"},
	}}

	h := NewHandler(
		promotion.NewRegistry(promos, redemptions),
		promotion.NewScopeManager(promos, scopes),
		promotion.NewCalculator(promos, scopes, redemptions, products),
		promotion.NewLedger(redemptions),
		products,
		apikeys,
		[]byte(testPepper),
	)
	return &fixture{handler: h.Routes(), promos: promos, redemptions: redemptions}
}

func (f *fixture) do(t *testing.T, method, path string, body any, apiKey string) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	var envelope map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return rec, envelope
}

func (f *fixture) createPromotion(t *testing.T, body map[string]any) int64 {
	t.Helper()

	rec, env := f.do(t, http.MethodPost, "/promotions", body, testAPIKey)
	require.Equal(t, http.StatusCreated, rec.Code, "body: %s", rec.Body.String())

	var view struct {
		ID int64 `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env["result"], &view))
	return view.ID
}

func percentBody(code string, percent float64) map[string]any {
	return map[string]any{
		"title":            "Test promo " + code,
		"code":             code,
		"kind":             "percent",
		"discount_percent": percent,
	}
}

func envelopeStatus(t *testing.T, env map[string]json.RawMessage) string {
	t.Helper()
	var s string
	require.NoError(t, json.Unmarshal(env["status"], &s))
	return s
}

func envelopeMessage(t *testing.T, env map[string]json.RawMessage) string {
	t.Helper()
	var s string
	require.NoError(t, json.Unmarshal(env["message"], &s))
	return s
}

// --- Tests ---

func TestCreatePromotion_RequiresAPIKey(t *testing.T) {
	f := newFixture()

	rec, env := f.do(t, http.MethodPost, "/promotions", percentBody("SAVE10", 10), "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "401", envelopeStatus(t, env))

	rec, _ = f.do(t, http.MethodPost, "/promotions", percentBody("SAVE10", 10), "wrong-key")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreatePromotion_Success(t *testing.T) {
	f := newFixture()

	rec, env := f.do(t, http.MethodPost, "/promotions", percentBody("SAVE10", 10), testAPIKey)
	require.Equal(t, http.StatusCreated, rec.Code, "body: %s", rec.Body.String())
	assert.Equal(t, "201", envelopeStatus(t, env))

	var view struct {
		Code            string   `json:"code"`
		Kind            string   `json:"kind"`
		DiscountPercent *float64 `json:"discount_percent"`
		DiscountAmount  *float64 `json:"discount_amount"`
		Active          bool     `json:"active"`
	}
	require.NoError(t, json.Unmarshal(env["result"], &view))
	assert.Equal(t, "SAVE10", view.Code)
	assert.Equal(t, "percent", view.Kind)
	require.NotNil(t, view.DiscountPercent)
	assert.Equal(t, 10.0, *view.DiscountPercent)
	assert.Nil(t, view.DiscountAmount)
	assert.True(t, view.Active)
}

func TestCreatePromotion_ValidationError(t *testing.T) {
	f := newFixture()

	body := percentBody("BAD", 150)
	rec, env := f.do(t, http.MethodPost, "/promotions", body, testAPIKey)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "400", envelopeStatus(t, env))
	assert.Contains(t, envelopeMessage(t, env), "discount_percent")
}

func TestCreatePromotion_DuplicateCode(t *testing.T) {
	f := newFixture()
	f.createPromotion(t, percentBody("SAVE10", 10))

	rec, env := f.do(t, http.MethodPost, "/promotions", percentBody("save10", 15), testAPIKey)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "promotion code already exists", envelopeMessage(t, env))
}

func TestCreatePromotion_MalformedJSON(t *testing.T) {
	f := newFixture()

	req := httptest.NewRequest(http.MethodPost, "/promotions", strings.NewReader("{not json"))
	req.Header.Set("X-API-Key", testAPIKey)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetPromotion_NotFound(t *testing.T) {
	f := newFixture()

	rec, env := f.do(t, http.MethodGet, "/promotions/999", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "404", envelopeStatus(t, env))
}

func TestGetPromotion_InvalidID(t *testing.T) {
	f := newFixture()

	rec, _ := f.do(t, http.MethodGet, "/promotions/abc", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdatePromotion_Partial(t *testing.T) {
	f := newFixture()
	id := f.createPromotion(t, percentBody("SAVE10", 10))

	rec, env := f.do(t, http.MethodPut, "/promotions/1", map[string]any{"title": "Renamed"}, testAPIKey)
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())

	var view struct {
		ID    int64  `json:"id"`
		Title string `json:"title"`
		Code  string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(env["result"], &view))
	assert.Equal(t, id, view.ID)
	assert.Equal(t, "Renamed", view.Title)
	assert.Equal(t, "SAVE10", view.Code)
}

func TestDeletePromotion_ReturnsRemovedRecord(t *testing.T) {
	f := newFixture()
	f.createPromotion(t, percentBody("SAVE10", 10))

	rec, env := f.do(t, http.MethodDelete, "/promotions/1", nil, testAPIKey)
	require.Equal(t, http.StatusOK, rec.Code)

	var view struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(env["result"], &view))
	assert.Equal(t, "SAVE10", view.Code)

	rec, _ = f.do(t, http.MethodGet, "/promotions/1", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCountActivePromotions(t *testing.T) {
	f := newFixture()
	f.createPromotion(t, percentBody("SAVE10", 10))
	f.createPromotion(t, percentBody("SAVE20", 20))

	rec, env := f.do(t, http.MethodGet, "/promotions/active/count", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var result struct {
		Count int64 `json:"count"`
	}
	require.NoError(t, json.Unmarshal(env["result"], &result))
	assert.Equal(t, int64(2), result.Count)
}

func TestGetPromotionByCode(t *testing.T) {
	f := newFixture()
	f.createPromotion(t, percentBody("SAVE10", 10))

	rec, env := f.do(t, http.MethodGet, "/promotions/by-code/save10", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var view struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(env["result"], &view))
	assert.Equal(t, "SAVE10", view.Code)
}

func TestScope_SetAndGet(t *testing.T) {
	f := newFixture()
	f.createPromotion(t, percentBody("SAVE10", 10))

	body := map[string]any{"product_ids": []int64{2, 1, 2}, "category_ids": []int64{}}
	rec, env := f.do(t, http.MethodPut, "/promotions/1/scope", body, testAPIKey)
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())

	var scope struct {
		ProductIDs  []int64 `json:"product_ids"`
		CategoryIDs []int64 `json:"category_ids"`
	}
	require.NoError(t, json.Unmarshal(env["result"], &scope))
	assert.Equal(t, []int64{1, 2}, scope.ProductIDs)
	assert.Empty(t, scope.CategoryIDs)

	rec, env = f.do(t, http.MethodGet, "/promotions/1/scope", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env["result"], &scope))
	assert.Equal(t, []int64{1, 2}, scope.ProductIDs)
}

func TestSetScope_RequiresAPIKey(t *testing.T) {
	f := newFixture()
	f.createPromotion(t, percentBody("SAVE10", 10))

	rec, _ := f.do(t, http.MethodPut, "/promotions/1/scope", map[string]any{"product_ids": []int64{1}}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestValidatePromotion_Success(t *testing.T) {
	f := newFixture()
	f.createPromotion(t, percentBody("SAVE10", 10))

	body := map[string]any{
		"code": "SAVE10",
		"items": []map[string]any{
			{"product_id": 1, "quantity": 2, "price": 6.50},
		},
	}
	rec, env := f.do(t, http.MethodPost, "/promotions/validate", body, "")
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())

	var result struct {
		EligibleSubtotal float64 `json:"eligible_subtotal"`
		Discount         float64 `json:"discount"`
	}
	require.NoError(t, json.Unmarshal(env["result"], &result))
	assert.Equal(t, 13.0, result.EligibleSubtotal)
	assert.Equal(t, 1.3, result.Discount)
}

func TestValidatePromotion_MinOrderConflict(t *testing.T) {
	f := newFixture()
	body := percentBody("BIGCART", 10)
	body["min_order_amount"] = 100
	f.createPromotion(t, body)

	req := map[string]any{
		"code": "BIGCART",
		"items": []map[string]any{
			{"product_id": 1, "quantity": 1, "price": 6.50},
		},
	}
	rec, env := f.do(t, http.MethodPost, "/promotions/validate", req, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "minimum order not met", envelopeMessage(t, env))
}

func TestValidatePromotion_UnknownCode(t *testing.T) {
	f := newFixture()

	req := map[string]any{
		"code": "NOPE",
		"items": []map[string]any{
			{"product_id": 1, "quantity": 1, "price": 5},
		},
	}
	rec, _ := f.do(t, http.MethodPost, "/promotions/validate", req, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRedeemPromotion_DuplicateOrder(t *testing.T) {
	f := newFixture()
	f.createPromotion(t, percentBody("SAVE10", 10))

	body := map[string]any{"order_id": 42}
	rec, env := f.do(t, http.MethodPost, "/promotions/1/redeem", body, "")
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())

	var result struct {
		Success bool `json:"success"`
	}
	require.NoError(t, json.Unmarshal(env["result"], &result))
	assert.True(t, result.Success)

	rec, env = f.do(t, http.MethodPost, "/promotions/1/redeem", body, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "order already used this promotion", envelopeMessage(t, env))
}

func TestRedeemPromotion_MissingOrderID(t *testing.T) {
	f := newFixture()
	f.createPromotion(t, percentBody("SAVE10", 10))

	rec, env := f.do(t, http.MethodPost, "/promotions/1/redeem", map[string]any{}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, envelopeMessage(t, env), "order_id")
}

func TestListProducts(t *testing.T) {
	f := newFixture()

	rec, env := f.do(t, http.MethodGet, "/products", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var views []productView
	require.NoError(t, json.Unmarshal(env["result"], &views))
	assert.Len(t, views, 2)
}

func TestGetProduct_NotFound(t *testing.T) {
	f := newFixture()

	rec, env := f.do(t, http.MethodGet, "/products/999", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "product not found", envelopeMessage(t, env))
}
