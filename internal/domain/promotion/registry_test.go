package promotion

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRegistry(promos *mockPromotionRepo, redemptions *mockRedemptionRepo) *Registry {
	if promos.byID == nil {
		promos.byID = map[int64]*Promotion{}
	}
	if promos.byCode == nil {
		promos.byCode = map[string]*Promotion{}
	}
	if redemptions == nil {
		redemptions = &mockRedemptionRepo{}
	}
	return NewRegistry(promos, redemptions)
}

func validDraft() Draft {
	return Draft{
		Title:           "Spring Sale",
		Code:            "SPRING20",
		Kind:            KindPercent,
		DiscountPercent: dec("20"),
		Active:          true,
	}
}

func TestCreate_Valid(t *testing.T) {
	repo := &mockPromotionRepo{}
	r := newRegistry(repo, nil)

	p, err := r.Create(context.Background(), validDraft())
	require.NoError(t, err)
	assert.Equal(t, "Spring Sale", p.Title)
	assert.Equal(t, "SPRING20", p.Code)
	assert.Equal(t, KindPercent, p.Kind)
}

func TestCreate_TrimsTitleAndCode(t *testing.T) {
	repo := &mockPromotionRepo{}
	r := newRegistry(repo, nil)

	d := validDraft()
	d.Title = "  Spring Sale  "
	d.Code = " SPRING20 "

	p, err := r.Create(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, "Spring Sale", p.Title)
	assert.Equal(t, "SPRING20", p.Code)
}

func TestCreate_ValidationFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Draft)
		field  string
	}{
		{"missing title", func(d *Draft) { d.Title = "" }, "title"},
		{"blank title", func(d *Draft) { d.Title = "   " }, "title"},
		{"missing code", func(d *Draft) { d.Code = "" }, "code"},
		{"missing kind", func(d *Draft) { d.Kind = "" }, "kind"},
		{"unknown kind", func(d *Draft) { d.Kind = "bogus" }, "kind"},
		{"zero percent", func(d *Draft) { d.DiscountPercent = dec("0") }, "discount_percent"},
		{"percent above 100", func(d *Draft) { d.DiscountPercent = dec("100.01") }, "discount_percent"},
		{"negative percent", func(d *Draft) { d.DiscountPercent = dec("-5") }, "discount_percent"},
		{"negative amount", func(d *Draft) {
			d.Kind = KindAmount
			d.DiscountAmount = dec("-1")
		}, "discount_amount"},
		{"negative min order", func(d *Draft) { d.MinOrderAmount = dec("-1") }, "min_order_amount"},
		{"negative total quota", func(d *Draft) { d.MaxTotalUses = i32(-1) }, "max_total_uses"},
		{"negative user quota", func(d *Draft) { d.MaxUsesPerUser = i32(-1) }, "max_uses_per_user"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRegistry(&mockPromotionRepo{}, nil)

			d := validDraft()
			tt.mutate(&d)

			_, err := r.Create(context.Background(), d)
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
		})
	}
}

func TestCreate_PercentBoundaryValues(t *testing.T) {
	r := newRegistry(&mockPromotionRepo{}, nil)

	d := validDraft()
	d.DiscountPercent = dec("100")
	_, err := r.Create(context.Background(), d)
	require.NoError(t, err)

	d.DiscountPercent = dec("0.01")
	_, err = r.Create(context.Background(), d)
	require.NoError(t, err)
}

func TestCreate_ZeroAmountAllowed(t *testing.T) {
	r := newRegistry(&mockPromotionRepo{}, nil)

	d := validDraft()
	d.Kind = KindAmount
	d.DiscountPercent = dec("0")
	d.DiscountAmount = dec("0")
	_, err := r.Create(context.Background(), d)
	require.NoError(t, err)
}

func TestCreate_CodeConflict(t *testing.T) {
	repo := &mockPromotionRepo{createErr: ErrCodeExists}
	r := newRegistry(repo, nil)

	_, err := r.Create(context.Background(), validDraft())
	require.ErrorIs(t, err, ErrCodeExists)
}

func TestUpdate_PartialRetainsOtherFields(t *testing.T) {
	existing := percentPromo("SPRING20", "20")
	existing.Description = "original description"
	repo := &mockPromotionRepo{byID: map[int64]*Promotion{1: existing}}
	r := newRegistry(repo, nil)

	title := "Renamed Sale"
	p, err := r.Update(context.Background(), 1, Update{Title: &title})
	require.NoError(t, err)

	assert.Equal(t, "Renamed Sale", p.Title)
	assert.Equal(t, "SPRING20", p.Code)
	assert.Equal(t, "original description", p.Description)
	assert.True(t, p.DiscountPercent.Equal(dec("20")))
}

func TestUpdate_ValidatesAgainstNewKind(t *testing.T) {
	existing := percentPromo("SPRING20", "20")
	repo := &mockPromotionRepo{byID: map[int64]*Promotion{1: existing}}
	r := newRegistry(repo, nil)

	// Switching to amount must not trip the percent range check on the
	// now-dormant percent field.
	kind := KindAmount
	amount := dec("5")
	p, err := r.Update(context.Background(), 1, Update{Kind: &kind, DiscountAmount: &amount})
	require.NoError(t, err)
	assert.Equal(t, KindAmount, p.Kind)
	assert.True(t, p.DiscountAmount.Equal(dec("5")))
}

func TestUpdate_RejectsInvalidMergedState(t *testing.T) {
	existing := percentPromo("SPRING20", "20")
	repo := &mockPromotionRepo{byID: map[int64]*Promotion{1: existing}}
	r := newRegistry(repo, nil)

	bad := dec("150")
	_, err := r.Update(context.Background(), 1, Update{DiscountPercent: &bad})

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "discount_percent", vErr.Field)
	assert.Nil(t, repo.saved)
}

func TestUpdate_NotFound(t *testing.T) {
	r := newRegistry(&mockPromotionRepo{}, nil)

	title := "x"
	_, err := r.Update(context.Background(), 1, Update{Title: &title})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdate_EmptyIsIdempotent(t *testing.T) {
	existing := percentPromo("SPRING20", "20")
	repo := &mockPromotionRepo{byID: map[int64]*Promotion{1: existing}}
	r := newRegistry(repo, nil)

	p, err := r.Update(context.Background(), 1, Update{})
	require.NoError(t, err)
	assert.Equal(t, existing.Title, p.Title)
	assert.Equal(t, existing.Code, p.Code)
}

func TestGetActiveByCode_QuotaExhaustedReadsAsMissing(t *testing.T) {
	p := percentPromo("SPRING20", "20")
	p.MaxTotalUses = i32(3)
	repo := &mockPromotionRepo{
		byID:   map[int64]*Promotion{1: p},
		byCode: map[string]*Promotion{strings.ToLower(p.Code): p},
	}
	redemptions := &mockRedemptionRepo{totalUses: map[int64]int64{1: 3}}
	r := newRegistry(repo, redemptions)

	_, err := r.GetActiveByCode(context.Background(), "SPRING20")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGetActiveByCode_UnderQuota(t *testing.T) {
	p := percentPromo("SPRING20", "20")
	p.MaxTotalUses = i32(3)
	repo := &mockPromotionRepo{
		byID:   map[int64]*Promotion{1: p},
		byCode: map[string]*Promotion{strings.ToLower(p.Code): p},
	}
	redemptions := &mockRedemptionRepo{totalUses: map[int64]int64{1: 2}}
	r := newRegistry(repo, redemptions)

	got, err := r.GetActiveByCode(context.Background(), "spring20")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.ID)
}

func TestDelete_Missing(t *testing.T) {
	r := newRegistry(&mockPromotionRepo{}, nil)

	_, err := r.Delete(context.Background(), 404)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAvailableAt(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	before := now.Add(-time.Hour)
	after := now.Add(time.Hour)

	tests := []struct {
		name string
		p    Promotion
		want bool
	}{
		{"active no window", Promotion{Active: true}, true},
		{"inactive", Promotion{Active: false}, false},
		{"inside window", Promotion{Active: true, StartsAt: &before, EndsAt: &after}, true},
		{"not started", Promotion{Active: true, StartsAt: &after}, false},
		{"ended", Promotion{Active: true, EndsAt: &before}, false},
		{"starts exactly now", Promotion{Active: true, StartsAt: &now}, true},
		{"ends exactly now", Promotion{Active: true, EndsAt: &now}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.p.AvailableAt(now))
		})
	}
}
