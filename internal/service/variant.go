package service

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/vantagemedia/adserver/internal/common"
	"github.com/vantagemedia/adserver/internal/domain"
)

// splitBuckets is the resolution of the sticky hash bucket. Scaling to
// 10000 before reducing to [0,100) keeps fractional split boundaries
// after normalization.
const splitBuckets = 10000

// ResolveVariant maps a visitor onto one of the test's variants. The
// assignment is sticky: the same visitorKey and ad always land in the
// same bucket, with no per-visitor state. Splits that do not sum to 100
// are normalized proportionally before building the cumulative table.
//
// Returns common.ErrInvalidTrafficSplit when the test declares no
// variants or the split total is not positive.
func ResolveVariant(test *domain.ABTest, visitorKey, adID string) (*domain.ABVariant, error) {
	if test == nil || len(test.Variants) == 0 {
		return nil, fmt.Errorf("%w: no variants declared", common.ErrInvalidTrafficSplit)
	}

	total := 0.0
	for _, v := range test.Variants {
		if v.SplitPercent < 0 {
			return nil, fmt.Errorf("%w: negative split for variant %q", common.ErrInvalidTrafficSplit, v.Name)
		}
		total += v.SplitPercent
	}
	if total <= 0 {
		return nil, fmt.Errorf("%w: split total is not positive", common.ErrInvalidTrafficSplit)
	}

	bucket := stickyBucket(visitorKey, adID)

	// Walk the cumulative table in variant declaration order
	acc := 0.0
	for i := range test.Variants {
		acc += test.Variants[i].SplitPercent / total * 100
		if bucket < acc {
			return &test.Variants[i], nil
		}
	}
	// Floating point edge at the top of the table
	return &test.Variants[len(test.Variants)-1], nil
}

// stickyBucket hashes visitorKey and ad id into a value in [0, 100)
func stickyBucket(visitorKey, adID string) float64 {
	h := xxhash.Sum64String(visitorKey + ":" + adID)
	return float64(h%splitBuckets) / splitBuckets * 100
}

// ValidateSplit checks an upsert request's variant list up front so a
// broken configuration fails at save time, not at delivery time
func ValidateSplit(variants []domain.ABVariantRequest) error {
	if len(variants) == 0 {
		return fmt.Errorf("%w: no variants declared", common.ErrInvalidTrafficSplit)
	}
	total := 0.0
	for _, v := range variants {
		if v.SplitPercent < 0 {
			return fmt.Errorf("%w: negative split for variant %q", common.ErrInvalidTrafficSplit, v.Name)
		}
		total += v.SplitPercent
	}
	if total <= 0 {
		return fmt.Errorf("%w: split total is not positive", common.ErrInvalidTrafficSplit)
	}
	return nil
}
