package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/okrause/shelfmark/internal/domain"
)

func Test_PageRequest_Normalized(t *testing.T) {
	testCases := []struct {
		name string
		in   domain.PageRequest
		want domain.PageRequest
	}{
		{name: "zero value gets defaults", in: domain.PageRequest{}, want: domain.PageRequest{Page: 0, Size: 20}},
		{name: "negative page clamps to zero", in: domain.PageRequest{Page: -3, Size: 10}, want: domain.PageRequest{Page: 0, Size: 10}},
		{name: "oversized page size clamps", in: domain.PageRequest{Page: 1, Size: 1000}, want: domain.PageRequest{Page: 1, Size: 100}},
		{name: "valid request unchanged", in: domain.PageRequest{Page: 2, Size: 50}, want: domain.PageRequest{Page: 2, Size: 50}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.in.Normalized())
		})
	}
}

func Test_PageRequest_Offset(t *testing.T) {
	assert.Equal(t, 0, domain.PageRequest{Page: 0, Size: 20}.Offset())
	assert.Equal(t, 40, domain.PageRequest{Page: 2, Size: 20}.Offset())
}

func Test_NewPage_DerivesTotalPages(t *testing.T) {
	page := domain.NewPage([]int{1, 2, 3}, domain.PageRequest{Page: 0, Size: 3}, 7)

	assert.Equal(t, 3, page.TotalPages)
	assert.Equal(t, int64(7), page.TotalItems)
	assert.Len(t, page.Items, 3)
}

func Test_NewPage_WhenEmpty(t *testing.T) {
	page := domain.NewPage[int](nil, domain.PageRequest{Page: 0, Size: 20}, 0)

	assert.Equal(t, 0, page.TotalPages)
	assert.Empty(t, page.Items)
}

func Test_ReservationStateError_Unwrap(t *testing.T) {
	err := &domain.ReservationStateError{Status: domain.ReservationStatusExpired}

	assert.ErrorIs(t, err, domain.ErrInvalidReservationState)
	assert.Contains(t, err.Error(), "EXPIRED")
}
