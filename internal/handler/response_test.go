package handler

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/blues/tcf/internal/errs"
	"github.com/stretchr/testify/assert"
)

func TestStatusCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{errs.Action("get campaign", fmt.Errorf("%w: 9", errs.ErrCampaignNotFound)), http.StatusNotFound},
		{errs.Action("donate", errs.ErrInvalidAmount), http.StatusBadRequest},
		{errs.ErrInvalidCampaign, http.StatusBadRequest},
		{errs.Action("donate", errs.ErrCampaignClosed), http.StatusConflict},
		{errs.ErrNotDonator, http.StatusConflict},
		{errs.ErrAlreadyWithdrawn, http.StatusConflict},
		{errs.Action("end campaign", errs.External("endCampaign", errors.New("reverted"))), http.StatusBadGateway},
		{errs.Action("donate", errs.ContractData(1, "token price", errs.ErrInvalidAmount)), http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, StatusCode(tc.err), tc.err.Error())
	}
}

func TestNewPagination(t *testing.T) {
	assert.Equal(t, int64(3), NewPagination(1, 10, 21).TotalPage)
	assert.Equal(t, int64(0), NewPagination(1, 10, 0).TotalPage)
}
