package main

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stockflow/engine/internal/common"
)

func TestRespondErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("bad ticker: %w", common.ErrInvalidInput), http.StatusBadRequest},
		{fmt.Errorf("no such entity: %w", common.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("provider 503: %w", common.ErrUpstreamUnavailable), http.StatusBadGateway},
		{fmt.Errorf("disk full"), http.StatusInternalServerError},
		{nil, http.StatusOK},
	}

	for _, tc := range cases {
		rec := httptest.NewRecorder()
		respond(rec, map[string]string{"ok": "yes"}, tc.err)
		assert.Equal(t, tc.want, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	}
}

func TestStepsParam(t *testing.T) {
	assert.Nil(t, stepsParam(""))
	assert.Equal(t, []int{1, 2}, stepsParam("1,2"))
	assert.Equal(t, []int{2}, stepsParam(" 2 "))
	assert.Equal(t, []int{1}, stepsParam("1,3,x"), "out-of-range and junk steps are dropped")
}
