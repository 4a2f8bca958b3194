package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-orders/internal/shared"
)

type shortage struct{}

func (shortage) Error() string           { return "insufficient inventory" }
func (shortage) ErrorKind() shared.Kind  { return shared.KindBusiness }
func (shortage) Details() map[string]any { return map[string]any{"product_ids": []int64{7}} }

func TestRespondErrorMapsKinds(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("load: %w", shared.ErrNotFound), http.StatusNotFound},
		{shared.ErrValidation, http.StatusBadRequest},
		{shared.NewError(shared.KindConflict, "dup"), http.StatusConflict},
		{shortage{}, http.StatusUnprocessableEntity},
		{errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		assert.Equal(t, tc.status, rec.Code, tc.err.Error())
		assert.Equal(t, tc.status, StatusFor(tc.err))
		assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	}
}

func TestRespondErrorIncludesDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, fmt.Errorf("orders: %w", shortage{}))

	var body ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Business Rule Violated", body.Title)
	assert.Contains(t, body.Extensions, "product_ids")
}

func TestInternalErrorsHideDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, errors.New("password=secret"))
	assert.NotContains(t, rec.Body.String(), "secret")
}

type payload struct {
	Name     string `json:"name" validate:"required"`
	Quantity int64  `json:"quantity" validate:"gt=0"`
}

func TestDecodeAndValidate(t *testing.T) {
	v := validator.New()

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"","quantity":0}`))
	var p payload
	err := DecodeAndValidate(req, v, &p)
	var fe *FieldErrors
	require.ErrorAs(t, err, &fe)
	assert.Len(t, fe.Fields, 2)
	assert.Equal(t, shared.KindValidation, shared.KindOf(err))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x","quantity":2,"extra":true}`))
	err = DecodeAndValidate(req, v, &p)
	require.ErrorIs(t, err, shared.ErrValidation)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x","quantity":2}`))
	require.NoError(t, DecodeAndValidate(req, v, &p))
	assert.Equal(t, int64(2), p.Quantity)
}
