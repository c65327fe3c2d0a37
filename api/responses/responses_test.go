package responses

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/ordercore/pkg/errors"
	"github.com/angelmondragon/ordercore/pkg/types"
)

func TestWriteSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccessStatus(w, http.StatusCreated, map[string]string{"hello": "world"})

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body types.SuccessEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "world", body.Data.(map[string]any)["hello"])
}

func TestWriteErrorCarriesReasonAndDetails(t *testing.T) {
	w := httptest.NewRecorder()
	err := pkgerrors.New(pkgerrors.CodeConflict, "refund exceeds balance").
		WithReason(pkgerrors.ReasonRefundExceedsBalance).
		WithDetails(map[string]string{"remaining_balance": "15.00"})
	WriteError(t.Context(), nil, w, err)

	require.Equal(t, http.StatusConflict, w.Code)
	var body types.ErrorEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, string(pkgerrors.CodeConflict), body.Error.Code)
	assert.Equal(t, "refund_exceeds_balance", body.Error.Reason)
	assert.Equal(t, "refund exceeds balance", body.Error.Message)
	assert.Equal(t, "15.00", body.Error.Details.(map[string]any)["remaining_balance"])
	assert.Nil(t, body.Error.Debug)
}

func TestWriteErrorDefaultsToInternalForUntrustedErrors(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(t.Context(), nil, w, errors.New("boom"))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	var body types.ErrorEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, string(pkgerrors.CodeInternal), body.Error.Code)
	assert.Equal(t, "internal server error", body.Error.Message)
	assert.Nil(t, body.Error.Details)
}

func TestWriteErrorHidesForbiddenDetails(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(t.Context(), nil, w, pkgerrors.New(pkgerrors.CodeForbidden, "not your order").WithDetails("secret"))

	require.Equal(t, http.StatusForbidden, w.Code)
	var body types.ErrorEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Nil(t, body.Error.Details)
}

func TestWriteErrorExposesDiagnosticsWhenEnabled(t *testing.T) {
	ExposeDiagnostics(true)
	t.Cleanup(func() { ExposeDiagnostics(false) })

	w := httptest.NewRecorder()
	WriteError(t.Context(), nil, w, pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("db down"), "db: save order"))

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	var body types.ErrorEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	debug, ok := body.Error.Debug.(map[string]any)
	require.True(t, ok)
	assert.Contains(t, debug["top_message"], "db: save order")
	assert.NotEmpty(t, debug["chain"])
}
