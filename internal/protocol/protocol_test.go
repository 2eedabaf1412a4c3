package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/garyjia/trip-expense/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeFor(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorCode
	}{
		{fmt.Errorf("write: %w", entity.ErrTripLocked), CodeTripLocked},
		{entity.ErrVersionConflict, CodeVersionConflict},
		{entity.ErrRevisionNoteRequired, CodeValidation},
		{fmt.Errorf("%w: bad token", entity.ErrAuth), CodeAuth},
		{errors.New("disk full"), CodeInternal},
	}

	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			assert.Equal(t, tt.want, CodeFor(tt.err))
		})
	}
}

func TestFailure_SetsAuthError(t *testing.T) {
	resp := Failure(entity.ErrAuth)
	assert.False(t, resp.Success)
	assert.True(t, resp.AuthError)
	assert.Equal(t, CodeAuth, resp.ErrorCode)

	assert.False(t, Failure(entity.ErrTripLocked).AuthError)
}

func TestResponse_ErrRoundTripsSentinels(t *testing.T) {
	for _, sentinel := range []error{
		entity.ErrTripLocked,
		entity.ErrVersionConflict,
		entity.ErrUnknownAction,
		entity.ErrAuth,
		entity.ErrNotFound,
	} {
		err := Failure(fmt.Errorf("wrapped: %w", sentinel)).Err()
		assert.ErrorIs(t, err, sentinel)
	}

	assert.NoError(t, (&Response{Success: true}).Err())
}

func TestResponse_ErrAuthFlagWithoutCode(t *testing.T) {
	err := (&Response{AuthError: true, Error: "expired"}).Err()
	assert.ErrorIs(t, err, entity.ErrAuth)
}

func TestRequest_DecodesChanges(t *testing.T) {
	var req Request
	err := json.Unmarshal([]byte(`{"action":"adminEditExpense","expenseId":"e1","changes":{"amount":15,"belongTo":"Ben"}}`), &req)
	require.NoError(t, err)
	require.NotNil(t, req.Changes)

	exp := &entity.Expense{Amount: 10, ExchangeRate: 2, AmountNTD: 20, Description: "taxi"}
	req.Changes.Apply(exp)

	assert.Equal(t, ActionAdminEditExpense, req.Action)
	assert.Equal(t, 30.0, exp.AmountNTD)
	assert.Equal(t, "Ben", exp.BelongTo)
	assert.Equal(t, "taxi", exp.Description)
}
