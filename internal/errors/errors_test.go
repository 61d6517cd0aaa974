package errors

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorCode(t *testing.T) {
	cases := map[string]struct {
		err  error
		want string
	}{
		"generic not found":    {NewError("x").Mark(ErrNotFound), ErrCodeGenericNotFound},
		"serial code missing":  {NewError("x").Mark(ErrCodeNotFound), ErrCodeSerialCodeNotFound},
		"reservation missing":  {NewError("x").Mark(ErrReservationNotFound), ErrCodeReservationNotFound},
		"malformed":            {NewError("x").Mark(ErrMalformedCode), ErrCodeMalformedCode},
		"wrapped storage down": {WithError(NewError("x").Mark(ErrStorageUnavailable)).WithHint("retry later").Mark(ErrDatabase), ErrCodeStorageUnavailable},
		"unmarked":             {NewError("x").Error(), ErrCodeSystemError},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, ErrorCode(tc.err))
		})
	}
}

func TestNotFoundSentinelsAreDistinct(t *testing.T) {
	generic := NewError("x").Mark(ErrNotFound)
	code := NewError("x").Mark(ErrCodeNotFound)

	assert.Equal(t, "not_found", ErrorCode(generic))
	assert.Equal(t, "code_not_found", ErrorCode(code))

	assert.True(t, IsNotFound(generic))
	assert.True(t, IsNotFound(code))
	assert.False(t, Is(generic, ErrCodeNotFound))
	assert.False(t, Is(code, ErrNotFound))

	assert.Equal(t, http.StatusNotFound, HTTPStatusFromErr(generic))
	assert.Equal(t, http.StatusNotFound, HTTPStatusFromErr(code))
}

func TestHTTPStatusFromErr(t *testing.T) {
	assert.Equal(t, http.StatusGone, HTTPStatusFromErr(NewError("x").Mark(ErrReservationExpired)))
	assert.Equal(t, http.StatusConflict, HTTPStatusFromErr(NewError("x").Mark(ErrReservationAlreadyResolved)))
	assert.Equal(t, http.StatusBadRequest, HTTPStatusFromErr(NewError("x").Mark(ErrMalformedCode)))
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatusFromErr(NewError("x").Mark(ErrStorageUnavailable)))
	assert.Equal(t, http.StatusGatewayTimeout, HTTPStatusFromErr(NewError("x").Mark(ErrStorageTimeout)))
}
