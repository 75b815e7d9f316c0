package starscream

import (
	"strconv"
	"testing"

	"github.com/dsato80/starscream/internal/test/assert"
)

func TestValidWireCloseCode(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		code  StatusCode
		valid bool
	}{
		{999, false},
		{StatusNormalClosure, true},
		{StatusGoingAway, true},
		{StatusProtocolError, true},
		{StatusUnsupportedData, true},
		{1004, false},
		{StatusNoStatusRcvd, false},
		{1006, false},
		{StatusInvalidFramePayloadData, true},
		{StatusPolicyViolation, true},
		{StatusMessageTooBig, true},
		{StatusMandatoryExtension, true},
		{StatusInternalError, true},
		{1012, false},
		{1013, false},
		{1014, false},
		{1015, false},
		{1016, false},
		{2999, false},
		{3000, true},
		{4999, true},
		{5000, false},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(strconv.Itoa(int(tc.code)), func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, "valid", tc.valid, validWireCloseCode(tc.code))
		})
	}
}

func TestCloseErrorBytes(t *testing.T) {
	t.Parallel()

	p, err := CloseError{Code: StatusNormalClosure, Reason: "bye"}.bytes()
	assert.Success(t, err)
	assert.Equal(t, "close payload", []byte{0x3, 0xe8, 'b', 'y', 'e'}, p)

	_, err = CloseError{Code: StatusNoStatusRcvd}.bytes()
	assert.Error(t, err)

	_, err = CloseError{Code: StatusNormalClosure, Reason: string(make([]byte, 124))}.bytes()
	assert.Error(t, err)
}

func TestCloseStatus(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "status", StatusNormalClosure, CloseStatus(CloseError{Code: StatusNormalClosure}))
	assert.Equal(t, "status", StatusCode(-1), CloseStatus(nil))
	assert.Equal(t, "status", StatusCode(-1), CloseStatus(&Error{Code: 1}))
}
