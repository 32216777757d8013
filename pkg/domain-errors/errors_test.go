package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeKinds(t *testing.T) {
	cases := map[Code]Kind{
		CodeValidation:   KindValidation,
		CodeBadRequest:   KindValidation,
		CodeInvalidInput: KindValidation,
		CodeNotFound:     KindBusiness,
		CodeConflict:     KindBusiness,
		CodeBusinessRule: KindBusiness,
		CodeInternal:     KindTechnical,
		CodeTimeout:      KindTechnical,
		CodeUnavailable:  KindTechnical,
		Code("unknown"):  KindTechnical,
	}
	for code, kind := range cases {
		assert.Equal(t, kind, code.Kind(), "code %s", code)
	}
	assert.True(t, CodeTimeout.Retryable())
	assert.False(t, CodeValidation.Retryable())
}

func TestHasCodeWalksChain(t *testing.T) {
	inner := WithReason(CodeValidation, "InvalidDates", "expiry before reduction")
	outer := Wrap(fmt.Errorf("evaluate: %w", inner), CodeInternal, "wrapped")

	assert.True(t, HasCode(outer, CodeInternal))
	assert.True(t, HasCode(outer, CodeValidation))
	assert.False(t, HasCode(outer, CodeNotFound))
	assert.Equal(t, CodeInternal, CodeOf(outer))
	assert.Equal(t, "InvalidDates", ReasonOf(outer))
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, CodeInternal, "nothing"))
}

func TestPlainErrorsDefaultToInternal(t *testing.T) {
	err := errors.New("boom")
	assert.Equal(t, CodeInternal, CodeOf(err))
	assert.Equal(t, KindTechnical, KindOf(err))
	assert.Empty(t, ReasonOf(err))
}
