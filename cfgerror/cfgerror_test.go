package cfgerror_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Nuitfanee/clicksync/cfgerror"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, cfgerror.Kind(""), cfgerror.KindOf(nil))
	assert.Equal(t, cfgerror.KindBadParam, cfgerror.KindOf(cfgerror.BadParam("x", 1, "r")))
	assert.Equal(t, cfgerror.KindIoAckTimeout, cfgerror.KindOf(cfgerror.IoAckTimeout(350)))
	assert.Equal(t, cfgerror.KindUnknown, cfgerror.KindOf(errors.New("plain")))
}

func TestKindOfWrapped(t *testing.T) {
	err := fmt.Errorf("context: %w", cfgerror.IoTimeout(1200))
	assert.Equal(t, cfgerror.KindIoTimeout, cfgerror.KindOf(err))
}

func TestWrapPassesThrough(t *testing.T) {
	orig := cfgerror.FeatureUnsupported("pollingHz", 125, 1000)
	assert.Equal(t, orig, cfgerror.Wrap(fmt.Errorf("outer: %w", orig)))
	w := cfgerror.Wrap(errors.New("plain"))
	assert.Equal(t, cfgerror.KindUnknown, w.Kind)
}

func TestErrorStrings(t *testing.T) {
	assert.Equal(t, "bad_param: dpi: value 99999: out of range", cfgerror.BadParam("dpi", 99999, "out of range").Error())
	assert.Contains(t, cfgerror.IoCmdMismatch(0x05, 0x99).Error(), "0x05")
	assert.Contains(t, cfgerror.IoCmdMismatch(0x05, 0x99).Error(), "0x99")
}
