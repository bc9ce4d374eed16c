package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeVehicleNumber(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "KL07AB1234", NormalizeVehicleNumber(" kl-07 ab 1234 "))
	assert.Equal(t, "KL07AB1234", NormalizeVehicleNumber("KL.07.AB.1234"))
	assert.Equal(t, "", NormalizeVehicleNumber("  "))
}

func TestMaskVehicleNumber(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "KL07****34", MaskVehicleNumber("KL07AB1234"))
	assert.Equal(t, "****34", MaskVehicleNumber("AB1234"))
	assert.Equal(t, "**", MaskVehicleNumber("AB"))
}

func TestMaskName(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "R**** K****", MaskName("Rahul  Kumar"))
	assert.Equal(t, "Ś*****", MaskName("Śankar"))
	assert.Equal(t, "", MaskName(""))
}

func TestMaskMobile(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "******3210", MaskMobile("3210"))
	assert.Equal(t, "", MaskMobile(""))
}

func TestNormalizeMobile(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "9847012345", NormalizeMobile("+91 98470 12345"))
	assert.Equal(t, "9847012345", NormalizeMobile("098470-12345"))
	assert.Equal(t, "9847012345", NormalizeMobile("(984) 701-2345"))
	assert.True(t, ValidMobile(NormalizeMobile("98470 12345")))
	assert.False(t, ValidMobile("98470A2345"))
	assert.False(t, ValidMobile("12345"))
}
