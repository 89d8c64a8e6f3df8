package security

import (
	"testing"

	"github.com/atinyakov/FarmCredit/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestRoundTrip(t *testing.T) {
	for _, s := range []string{"1234-5678-9012", "9876543210", "ñ unicode ✓", " "} {
		enc := Encrypt(s)
		assert.NotEqual(t, s, enc)
		assert.True(t, IsEncrypted(enc))
		assert.Equal(t, s, Decrypt(enc))
	}
}

func TestEmpty(t *testing.T) {
	assert.Equal(t, "", Encrypt(""))
	assert.Equal(t, "", Decrypt(""))
}

func TestDecrypt_PassThrough(t *testing.T) {
	assert.Equal(t, "plain", Decrypt("plain"))
	assert.Equal(t, "ENC_%%%", Decrypt("ENC_%%%"))
}

func TestMask(t *testing.T) {
	assert.Equal(t, "******3210", Mask("9876543210", 4))
	assert.Equal(t, "abc", Mask("abc", 4))
	assert.Equal(t, "", Mask("", 4))
}

func TestSealPersonal(t *testing.T) {
	p := models.Personal{FarmerName: "Sita", AadhaarOrID: "1111", Phone: "9876543211"}
	SealPersonal(&p)
	assert.Equal(t, Encrypt("1111"), p.AadhaarOrID)
	assert.Equal(t, Encrypt("9876543211"), p.Phone)
	assert.Equal(t, "Sita", p.FarmerName)

	SealPersonal(&p)
	assert.Equal(t, Encrypt("1111"), p.AadhaarOrID)

	OpenPersonal(&p)
	assert.Equal(t, "1111", p.AadhaarOrID)
	assert.Equal(t, "9876543211", p.Phone)
}
