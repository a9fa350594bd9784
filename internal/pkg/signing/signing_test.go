package signing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignAndVerify(t *testing.T) {
	s := New("secret")

	token := s.Sign("/img/photo,small.jpg")
	assert.Len(t, token, 64)
	assert.Equal(t, token, s.Sign("img/photo,small.jpg"))

	assert.True(t, s.Verify("img/photo,small.jpg", token))
	assert.False(t, s.Verify("img/photo,large.jpg", token))
	assert.False(t, s.Verify("img/photo,small.jpg", ""))
	assert.False(t, New("other").Verify("img/photo,small.jpg", token))
}
