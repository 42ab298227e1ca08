package ember

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookupIdentClassifiesKeywords(t *testing.T) {
	assert.Equal(t, FUNCTION, LookupIdent("fn"))
	assert.Equal(t, RECOVER, LookupIdent("recover"))
	assert.Equal(t, IDENT, LookupIdent("fnord"))
	assert.Equal(t, IDENT, LookupIdent("Recover"))
}

func TestKindStringCoversOperators(t *testing.T) {
	assert.Equal(t, "<<=", LSHIFT_ASSIGN.String())
	assert.Equal(t, "==", EQ.String())
	assert.Equal(t, "TEMPLATE_STRING", TEMPLATE_STRING.String())
}
