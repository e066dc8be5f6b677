package extraction

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTextIndex_AcronymOffsetIsCaseSensitive(t *testing.T) {
	text := "Firms look at boards first. Later, AT predicts monitoring."
	idx := newTextIndex(text)

	assert.True(t, idx.contains("AT"))
	assert.Equal(t, strings.Index(text, "AT "), idx.offset("Agency Theory", "AT"))
	assert.Equal(t, strings.Index(text, "at "), idx.offset("at"))
	assert.Equal(t, -1, idx.offset("BT"))
}

func TestTextIndex_OffsetFoldsOrdinaryForms(t *testing.T) {
	idx := newTextIndex("We draw on Agency Theory here.")
	assert.Equal(t, 11, idx.offset("agency theory"))
	assert.Equal(t, 11, idx.offset("stewardship theory", "AGENCY THEORY"))
}
