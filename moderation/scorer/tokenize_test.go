package scorer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	assert := assert.New(t)

	assert.Equal([]string{"urgente", "evacuacao", "necessaria", "risco", "de", "vida"},
		Tokenize("URGENTE: evacuação necessária, risco de vida"))

	assert.Equal([]string{"agua", "na", "rua"}, Tokenize("água   na rua!!!"))
	assert.Empty(Tokenize(""))
	assert.Empty(Tokenize("!!! ???"))
}

func TestLetterStats(t *testing.T) {
	assert := assert.New(t)

	letters, upper := letterStats("ABC def")
	assert.Equal(6, letters)
	assert.Equal(3, upper)

	letters, upper = letterStats("1234 !!")
	assert.Equal(0, letters)
	assert.Equal(0, upper)
}

func TestLongestRun(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(1, longestRun("abc"))
	assert.Equal(5, longestRun("aaaaabc"))
	assert.Equal(4, longestRun("ab!!!!cd"))
	assert.Equal(0, longestRun(""))
}
