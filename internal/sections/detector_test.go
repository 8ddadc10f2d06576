package sections

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetect(t *testing.T) {
	t.Run("uppercase experience heading", func(t *testing.T) {
		got := Detect("[PRÉNOM_MASQUÉ] [NOM_MASQUÉ]\nEXPERIENCE PROFESSIONNELLE\nChef de rayon")

		assert.True(t, got[Experience])
		for _, s := range All {
			if s != Experience {
				assert.False(t, got[s], "section %s", s)
			}
		}
		assert.Equal(t, []Section{Experience}, got.Found())
	})

	t.Run("accented and mixed languages", func(t *testing.T) {
		got := Detect("Compétences\nLangues : anglais\nCentres d'intérêt : voile\nÉducation")

		assert.True(t, got[Skills])
		assert.True(t, got[Languages])
		assert.True(t, got[Interests])
		assert.True(t, got[Education])
		assert.False(t, got[Projects])
		assert.False(t, got[Certifications])
	})

	t.Run("keywords must be whole words", func(t *testing.T) {
		got := Detect("Informations diverses")
		assert.False(t, got[Education])
	})

	t.Run("empty text has every key", func(t *testing.T) {
		got := Detect("")
		assert.Len(t, got, len(All))
		assert.Empty(t, got.Found())
	})
}
