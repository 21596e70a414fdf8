package licensing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTier(t *testing.T) {
	assert.Equal(t, TierPro, ParseTier("pro"))
	assert.Equal(t, TierPro, ParseTier(" PRO "))
	assert.Equal(t, TierEnterprise, ParseTier("Enterprise"))
	assert.Equal(t, TierFree, ParseTier("free"))
	assert.Equal(t, TierFree, ParseTier(""))
	assert.Equal(t, TierFree, ParseTier("platinum"))
}

func TestParsePaidTiers(t *testing.T) {
	t.Run("empty uses default", func(t *testing.T) {
		set, err := ParsePaidTiers("")
		require.NoError(t, err)
		assert.Equal(t, "enterprise,pro", set.String())
	})

	t.Run("subset", func(t *testing.T) {
		set, err := ParsePaidTiers(" Enterprise , ")
		require.NoError(t, err)
		assert.True(t, set.Contains(TierEnterprise))
		assert.False(t, set.Contains(TierPro))
	})

	t.Run("free rejected", func(t *testing.T) {
		_, err := ParsePaidTiers("pro,free")
		require.Error(t, err)
	})

	t.Run("unknown rejected", func(t *testing.T) {
		_, err := ParsePaidTiers("gold")
		require.Error(t, err)
	})
}

func TestNilPaidTiersBehavesLikeDefault(t *testing.T) {
	var set PaidTiers
	assert.True(t, set.Contains(TierPro))
	assert.True(t, set.Contains(TierEnterprise))
	assert.False(t, set.Contains(TierFree))
}
