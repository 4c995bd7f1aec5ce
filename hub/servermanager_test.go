package hub

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dcpp-hub/adchub/adc"
)

func TestShardMaskWidthZeroIsWholeFederationLocal(t *testing.T) {
	sm := NewServerManager(0, 0x05000000)
	require.True(t, sm.IsLocal(adc.Uint32ToSID(0x00000001)))
	require.True(t, sm.IsLocal(adc.Uint32ToSID(0xFFFFFFFF)))
}

func TestIsLocalMatchesShardBitsOnly(t *testing.T) {
	sm := NewServerManager(8, 0x05000000)
	require.True(t, sm.IsLocal(adc.Uint32ToSID(0x05000001)))
	require.True(t, sm.IsLocal(adc.Uint32ToSID(0x050000FF)))
	require.False(t, sm.IsLocal(adc.Uint32ToSID(0x06000001)))
}

func TestNewServerManagerMasksShardIDAtConstruction(t *testing.T) {
	// shardID's low bits outside the mask must not affect shard identity.
	sm := NewServerManager(8, 0x050000AB)
	require.True(t, sm.IsLocal(adc.Uint32ToSID(0x05000000)))
}

func TestNextSIDCarriesShardBitsAndAdvances(t *testing.T) {
	sm := NewServerManager(8, 0x05000000)

	a, err := sm.NextSID()
	require.NoError(t, err)
	require.True(t, sm.IsLocal(a))

	b, err := sm.NextSID()
	require.NoError(t, err)
	require.True(t, sm.IsLocal(b))
	require.NotEqual(t, a, b)
}

func TestAddFederatedHubMasksShardIDAndLooksUpBySID(t *testing.T) {
	sm := NewServerManager(8, 0x05000000)
	sm.AddFederatedHub(&FederatedHub{ShardID: 0x06000099, Name: "peer"})

	h, ok := sm.FederatedHubFor(adc.Uint32ToSID(0x06000001))
	require.True(t, ok)
	require.Equal(t, "peer", h.Name)

	_, ok = sm.FederatedHubFor(adc.Uint32ToSID(0x07000001))
	require.False(t, ok)

	require.Len(t, sm.FederatedHubs(), 1)
}
