package credential

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SetIfNewer_AcceptsFirstKey(t *testing.T) {
	s := NewStore()
	accepted := s.SetIfNewer(OAuthKey{AccessToken: "a", RefreshToken: "r", ExpiresAt: 100})
	require.True(t, accepted)
	require.NotNil(t, s.Get())
	assert.Equal(t, "a", s.Get().AccessToken)
}

func TestStore_SetIfNewer_StaticIncumbentNeverDisplaced(t *testing.T) {
	s := NewStore()
	s.SetIfNewer(OAuthKey{AccessToken: "static", ExpiresAt: 0})

	accepted := s.SetIfNewer(OAuthKey{AccessToken: "dynamic", RefreshToken: "r", ExpiresAt: 99999999999})
	assert.False(t, accepted)
	assert.Equal(t, "static", s.Get().AccessToken)
}

func TestStore_SetIfNewer_NonStaticDisplacedOnlyByStrictlyLater(t *testing.T) {
	s := NewStore()
	s.SetIfNewer(OAuthKey{AccessToken: "a", RefreshToken: "r", ExpiresAt: 1000})

	assert.False(t, s.SetIfNewer(OAuthKey{AccessToken: "b", RefreshToken: "r", ExpiresAt: 1000}))
	assert.False(t, s.SetIfNewer(OAuthKey{AccessToken: "c", RefreshToken: "r", ExpiresAt: 500}))
	assert.True(t, s.SetIfNewer(OAuthKey{AccessToken: "d", RefreshToken: "r", ExpiresAt: 1001}))
	assert.Equal(t, "d", s.Get().AccessToken)
}

func TestStore_SetIfNewer_StaticCandidateDisplacesNonStaticIncumbent(t *testing.T) {
	s := NewStore()
	s.SetIfNewer(OAuthKey{AccessToken: "a", RefreshToken: "r", ExpiresAt: 1000})
	assert.True(t, s.SetIfNewer(OAuthKey{AccessToken: "static", ExpiresAt: 0}))
	assert.Equal(t, "static", s.Get().AccessToken)
}

func TestStore_Get_ReturnsSnapshotNotAlias(t *testing.T) {
	s := NewStore()
	s.SetIfNewer(OAuthKey{AccessToken: "a", RefreshToken: "r", ExpiresAt: 1000})
	snap := s.Get()
	snap.AccessToken = "mutated"
	assert.Equal(t, "a", s.Get().AccessToken)
}

func TestNeedsRefresh(t *testing.T) {
	now := time.Now().UnixMilli()
	buffer := 5 * time.Minute

	assert.False(t, NeedsRefresh(nil, buffer))
	assert.False(t, NeedsRefresh(&OAuthKey{AccessToken: "a", ExpiresAt: 0}, buffer))
	assert.False(t, NeedsRefresh(&OAuthKey{AccessToken: "a", ExpiresAt: now + buffer.Milliseconds()*2}, buffer))
	assert.True(t, NeedsRefresh(&OAuthKey{AccessToken: "a", RefreshToken: "r", ExpiresAt: now + buffer.Milliseconds()/2}, buffer))
}

func TestStore_BeginRefresh_SingleInFlight(t *testing.T) {
	s := NewStore()
	require.True(t, s.beginRefresh())
	assert.False(t, s.beginRefresh(), "a second concurrent refresh must be told to skip, not queue")
	s.endRefresh()
	assert.True(t, s.beginRefresh())
}
