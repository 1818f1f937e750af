package session

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/kubestellar/aks-console/pkg/errors"
)

func testPrincipal() Principal {
	return Principal{
		ClientID:       "app-id",
		ClientSecret:   "s3cret",
		TenantID:       "tenant",
		SubscriptionID: "sub-1",
	}
}

func TestStore_CreateAndGet(t *testing.T) {
	st, err := NewStore()
	require.NoError(t, err)

	s, err := st.Create(testPrincipal())
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, s.ID)
	assert.Equal(t, 1, st.Len())

	got, err := st.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)

	p, err := got.Principal()
	require.NoError(t, err)
	assert.Equal(t, testPrincipal(), p)
}

func TestStore_GetUnknown(t *testing.T) {
	st, err := NewStore()
	require.NoError(t, err)

	_, err = st.Get(uuid.New())
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeAuthentication))
	assert.Contains(t, err.Error(), "not authenticated")
}

func TestStore_ReplaceKeepsID(t *testing.T) {
	st, err := NewStore()
	require.NoError(t, err)

	old, err := st.Create(testPrincipal())
	require.NoError(t, err)

	next := Principal{ClientID: "other", ClientSecret: "x", TenantID: "t2"}
	replaced, err := st.Replace(old.ID, next)
	require.NoError(t, err)
	assert.Equal(t, old.ID, replaced.ID)
	assert.Equal(t, 1, st.Len())

	// The old handle keeps its own credentials.
	p, err := old.Principal()
	require.NoError(t, err)
	assert.Equal(t, "app-id", p.ClientID)

	got, err := st.Get(old.ID)
	require.NoError(t, err)
	p, err = got.Principal()
	require.NoError(t, err)
	assert.Equal(t, next, p)
	assert.Empty(t, got.SubscriptionID())
}

func TestStore_ReplaceUnknown(t *testing.T) {
	st, err := NewStore()
	require.NoError(t, err)

	_, err = st.Replace(uuid.New(), testPrincipal())
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeAuthentication))
}

func TestStore_ClearIdempotent(t *testing.T) {
	st, err := NewStore()
	require.NoError(t, err)

	s, err := st.Create(testPrincipal())
	require.NoError(t, err)

	st.Clear(s.ID)
	st.Clear(s.ID)
	assert.Equal(t, 0, st.Len())

	_, err = st.Get(s.ID)
	assert.Error(t, err)
}

func TestPrincipal_Missing(t *testing.T) {
	assert.Empty(t, testPrincipal().Missing())
	assert.Equal(t, []string{"clientId", "clientSecret", "tenantId"}, Principal{}.Missing())
	assert.Equal(t, []string{"tenantId"}, Principal{ClientID: "a", ClientSecret: "b", TenantID: "  "}.Missing())
}

func TestSealOpen_RoundTrip(t *testing.T) {
	key := make([]byte, keyBytes)
	for i := range key {
		key[i] = byte(i)
	}
	ad := []byte("session-a")

	s, err := seal(key, []byte("hunter2"), ad)
	require.NoError(t, err)
	assert.Len(t, s.nonce, nonceBytes)
	assert.NotContains(t, string(s.ciphertext), "hunter2")

	plain, err := open(key, s, ad)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", string(plain))
}

func TestOpen_WrongAdditionalData(t *testing.T) {
	key := make([]byte, keyBytes)
	s, err := seal(key, []byte("hunter2"), []byte("session-a"))
	require.NoError(t, err)

	_, err = open(key, s, []byte("session-b"))
	assert.Error(t, err)
}

func TestOpen_Nil(t *testing.T) {
	plain, err := open(make([]byte, keyBytes), nil, nil)
	require.NoError(t, err)
	assert.Nil(t, plain)
}
