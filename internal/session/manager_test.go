package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mollebakken/artconnect/internal/credcache"
	"github.com/mollebakken/artconnect/internal/directory"
	dirmem "github.com/mollebakken/artconnect/internal/directory/memory"
	"github.com/mollebakken/artconnect/internal/identity"
	idmem "github.com/mollebakken/artconnect/internal/identity/memory"
	"github.com/mollebakken/artconnect/internal/netmon"
	"github.com/mollebakken/artconnect/internal/qrproto"
)

type fixture struct {
	manager  *Manager
	provider *idmem.Provider
	dir      *dirmem.Directory
	cache    *credcache.Store
	monitor  *netmon.Monitor
	recorder *Recorder
}

func newFixture(t *testing.T, online bool) *fixture {
	t.Helper()

	cache, err := credcache.NewStore(t.TempDir())
	require.NoError(t, err)

	f := &fixture{
		provider: idmem.NewProvider(),
		dir:      dirmem.New(),
		cache:    cache,
		monitor:  netmon.New(netmon.Always(online)),
		recorder: &Recorder{},
	}

	f.manager, err = NewManager(Config{
		Provider:  f.provider,
		Monitor:   f.monitor,
		Directory: f.dir,
		Cache:     f.cache,
		Notifier:  f.recorder,
		Retry: RetryPolicy{
			MaxAttempts:  3,
			InitialDelay: time.Millisecond,
			Multiplier:   1.5,
		},
	})
	require.NoError(t, err)

	return f
}

func (f *fixture) run(t *testing.T) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	go func() {
		_ = f.manager.Run(ctx)
	}()
}

func lastNotice(t *testing.T, r *Recorder) Notice {
	t.Helper()

	n, ok := r.Last()
	require.True(t, ok, "expected at least one notice")
	return n
}

func TestNewManager_RequiresProviderAndMonitor(t *testing.T) {
	_, err := NewManager(Config{Monitor: netmon.New(nil)})
	require.Error(t, err)

	_, err = NewManager(Config{Provider: idmem.NewProvider()})
	require.Error(t, err)
}

func TestSignInWithPassword(t *testing.T) {
	t.Run("success synthesizes the login identity and caches credential", func(t *testing.T) {
		f := newFixture(t, true)
		f.provider.Seed("emma@mollebakken.internal", "secret")

		sess, err := f.manager.SignInWithPassword(context.Background(), "emma", "secret")
		require.NoError(t, err)
		require.NotNil(t, sess)
		assert.Equal(t, "emma@mollebakken.internal", sess.Email)
		assert.False(t, sess.Offline)
		assert.Equal(t, StateSignedIn, f.manager.State())

		assert.Equal(t, Notice{Kind: KindSuccess, Message: "Welcome back!"}, lastNotice(t, f.recorder))

		cred, err := f.cache.Load()
		require.NoError(t, err)
		require.NotNil(t, cred)
		assert.Equal(t, "emma@mollebakken.internal", cred.Email)
		assert.NotEmpty(t, cred.Token)
	})

	t.Run("rejected credential is not retried", func(t *testing.T) {
		f := newFixture(t, true)
		f.provider.Seed("emma@mollebakken.internal", "secret")

		_, err := f.manager.SignInWithPassword(context.Background(), "emma", "wrong")
		require.Error(t, err)
		assert.True(t, identity.IsCode(err, identity.CodeAuthRejected))

		assert.Equal(t, Notice{Kind: KindError, Message: msgAuthRejected}, lastNotice(t, f.recorder))
	})

	t.Run("network failure surfaces as network notice", func(t *testing.T) {
		f := newFixture(t, true)
		f.provider.Seed("emma@mollebakken.internal", "secret")
		f.provider.FailWith(&identity.Error{Code: identity.CodeNetwork, Message: "connection reset"})

		_, err := f.manager.SignInWithPassword(context.Background(), "emma", "secret")
		require.Error(t, err)
		assert.True(t, identity.IsCode(err, identity.CodeNetwork))

		assert.Equal(t, Notice{Kind: KindError, Message: msgNetworkError}, lastNotice(t, f.recorder))
	})
}

// countingProvider records how many sign-in calls reach the provider.
type countingProvider struct {
	*idmem.Provider
	mu    sync.Mutex
	calls int
}

func (p *countingProvider) SignInWithPassword(ctx context.Context, email, password string) (*identity.Identity, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	return p.Provider.SignInWithPassword(ctx, email, password)
}

func (p *countingProvider) signInCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func TestOfflineGuard_NoProviderCall(t *testing.T) {
	provider := &countingProvider{Provider: idmem.NewProvider()}
	provider.Seed("emma@mollebakken.internal", "secret")

	recorder := &Recorder{}
	m, err := NewManager(Config{
		Provider: provider,
		Monitor:  netmon.New(netmon.Always(false)),
		Notifier: recorder,
	})
	require.NoError(t, err)

	_, err = m.SignInWithPassword(context.Background(), "emma", "secret")
	require.ErrorIs(t, err, ErrOffline)
	assert.Zero(t, provider.signInCalls(), "offline guard must reject before any provider call")

	err = m.SignOut(context.Background())
	require.ErrorIs(t, err, ErrOffline)

	_, err = m.SignInWithQR(context.Background(), qrproto.Encode("42"))
	require.ErrorIs(t, err, ErrOffline)

	assert.Equal(t, Notice{Kind: KindError, Message: msgOffline}, lastNotice(t, recorder))
}

func TestSignInWithQR(t *testing.T) {
	seedRecord := func(t *testing.T, f *fixture) {
		t.Helper()
		require.NoError(t, f.dir.PutProvisioningRecord(context.Background(), directory.ProvisioningRecord{
			SubjectID: "42",
			Token:     "tok-42",
		}))
	}

	t.Run("first scan provisions account and profile", func(t *testing.T) {
		f := newFixture(t, true)
		seedRecord(t, f)

		sess, err := f.manager.SignInWithQR(context.Background(), "mollebakken:parent:42")
		require.NoError(t, err)
		require.NotNil(t, sess)
		assert.Equal(t, "parent-42@mollebakken.internal", sess.Email)

		profile, ok := f.dir.Profile(sess.ID)
		require.True(t, ok)
		assert.Equal(t, "parent-42@mollebakken.internal", profile.Email)
		assert.Equal(t, "parent", profile.Role)
		assert.Equal(t, "42", profile.ParentID)

		assert.Equal(t, Notice{Kind: KindSuccess, Message: "Welcome to ArtConnect!"}, lastNotice(t, f.recorder))
	})

	t.Run("repeated scan is idempotent", func(t *testing.T) {
		f := newFixture(t, true)
		seedRecord(t, f)

		first, err := f.manager.SignInWithQR(context.Background(), "mollebakken:parent:42")
		require.NoError(t, err)

		second, err := f.manager.SignInWithQR(context.Background(), "mollebakken:parent:42")
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID, "repeated scans must resolve the same account")
		assert.Equal(t, 1, f.provider.AccountCount())
		assert.Equal(t, 1, f.dir.ProfileCount())

		assert.Equal(t, Notice{Kind: KindSuccess, Message: "Welcome to ArtConnect!"}, lastNotice(t, f.recorder))
	})

	t.Run("malformed payload", func(t *testing.T) {
		f := newFixture(t, true)

		_, err := f.manager.SignInWithQR(context.Background(), "otherschool:parent:42")
		require.ErrorIs(t, err, qrproto.ErrMalformedPayload)
		assert.Equal(t, Notice{Kind: KindError, Message: msgInvalidQR}, lastNotice(t, f.recorder))
	})

	t.Run("unknown subject", func(t *testing.T) {
		f := newFixture(t, true)

		_, err := f.manager.SignInWithQR(context.Background(), "mollebakken:parent:999")
		require.Error(t, err)
		assert.Equal(t, Notice{Kind: KindError, Message: msgInvalidQR}, lastNotice(t, f.recorder))
	})
}

func TestSignOut(t *testing.T) {
	f := newFixture(t, true)
	f.provider.Seed("emma@mollebakken.internal", "secret")

	_, err := f.manager.SignInWithPassword(context.Background(), "emma", "secret")
	require.NoError(t, err)

	err = f.manager.SignOut(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateSignedOut, f.manager.State())
	assert.Nil(t, f.manager.Current())
	assert.Equal(t, Notice{Kind: KindSuccess, Message: "Signed out successfully"}, lastNotice(t, f.recorder))

	cred, err := f.cache.Load()
	require.NoError(t, err)
	assert.Nil(t, cred, "sign out must clear the offline credential slot")
}

func TestRun_OfflineFallbackSession(t *testing.T) {
	f := newFixture(t, false)
	require.NoError(t, f.cache.Save(credcache.New("parent-42@mollebakken.internal", "tok")))

	f.run(t)

	require.Eventually(t, func() bool {
		return f.manager.State() == StateOffline
	}, time.Second, 5*time.Millisecond)

	sess := f.manager.Current()
	require.NotNil(t, sess)
	assert.Equal(t, OfflineSessionID, sess.ID)
	assert.Equal(t, "parent-42@mollebakken.internal", sess.Email)
	assert.True(t, sess.Offline)
}

func TestRun_ReconnectResolvesOfflineSession(t *testing.T) {
	f := newFixture(t, false)
	require.NoError(t, f.cache.Save(credcache.New("parent-42@mollebakken.internal", "tok")))

	f.run(t)

	require.Eventually(t, func() bool {
		return f.manager.State() == StateOffline
	}, time.Second, 5*time.Millisecond)

	// Reconnecting re-runs provider initialization; the provider answers with
	// no signed-in identity, so the degraded session does not linger.
	f.monitor.Report(true)

	require.Eventually(t, func() bool {
		return f.manager.State() == StateSignedOut
	}, time.Second, 5*time.Millisecond)
	assert.Nil(t, f.manager.Current())

	cred, err := f.cache.Load()
	require.NoError(t, err)
	assert.Nil(t, cred, "a signed-out answer while online clears the credential slot")
}

func TestRun_OfflineWithoutCachedCredential(t *testing.T) {
	f := newFixture(t, false)

	f.run(t)

	require.Eventually(t, func() bool {
		return f.manager.State() == StateSignedOut
	}, time.Second, 5*time.Millisecond)
	assert.Nil(t, f.manager.Current())
}

func TestRun_SignedOutOnlineClearsCredentialSlot(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.cache.Save(credcache.New("parent-42@mollebakken.internal", "tok")))

	f.run(t)

	require.Eventually(t, func() bool {
		return f.manager.State() == StateSignedOut
	}, time.Second, 5*time.Millisecond)

	// A signed-out notification while online is an actual sign-out.
	cred, err := f.cache.Load()
	require.NoError(t, err)
	assert.Nil(t, cred)
}

func TestRun_OfflineSignOutDerivesCachedSession(t *testing.T) {
	f := newFixture(t, true)
	f.provider.Seed("emma@mollebakken.internal", "secret")

	f.run(t)

	_, err := f.manager.SignInWithPassword(context.Background(), "emma", "secret")
	require.NoError(t, err)

	f.monitor.Report(false)

	// The provider drops the identity while offline; the manager falls back
	// to the cached credential instead of signing the user out.
	require.NoError(t, f.provider.SignOut(context.Background()))

	require.Eventually(t, func() bool {
		return f.manager.State() == StateOffline
	}, time.Second, 5*time.Millisecond)

	sess := f.manager.Current()
	require.NotNil(t, sess)
	assert.Equal(t, OfflineSessionID, sess.ID)
	assert.Equal(t, "emma@mollebakken.internal", sess.Email)
}

func TestRun_ConnectivityLossNeverOverridesLiveSession(t *testing.T) {
	f := newFixture(t, true)
	f.provider.Seed("emma@mollebakken.internal", "secret")

	f.run(t)

	sess, err := f.manager.SignInWithPassword(context.Background(), "emma", "secret")
	require.NoError(t, err)

	f.monitor.Report(false)

	// The live session stays put; only the absence of a live identity is
	// ever backfilled from the cache.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateSignedIn, f.manager.State())

	current := f.manager.Current()
	require.NotNil(t, current)
	assert.Equal(t, sess.ID, current.ID)
	assert.False(t, current.Offline)
}

func TestSubscribe_ReceivesTransitions(t *testing.T) {
	f := newFixture(t, true)
	f.provider.Seed("emma@mollebakken.internal", "secret")

	ch, cancel := f.manager.Subscribe()
	defer cancel()

	_, err := f.manager.SignInWithPassword(context.Background(), "emma", "secret")
	require.NoError(t, err)

	select {
	case sess := <-ch:
		require.NotNil(t, sess)
		assert.Equal(t, "emma@mollebakken.internal", sess.Email)
	case <-time.After(time.Second):
		t.Fatal("no session transition observed")
	}
}
