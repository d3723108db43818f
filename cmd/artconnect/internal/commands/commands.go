package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/mollebakken/artconnect/internal/credcache"
	"github.com/mollebakken/artconnect/internal/directory/firestore"
	"github.com/mollebakken/artconnect/internal/identity/firebase"
	"github.com/mollebakken/artconnect/internal/netmon"
	"github.com/mollebakken/artconnect/internal/session"
)

type Globals struct {
	Debug   bool
	Version string
}

// PortalFlags is the shared configuration of every session command.
type PortalFlags struct {
	APIKey    string `help:"Firebase web API key" env:"ARTCONNECT_API_KEY" required:""`
	ProjectID string `help:"Firebase project id" env:"ARTCONNECT_PROJECT_ID" required:""`
	CacheDir  string `help:"Credential cache directory (default ~/.artconnect)" env:"ARTCONNECT_CACHE_DIR"`
	Offline   bool   `help:"Treat the network as offline"`
}

// printNotifier renders session notices to the terminal.
type printNotifier struct{}

func (printNotifier) Notify(n session.Notice) {
	fmt.Println(n.Message)
}

// newManager wires the hosted identity provider, the document-store
// directory, and the local credential cache into a session manager. The
// provider is initialized here so a persisted identity is restored before the
// first operation runs.
func newManager(ctx context.Context, flags *PortalFlags) (*session.Manager, error) {
	provider, err := firebase.New(firebase.Config{
		APIKey:     flags.APIKey,
		PersistDir: flags.CacheDir,
	})
	if err != nil {
		return nil, err
	}

	dir, err := firestore.New(firestore.Config{
		ProjectID:   flags.ProjectID,
		TokenSource: provider.FetchToken,
	})
	if err != nil {
		return nil, err
	}

	cache, err := credcache.NewStore(flags.CacheDir)
	if err != nil {
		return nil, err
	}

	manager, err := session.NewManager(session.Config{
		Provider:  provider,
		Monitor:   netmon.New(netmon.Always(!flags.Offline)),
		Directory: dir,
		Cache:     cache,
		Notifier:  printNotifier{},
	})
	if err != nil {
		return nil, err
	}

	return manager, nil
}

// runManager starts the reconciliation loop and waits for the initial
// provider notification to settle.
func runManager(ctx context.Context, m *session.Manager) {
	go func() {
		_ = m.Run(ctx)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for m.State() == session.StateInitializing && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
}

func printSession(s *session.Session) {
	if s == nil {
		fmt.Println("Not signed in")
		return
	}
	if s.Offline {
		fmt.Printf("Signed in (offline) as %s\n", s.Email)
		return
	}
	fmt.Printf("Signed in as %s (%s)\n", s.Email, s.ID)
}
