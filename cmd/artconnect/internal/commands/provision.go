package commands

import (
	"context"
	"fmt"

	"github.com/mollebakken/artconnect/internal/directory"
	"github.com/mollebakken/artconnect/internal/directory/firestore"
	"github.com/mollebakken/artconnect/internal/directory/postgres"
	"github.com/mollebakken/artconnect/internal/provision"
	"github.com/mollebakken/artconnect/internal/roster"
)

type ProvisionCmd struct {
	Backend    string `help:"Directory backend: firestore or postgres" enum:"firestore,postgres" default:"firestore"`
	ProjectID  string `help:"Firebase project id" env:"ARTCONNECT_PROJECT_ID"`
	AdminToken string `help:"Bearer token for document store writes" env:"ARTCONNECT_ADMIN_TOKEN"`
	ConnString string `help:"PostgreSQL connection string" env:"ARTCONNECT_POSTGRES_URL"`
	Migrate    bool   `help:"Run pending schema migrations (postgres backend)" default:"true"`
	Roster     string `help:"Roster YAML file; one card per student"`
	Subject    string `help:"Single subject id to issue a card for"`
}

func (p *ProvisionCmd) Run(ctx context.Context, globals *Globals) error {
	if (p.Roster == "") == (p.Subject == "") {
		return fmt.Errorf("exactly one of --roster or --subject is required")
	}

	store, cleanup, err := p.openStore(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	issuer := provision.NewIssuer(store)

	var cards []*provision.Issued
	if p.Subject != "" {
		card, err := issuer.Issue(ctx, p.Subject)
		if err != nil {
			return err
		}
		cards = append(cards, card)
	} else {
		r, err := roster.Load(p.Roster)
		if err != nil {
			return err
		}
		cards, err = issuer.IssueRoster(ctx, r.Students)
		if err != nil {
			return err
		}
	}

	fmt.Printf("%-12s %-28s %s\n", "Subject", "QR Payload", "Token")
	for _, card := range cards {
		fmt.Printf("%-12s %-28s %s\n", card.SubjectID, card.QRText, card.Token)
	}
	fmt.Printf("\nIssued %d card(s)\n", len(cards))

	return nil
}

func (p *ProvisionCmd) openStore(ctx context.Context) (directory.Provisioner, func(), error) {
	switch p.Backend {
	case "postgres":
		store, err := postgres.NewStore(ctx, &postgres.Config{
			ConnString:  p.ConnString,
			AutoMigrate: p.Migrate,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil

	default:
		var source firestore.TokenSource
		if p.AdminToken != "" {
			token := p.AdminToken
			source = func(ctx context.Context) (string, error) { return token, nil }
		}

		client, err := firestore.New(firestore.Config{
			ProjectID:   p.ProjectID,
			TokenSource: source,
		})
		if err != nil {
			return nil, nil, err
		}
		return client, func() {}, nil
	}
}
