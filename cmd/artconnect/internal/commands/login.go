package commands

import (
	"context"
)

type LoginCmd struct {
	PortalFlags
	Username string `arg:"" help:"Short account username; the login identity is synthesized as {username}@mollebakken.internal"`
	Password string `help:"Account password" env:"ARTCONNECT_PASSWORD" required:""`
}

func (l *LoginCmd) Run(ctx context.Context, globals *Globals) error {
	manager, err := newManager(ctx, &l.PortalFlags)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	runManager(runCtx, manager)

	sess, err := manager.SignInWithPassword(ctx, l.Username, l.Password)
	if err != nil {
		return err
	}

	printSession(sess)
	return nil
}

type QRLoginCmd struct {
	PortalFlags
	Payload string `arg:"" help:"Scanned QR payload text"`
}

func (q *QRLoginCmd) Run(ctx context.Context, globals *Globals) error {
	manager, err := newManager(ctx, &q.PortalFlags)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	runManager(runCtx, manager)

	sess, err := manager.SignInWithQR(ctx, q.Payload)
	if err != nil {
		return err
	}

	printSession(sess)
	return nil
}

type LogoutCmd struct {
	PortalFlags
}

func (l *LogoutCmd) Run(ctx context.Context, globals *Globals) error {
	manager, err := newManager(ctx, &l.PortalFlags)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	runManager(runCtx, manager)

	return manager.SignOut(ctx)
}

type StatusCmd struct {
	PortalFlags
}

func (s *StatusCmd) Run(ctx context.Context, globals *Globals) error {
	manager, err := newManager(ctx, &s.PortalFlags)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	runManager(runCtx, manager)

	printSession(manager.Current())
	return nil
}
